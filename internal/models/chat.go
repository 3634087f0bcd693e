package models

// Chat links a user and a provider. One chat exists per pair.
type Chat struct {
	BaseModel

	UserEmail     string `gorm:"not null;index:idx_chat_pair,unique" json:"user_email"`
	ProviderEmail string `gorm:"not null;index:idx_chat_pair,unique" json:"provider_email"`

	Messages []ChatMessage `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
}

// Sender roles recorded on chat messages.
const (
	ChatRoleUser     = "user"
	ChatRoleProvider = "provider"
)

// ChatMessage is a single message inside a chat.
type ChatMessage struct {
	BaseModel

	ChatID      string `gorm:"type:uuid;not null;index" json:"chat_id"`
	SenderEmail string `gorm:"not null" json:"sender_email"`
	SenderRole  string `gorm:"not null" json:"sender_role"`
	Content     string `gorm:"not null" json:"content"`
}
