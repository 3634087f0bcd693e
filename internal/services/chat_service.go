package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/blockvault/blockvault/internal/models"
)

const maxChatMessageLength = 4000

var (
	// ErrChatNotFound indicates no chat matches the supplied identifier.
	ErrChatNotFound = errors.New("chat: not found")
	// ErrNotChatMember is returned when a sender does not belong to the chat.
	ErrNotChatMember = errors.New("chat: sender is not a participant")
)

// Broadcaster relays newly persisted messages to live subscribers.
type Broadcaster interface {
	Publish(chatID string, message models.ChatMessage)
}

// SendMessageParams carries the payload required to post a chat message.
type SendMessageParams struct {
	ChatID      string
	SenderEmail string
	SenderRole  string
	Content     string
}

// ChatSummary is the per-chat listing entry returned to participants.
type ChatSummary struct {
	ChatID        string              `json:"chat_id"`
	UserEmail     string              `json:"user_email"`
	ProviderEmail string              `json:"provider_email"`
	LastMessage   *models.ChatMessage `json:"last_message,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// ChatService persists user/provider conversations and relays new messages to
// the realtime hub when one is attached.
type ChatService struct {
	db          *gorm.DB
	users       *UserService
	providers   *ProviderService
	broadcaster Broadcaster
	now         func() time.Time
}

// NewChatService constructs a chat service once its dependencies are supplied.
func NewChatService(db *gorm.DB, users *UserService, providers *ProviderService) (*ChatService, error) {
	if db == nil {
		return nil, errors.New("chat service: db is required")
	}
	if users == nil {
		return nil, errors.New("chat service: user service is required")
	}
	if providers == nil {
		return nil, errors.New("chat service: provider service is required")
	}
	return &ChatService{
		db:        db,
		users:     users,
		providers: providers,
		now:       time.Now,
	}, nil
}

// AttachBroadcaster wires a live-message relay. Optional.
func (s *ChatService) AttachBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// OpenChat returns the chat between the user and the provider, creating it on
// first use. Both participants must exist.
func (s *ChatService) OpenChat(ctx context.Context, userEmail, providerEmail string) (*models.Chat, error) {
	user, err := s.users.GetByEmail(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.GetByEmail(ctx, providerEmail)
	if err != nil {
		return nil, err
	}

	var chat models.Chat
	err = s.db.WithContext(ctx).
		Where("user_email = ? AND provider_email = ?", user.Email, provider.Email).
		Take(&chat).Error
	if err == nil {
		return &chat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("chat service: find chat: %w", err)
	}

	chat = models.Chat{
		UserEmail:     user.Email,
		ProviderEmail: provider.Email,
	}
	if err := s.db.WithContext(ctx).Create(&chat).Error; err != nil {
		// Lost a create race; fetch the winner.
		if isUniqueConstraintError(err) {
			if ferr := s.db.WithContext(ctx).
				Where("user_email = ? AND provider_email = ?", user.Email, provider.Email).
				Take(&chat).Error; ferr == nil {
				return &chat, nil
			}
		}
		return nil, fmt.Errorf("chat service: create chat: %w", err)
	}
	return &chat, nil
}

// GetChat returns a chat by identifier.
func (s *ChatService) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, ErrChatNotFound
	}

	var chat models.Chat
	err := s.db.WithContext(ctx).Take(&chat, "id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat service: find chat: %w", err)
	}
	return &chat, nil
}

// SendMessage sanitises and persists a message, then relays it to live
// subscribers. The sender must be one of the chat participants and the role
// must match the side they are on.
func (s *ChatService) SendMessage(ctx context.Context, params SendMessageParams) (*models.ChatMessage, error) {
	chat, err := s.GetChat(ctx, params.ChatID)
	if err != nil {
		return nil, err
	}

	sender := strings.ToLower(strings.TrimSpace(params.SenderEmail))
	role := strings.TrimSpace(params.SenderRole)
	switch role {
	case models.ChatRoleUser:
		if sender != chat.UserEmail {
			return nil, ErrNotChatMember
		}
	case models.ChatRoleProvider:
		if sender != chat.ProviderEmail {
			return nil, ErrNotChatMember
		}
	default:
		return nil, fmt.Errorf("chat service: unknown sender role %q", params.SenderRole)
	}

	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, errors.New("chat service: message content is required")
	}
	if utf8.RuneCountInString(content) > maxChatMessageLength {
		return nil, errors.New("chat service: message content exceeds maximum length")
	}

	message := models.ChatMessage{
		ChatID:      chat.ID,
		SenderEmail: sender,
		SenderRole:  role,
		Content:     html.EscapeString(content),
	}
	message.CreatedAt = s.now()

	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return nil, fmt.Errorf("chat service: create message: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Publish(chat.ID, message)
	}

	return &message, nil
}

// ListMessages returns persisted messages for the chat ordered chronologically.
func (s *ChatService) ListMessages(ctx context.Context, chatID string, limit int, before time.Time) ([]models.ChatMessage, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit)

	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var rows []models.ChatMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("chat service: list messages: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	return rows, nil
}

// ListChatsByParticipant returns chat summaries for either side of the
// conversation, most recently active first.
func (s *ChatService) ListChatsByParticipant(ctx context.Context, email string) ([]ChatSummary, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("chat service: participant email is required")
	}

	var chats []models.Chat
	if err := s.db.WithContext(ctx).
		Where("user_email = ? OR provider_email = ?", email, email).
		Order("updated_at DESC").
		Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("chat service: list chats: %w", err)
	}

	summaries := make([]ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := ChatSummary{
			ChatID:        chat.ID,
			UserEmail:     chat.UserEmail,
			ProviderEmail: chat.ProviderEmail,
			UpdatedAt:     chat.UpdatedAt,
		}

		var last models.ChatMessage
		err := s.db.WithContext(ctx).
			Where("chat_id = ?", chat.ID).
			Order("created_at DESC").
			Take(&last).Error
		if err == nil {
			summary.LastMessage = &last
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat service: last message: %w", err)
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}
