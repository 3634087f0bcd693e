package models

import "gorm.io/datatypes"

// Provider is a marketplace vendor users can chat with.
type Provider struct {
	BaseModel

	Name        string `gorm:"not null" json:"name"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`
}
