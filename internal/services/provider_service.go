package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/blockvault/blockvault/internal/models"
)

var (
	// ErrProviderNotFound indicates no provider matches the supplied email.
	ErrProviderNotFound = errors.New("provider: not found")
	// ErrProviderExists indicates the provider email is already registered.
	ErrProviderExists = errors.New("provider: already registered")
)

// CreateProviderInput captures the fields required to register a marketplace provider.
type CreateProviderInput struct {
	Name        string
	Email       string
	Description string
	ImageURL    string
}

// ProviderService manages the marketplace provider directory.
type ProviderService struct {
	db *gorm.DB
}

// NewProviderService constructs a provider service.
func NewProviderService(db *gorm.DB) (*ProviderService, error) {
	if db == nil {
		return nil, errors.New("provider service: db is required")
	}
	return &ProviderService{db: db}, nil
}

// Create registers a new provider.
func (s *ProviderService) Create(ctx context.Context, input CreateProviderInput) (*models.Provider, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" || email == "" {
		return nil, errors.New("provider service: name and email are required")
	}

	provider := &models.Provider{
		Name:        name,
		Email:       email,
		Description: strings.TrimSpace(input.Description),
		ImageURL:    strings.TrimSpace(input.ImageURL),
	}

	if err := s.db.WithContext(ctx).Create(provider).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrProviderExists
		}
		return nil, fmt.Errorf("provider service: create provider: %w", err)
	}
	return provider, nil
}

// List returns every registered provider, newest first.
func (s *ProviderService) List(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&providers).Error; err != nil {
		return nil, fmt.Errorf("provider service: list providers: %w", err)
	}
	return providers, nil
}

// GetByEmail returns the provider registered under the supplied email.
func (s *ProviderService) GetByEmail(ctx context.Context, email string) (*models.Provider, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrProviderNotFound
	}

	var provider models.Provider
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&provider).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("provider service: find provider: %w", err)
	}
	return &provider, nil
}
