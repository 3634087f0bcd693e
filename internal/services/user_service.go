package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/blockvault/blockvault/internal/models"
	"github.com/blockvault/blockvault/pkg/crypto"
)

var (
	// ErrUserNotFound indicates no user matches the supplied identifier.
	ErrUserNotFound = errors.New("user: not found")
	// ErrEmailTaken indicates the email address is already registered.
	ErrEmailTaken = errors.New("user: email already registered")
	// ErrPasswordRequired is returned when a sensitive change lacks the current password.
	ErrPasswordRequired = errors.New("user: current password is required")
)

// RegisterInput captures the details required to register a new account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UpdateProfileInput holds optional profile updates.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
}

// UserService owns account records: registration, profile updates, and the
// two-factor flag.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a user service.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Register creates a new account with a hashed password and seeds its default
// wallets in the same transaction.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, errors.New("user service: email and password are required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:     email,
		Password:  hashed,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		IsActive:  true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("user service: create user: %w", err)
		}
		if err := seedDefaultWallets(tx, user.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetByID returns the user with the supplied identifier.
func (s *UserService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: find user: %w", err)
	}
	return &user, nil
}

// GetByEmail returns the user registered under the supplied email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: find user: %w", err)
	}
	return &user, nil
}

// UpdateProfile applies the supplied profile changes.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update profile: %w", err)
	}
	return user, nil
}

// ChangePassword updates the password after verifying the existing credential.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if newPassword == "" {
		return errors.New("user service: new password is required")
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !crypto.VerifyPassword(user.Password, currentPassword) {
		return ErrInvalidCredentials
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("user service: update password: %w", err)
	}
	return nil
}

// SetTwoFactor flips the two-factor flag for an account. Both enabling and
// disabling require the current password; the change takes effect at the next
// login.
func (s *UserService) SetTwoFactor(ctx context.Context, userID string, enabled bool, currentPassword string) (*models.User, error) {
	if currentPassword == "" {
		return nil, ErrPasswordRequired
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !crypto.VerifyPassword(user.Password, currentPassword) {
		return nil, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled == enabled {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Update("two_factor_enabled", enabled).Error; err != nil {
		return nil, fmt.Errorf("user service: update two-factor flag: %w", err)
	}

	user.TwoFactorEnabled = enabled
	return user, nil
}
