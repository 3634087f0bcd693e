package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/blockvault/blockvault/internal/models"
	"github.com/blockvault/blockvault/pkg/crypto"
	"github.com/blockvault/blockvault/pkg/mail"
	"github.com/blockvault/blockvault/pkg/metrics"
)

const (
	defaultVerificationTTL    = 10 * time.Minute
	defaultVerificationDigits = 6
)

var (
	// ErrNoPendingToken indicates the account has no live verification code.
	ErrNoPendingToken = errors.New("verification: no pending token")
	// ErrTokenExpired indicates the pending code has passed its expiry.
	ErrTokenExpired = errors.New("verification: expired")
	// ErrTokenMismatch indicates the submitted code does not match the issued one.
	ErrTokenMismatch = errors.New("verification: mismatch")
	// ErrDispatchFailed signals the code was stored but the email could not be sent.
	// The token stays live so the user can request a resend.
	ErrDispatchFailed = errors.New("verification: dispatch failed")
)

// VerificationOption customises the VerificationService.
type VerificationOption func(*VerificationService)

// WithVerificationTTL overrides the code lifetime.
func WithVerificationTTL(d time.Duration) VerificationOption {
	return func(s *VerificationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithVerificationDigits adjusts the number of digits in generated codes.
func WithVerificationDigits(digits int) VerificationOption {
	return func(s *VerificationService) {
		if digits > 0 {
			s.digits = digits
		}
	}
}

// WithVerificationClock injects a custom time source.
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(s *VerificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// VerificationService issues and consumes the one-time login codes that back
// two-factor authentication. An account holds at most one live code; issuing
// replaces the previous one.
type VerificationService struct {
	db     *gorm.DB
	mailer mail.Mailer
	ttl    time.Duration
	digits int
	now    func() time.Time
}

// NewVerificationService constructs a verification service with the provided dependencies.
func NewVerificationService(db *gorm.DB, mailer mail.Mailer, opts ...VerificationOption) (*VerificationService, error) {
	if db == nil {
		return nil, errors.New("verification service: db is required")
	}

	service := &VerificationService{
		db:     db,
		mailer: mailer,
		ttl:    defaultVerificationTTL,
		digits: defaultVerificationDigits,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Issue generates a fresh code for the user, replacing any previous one, and
// dispatches it to the user's registered email. The replace happens inside a
// single transaction; the mail dispatch runs after commit so no transaction is
// held across SMTP I/O. A dispatch failure is reported as ErrDispatchFailed
// but does not invalidate the stored code.
func (s *VerificationService) Issue(ctx context.Context, userID, email string) error {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(strings.ToLower(email))
	if userID == "" {
		return errors.New("verification service: user id is required")
	}
	if email == "" {
		return errors.New("verification service: email is required")
	}

	code, err := crypto.GenerateNumericCode(s.digits)
	if err != nil {
		return fmt.Errorf("verification service: generate code: %w", err)
	}

	now := s.now()
	token := models.VerificationToken{
		UserID:    userID,
		CodeHash:  codeHash(code),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).
			Delete(&models.VerificationToken{}).Error; err != nil {
			return fmt.Errorf("verification service: replace token: %w", err)
		}
		if err := tx.Create(&token).Error; err != nil {
			return fmt.Errorf("verification service: create token: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.dispatch(ctx, email, code)
}

// Resend reissues a code for an account that is mid-verification. It refuses
// with ErrNoPendingToken when no pending row exists; an expired-but-present
// row may still be replaced.
func (s *VerificationService) Resend(ctx context.Context, userID, email string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("verification service: user id is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.VerificationToken{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("verification service: find pending token: %w", err)
	}
	if count == 0 {
		return ErrNoPendingToken
	}

	return s.Issue(ctx, userID, email)
}

// Verify consumes a submitted code. Expiry is checked before equality so an
// expired code can never clear the pending token through the match branch.
// On success the token row is deleted, so a second attempt with the same code
// fails with ErrNoPendingToken.
func (s *VerificationService) Verify(ctx context.Context, userID, code string) error {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return ErrTokenMismatch
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token models.VerificationToken
		if err := tx.Where("user_id = ?", userID).Take(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPendingToken
			}
			return fmt.Errorf("verification service: find token: %w", err)
		}

		if token.ExpiresAt.Before(s.now()) {
			return ErrTokenExpired
		}

		if !codeHashEqual(token.CodeHash, code) {
			return ErrTokenMismatch
		}

		if err := tx.Delete(&token).Error; err != nil {
			return fmt.Errorf("verification service: consume token: %w", err)
		}
		return nil
	})

	switch {
	case err == nil:
		metrics.VerificationAttempts.WithLabelValues("success").Inc()
	case errors.Is(err, ErrTokenMismatch):
		metrics.VerificationAttempts.WithLabelValues("mismatch").Inc()
	case errors.Is(err, ErrTokenExpired):
		metrics.VerificationAttempts.WithLabelValues("expired").Inc()
	case errors.Is(err, ErrNoPendingToken):
		metrics.VerificationAttempts.WithLabelValues("no_pending").Inc()
	}

	return err
}

func (s *VerificationService) dispatch(ctx context.Context, email, code string) error {
	if s.mailer == nil {
		return nil
	}

	message := mail.Message{
		To:      []string{email},
		Subject: "Your BlockVault verification code",
		Body:    s.verificationBody(code),
	}

	if err := s.mailer.Send(ctx, message); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		metrics.VerificationDispatches.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	metrics.VerificationDispatches.WithLabelValues("sent").Inc()
	return nil
}

func (s *VerificationService) verificationBody(code string) string {
	minutes := int(s.ttl / time.Minute)
	return fmt.Sprintf("Your BlockVault verification code is %s\n\nIt expires in %d minutes. If you did not try to sign in, you can ignore this message.\n", code, minutes)
}

func codeHash(code string) string {
	digest := sha256.Sum256([]byte(code))
	return hex.EncodeToString(digest[:])
}

// codeHashEqual compares the stored hash with the hash of the candidate code
// in constant time.
func codeHashEqual(storedHash, code string) bool {
	candidate := codeHash(code)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(candidate)) == 1
}
