package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	iauth "github.com/blockvault/blockvault/internal/auth"
	"github.com/blockvault/blockvault/internal/models"
	"github.com/blockvault/blockvault/pkg/crypto"
	"github.com/blockvault/blockvault/pkg/metrics"
)

var (
	// ErrInvalidCredentials is returned when the supplied email/password pair is
	// invalid. An unknown email and a wrong password are deliberately
	// indistinguishable.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the user has exceeded the permitted failed attempts.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrAccountDisabled signals that the user has been deactivated.
	ErrAccountDisabled = errors.New("auth: account disabled")
)

// LoginStatus tags the outcome of a successful login call.
type LoginStatus string

const (
	// StatusAuthenticated means a session was created and tokens were issued.
	StatusAuthenticated LoginStatus = "authenticated"
	// StatusPendingVerification means the password matched but an emailed code
	// must be confirmed before a session is issued.
	StatusPendingVerification LoginStatus = "pending_verification"
)

// LoginConfig defines tunable behaviour for the login service.
type LoginConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// LoginInput contains the credentials and client metadata for a login attempt.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult is the tagged outcome of Login or VerifyLogin.
type LoginResult struct {
	Status LoginStatus
	User   *models.User
	Tokens iauth.TokenPair
	// DispatchFailed reports that the verification email could not be sent.
	// The issued code remains live and can be resent.
	DispatchFailed bool
}

// LoginService authenticates credentials and decides between an immediate
// session and the pending-verification state, depending on the account's
// two-factor flag.
type LoginService struct {
	db        *gorm.DB
	sessions  *iauth.SessionService
	verifier  *VerificationService
	threshold int
	lockout   time.Duration
	now       func() time.Time
}

// NewLoginService constructs a login service with sane defaults.
func NewLoginService(db *gorm.DB, sessions *iauth.SessionService, verifier *VerificationService, cfg LoginConfig) (*LoginService, error) {
	if db == nil {
		return nil, errors.New("login service: db is required")
	}
	if sessions == nil {
		return nil, errors.New("login service: session service is required")
	}
	if verifier == nil {
		return nil, errors.New("login service: verification service is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	lockout := cfg.LockoutDuration
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LoginService{
		db:        db,
		sessions:  sessions,
		verifier:  verifier,
		threshold: threshold,
		lockout:   lockout,
		now:       clock,
	}, nil
}

// Login verifies the supplied credentials. Accounts without two-factor go
// straight to an authenticated session; accounts with it enabled receive an
// emailed code and a pending-verification result.
func (s *LoginService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login service: query user: %w", err)
	}

	now := s.now()

	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrAccountDisabled
	}

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrAccountLocked
	}

	// Unlock the account if the lockout duration has elapsed.
	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		user.LockedUntil = nil
		user.FailedAttempts = 0
		if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("login service: reset lock state: %w", err)
		}
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, s.handleFailedAttempt(ctx, &user, now)
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   strings.TrimSpace(input.IPAddress),
	}).Error; err != nil {
		return nil, fmt.Errorf("login service: update user: %w", err)
	}

	if !user.TwoFactorEnabled {
		tokens, _, err := s.sessions.CreateSession(user.ID, iauth.SessionMetadata{
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
			Email:     user.Email,
		})
		if err != nil {
			return nil, fmt.Errorf("login service: create session: %w", err)
		}

		metrics.AuthAttempts.WithLabelValues("success").Inc()
		return &LoginResult{Status: StatusAuthenticated, User: &user, Tokens: tokens}, nil
	}

	dispatchFailed := false
	if err := s.verifier.Issue(ctx, user.ID, user.Email); err != nil {
		if !errors.Is(err, ErrDispatchFailed) {
			return nil, err
		}
		dispatchFailed = true
	}

	metrics.AuthAttempts.WithLabelValues("pending").Inc()
	return &LoginResult{
		Status:         StatusPendingVerification,
		User:           &user,
		DispatchFailed: dispatchFailed,
	}, nil
}

// VerifyLogin consumes a verification code and, when it matches, promotes the
// pending login to an authenticated session.
func (s *LoginService) VerifyLogin(ctx context.Context, userID, code string, meta iauth.SessionMetadata) (*LoginResult, error) {
	if err := s.verifier.Verify(ctx, userID, code); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login service: find user: %w", err)
	}

	meta.Email = user.Email
	tokens, _, err := s.sessions.CreateSession(user.ID, meta)
	if err != nil {
		return nil, fmt.Errorf("login service: create session: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &LoginResult{Status: StatusAuthenticated, User: &user, Tokens: tokens}, nil
}

// ResendCode reissues the pending verification code for an account.
func (s *LoginService) ResendCode(ctx context.Context, userID string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoPendingToken
		}
		return fmt.Errorf("login service: find user: %w", err)
	}

	return s.verifier.Resend(ctx, user.ID, user.Email)
}

func (s *LoginService) handleFailedAttempt(ctx context.Context, user *models.User, now time.Time) error {
	user.FailedAttempts++

	updates := map[string]any{
		"failed_attempts": user.FailedAttempts,
	}

	if user.FailedAttempts >= s.threshold {
		lockUntil := now.Add(s.lockout)
		user.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("login service: update failed attempts: %w", err)
	}

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return ErrAccountLocked
	}

	return ErrInvalidCredentials
}
