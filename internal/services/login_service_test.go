package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/blockvault/blockvault/internal/auth"
	"github.com/blockvault/blockvault/internal/models"
)

type loginFixture struct {
	db       *gorm.DB
	mailer   *captureMailer
	sessions *iauth.SessionService
	login    *LoginService
	clock    *time.Time
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()

	db := testDB(t)
	mailer := &captureMailer{}

	current := time.Now()
	clockFn := func() time.Time { return current }

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: "test-secret",
		Issuer: "blockvault-test",
		Clock:  clockFn,
	})
	require.NoError(t, err)

	sessions, err := iauth.NewSessionService(db, jwtService, iauth.SessionConfig{Clock: clockFn})
	require.NoError(t, err)

	verifier, err := NewVerificationService(db, mailer, WithVerificationClock(clockFn))
	require.NoError(t, err)

	login, err := NewLoginService(db, sessions, verifier, LoginConfig{Clock: clockFn})
	require.NoError(t, err)

	return &loginFixture{
		db:       db,
		mailer:   mailer,
		sessions: sessions,
		login:    login,
		clock:    &current,
	}
}

func (f *loginFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func sessionCount(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.Session{}).
		Where("user_id = ?", userID).
		Count(&count).Error)
	return count
}

func TestLoginWithoutTwoFactorCreatesSession(t *testing.T) {
	f := newLoginFixture(t)
	user := createTestUser(t, f.db, "alice@example.com", "password-1234", false)

	result, err := f.login.Login(context.Background(), LoginInput{
		Email:    "Alice@Example.com",
		Password: "password-1234",
	})
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, result.Status)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.Tokens.RefreshToken)

	// No verification code is issued when two-factor is off.
	require.EqualValues(t, 0, tokenCount(t, f.db, user.ID))
	require.EqualValues(t, 1, sessionCount(t, f.db, user.ID))
	require.Equal(t, 0, f.mailer.sent())
}

func TestLoginWithTwoFactorIsPending(t *testing.T) {
	f := newLoginFixture(t)
	user := createTestUser(t, f.db, "alice@example.com", "password-1234", true)

	result, err := f.login.Login(context.Background(), LoginInput{
		Email:    "alice@example.com",
		Password: "password-1234",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPendingVerification, result.Status)
	require.False(t, result.DispatchFailed)

	// Exactly one live code, and no session yet.
	require.EqualValues(t, 1, tokenCount(t, f.db, user.ID))
	require.EqualValues(t, 0, sessionCount(t, f.db, user.ID))
	require.Equal(t, 1, f.mailer.sent())
}

func TestLoginErrorsAreIndistinguishable(t *testing.T) {
	f := newLoginFixture(t)
	createTestUser(t, f.db, "alice@example.com", "password-1234", false)

	ctx := context.Background()

	_, unknownErr := f.login.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "password-1234"})
	_, wrongErr := f.login.Login(ctx, LoginInput{Email: "alice@example.com", Password: "not-the-password"})

	require.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	require.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	f := newLoginFixture(t)
	createTestUser(t, f.db, "alice@example.com", "password-1234", false)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := f.login.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Fifth failure crosses the threshold.
	_, err := f.login.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrAccountLocked)

	// Even the correct password is rejected while locked.
	_, err = f.login.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password-1234"})
	require.ErrorIs(t, err, ErrAccountLocked)

	f.advance(16 * time.Minute)

	result, err := f.login.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password-1234"})
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, result.Status)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newLoginFixture(t)
	user := createTestUser(t, f.db, "alice@example.com", "password-1234", false)
	require.NoError(t, f.db.Model(user).Update("is_active", false).Error)

	_, err := f.login.Login(context.Background(), LoginInput{
		Email:    "alice@example.com",
		Password: "password-1234",
	})
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestVerifyLoginPromotesPendingLogin(t *testing.T) {
	f := newLoginFixture(t)
	user := createTestUser(t, f.db, "alice@example.com", "password-1234", true)

	ctx := context.Background()
	result, err := f.login.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password-1234"})
	require.NoError(t, err)
	require.Equal(t, StatusPendingVerification, result.Status)

	code := f.mailer.lastCode(t)

	verified, err := f.login.VerifyLogin(ctx, user.ID, code, iauth.SessionMetadata{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, verified.Status)
	require.NotEmpty(t, verified.Tokens.AccessToken)
	require.EqualValues(t, 1, sessionCount(t, f.db, user.ID))

	// The code is single use.
	_, err = f.login.VerifyLogin(ctx, user.ID, code, iauth.SessionMetadata{})
	require.ErrorIs(t, err, ErrNoPendingToken)
}

func TestVerifyLoginExpiredCode(t *testing.T) {
	f := newLoginFixture(t)
	user := createTestUser(t, f.db, "alice@example.com", "password-1234", true)

	ctx := context.Background()
	_, err := f.login.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password-1234"})
	require.NoError(t, err)

	code := f.mailer.lastCode(t)
	f.advance(11 * time.Minute)

	_, err = f.login.VerifyLogin(ctx, user.ID, code, iauth.SessionMetadata{})
	require.ErrorIs(t, err, ErrTokenExpired)

	// Resend replaces the expired code and verification succeeds again.
	require.NoError(t, f.login.ResendCode(ctx, user.ID))
	fresh := f.mailer.lastCode(t)

	verified, err := f.login.VerifyLogin(ctx, user.ID, fresh, iauth.SessionMetadata{})
	require.NoError(t, err)
	require.Equal(t, StatusAuthenticated, verified.Status)
}

func TestResendCodeWithoutPendingLogin(t *testing.T) {
	f := newLoginFixture(t)
	user := createTestUser(t, f.db, "alice@example.com", "password-1234", true)

	require.ErrorIs(t, f.login.ResendCode(context.Background(), user.ID), ErrNoPendingToken)
	require.ErrorIs(t, f.login.ResendCode(context.Background(), "missing-user"), ErrNoPendingToken)
}
