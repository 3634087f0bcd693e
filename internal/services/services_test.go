package services

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blockvault/blockvault/internal/database"
	"github.com/blockvault/blockvault/internal/models"
	"github.com/blockvault/blockvault/pkg/crypto"
	"github.com/blockvault/blockvault/pkg/mail"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	return db
}

// captureMailer records outbound messages and extracts verification codes so
// tests can replay them.
type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

var codePattern = regexp.MustCompile(`[0-9]{6}`)

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msg)
	return m.err
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	require.NotEmpty(t, m.messages)
	code := codePattern.FindString(m.messages[len(m.messages)-1].Body)
	require.NotEmpty(t, code)
	return code
}

func (m *captureMailer) sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, twoFactor bool) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Email:            email,
		Password:         hashed,
		IsActive:         true,
		TwoFactorEnabled: twoFactor,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func tokenCount(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.VerificationToken{}).
		Where("user_id = ?", userID).
		Count(&count).Error)
	return count
}
