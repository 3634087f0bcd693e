package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blockvault/blockvault/internal/models"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.ChatMessage
}

func (b *recordingBroadcaster) Publish(_ string, message models.ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, message)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func newChatFixture(t *testing.T) (*gorm.DB, *ChatService) {
	t.Helper()

	db := testDB(t)
	users, err := NewUserService(db)
	require.NoError(t, err)
	providers, err := NewProviderService(db)
	require.NoError(t, err)
	chats, err := NewChatService(db, users, providers)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = users.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "password-1234"})
	require.NoError(t, err)
	_, err = providers.Create(ctx, CreateProviderInput{Name: "Coin Desk", Email: "desk@provider.com"})
	require.NoError(t, err)

	return db, chats
}

func TestOpenChatIsIdempotent(t *testing.T) {
	_, chats := newChatFixture(t)

	ctx := context.Background()
	first, err := chats.OpenChat(ctx, "alice@example.com", "desk@provider.com")
	require.NoError(t, err)

	second, err := chats.OpenChat(ctx, "Alice@Example.com", "desk@provider.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestOpenChatRequiresBothParticipants(t *testing.T) {
	_, chats := newChatFixture(t)

	ctx := context.Background()
	_, err := chats.OpenChat(ctx, "nobody@example.com", "desk@provider.com")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = chats.OpenChat(ctx, "alice@example.com", "unknown@provider.com")
	require.ErrorIs(t, err, ErrProviderNotFound)
}

func TestSendMessageChecksMembershipAndRole(t *testing.T) {
	_, chats := newChatFixture(t)
	broadcaster := &recordingBroadcaster{}
	chats.AttachBroadcaster(broadcaster)

	ctx := context.Background()
	chat, err := chats.OpenChat(ctx, "alice@example.com", "desk@provider.com")
	require.NoError(t, err)

	message, err := chats.SendMessage(ctx, SendMessageParams{
		ChatID:      chat.ID,
		SenderEmail: "alice@example.com",
		SenderRole:  models.ChatRoleUser,
		Content:     "Hello there",
	})
	require.NoError(t, err)
	require.Equal(t, chat.ID, message.ChatID)
	require.Equal(t, 1, broadcaster.count())

	// A stranger cannot post.
	_, err = chats.SendMessage(ctx, SendMessageParams{
		ChatID:      chat.ID,
		SenderEmail: "mallory@example.com",
		SenderRole:  models.ChatRoleUser,
		Content:     "Hi",
	})
	require.ErrorIs(t, err, ErrNotChatMember)

	// The role must match the side the sender is on.
	_, err = chats.SendMessage(ctx, SendMessageParams{
		ChatID:      chat.ID,
		SenderEmail: "alice@example.com",
		SenderRole:  models.ChatRoleProvider,
		Content:     "Hi",
	})
	require.ErrorIs(t, err, ErrNotChatMember)
}

func TestSendMessageEscapesContent(t *testing.T) {
	_, chats := newChatFixture(t)

	ctx := context.Background()
	chat, err := chats.OpenChat(ctx, "alice@example.com", "desk@provider.com")
	require.NoError(t, err)

	message, err := chats.SendMessage(ctx, SendMessageParams{
		ChatID:      chat.ID,
		SenderEmail: "alice@example.com",
		SenderRole:  models.ChatRoleUser,
		Content:     "<script>alert(1)</script>",
	})
	require.NoError(t, err)
	require.NotContains(t, message.Content, "<script>")

	_, err = chats.SendMessage(ctx, SendMessageParams{
		ChatID:      chat.ID,
		SenderEmail: "alice@example.com",
		SenderRole:  models.ChatRoleUser,
		Content:     strings.Repeat("a", 4001),
	})
	require.Error(t, err)
}

func TestListMessagesChronologicalWithLimit(t *testing.T) {
	db, chats := newChatFixture(t)

	current := time.Now().Add(-time.Hour)
	chats.now = func() time.Time { return current }

	ctx := context.Background()
	chat, err := chats.OpenChat(ctx, "alice@example.com", "desk@provider.com")
	require.NoError(t, err)

	contents := []string{"one", "two", "three", "four"}
	for _, content := range contents {
		_, err := chats.SendMessage(ctx, SendMessageParams{
			ChatID:      chat.ID,
			SenderEmail: "alice@example.com",
			SenderRole:  models.ChatRoleUser,
			Content:     content,
		})
		require.NoError(t, err)
		current = current.Add(time.Minute)
	}

	messages, err := chats.ListMessages(ctx, chat.ID, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, messages, 4)
	require.Equal(t, "one", messages[0].Content)
	require.Equal(t, "four", messages[3].Content)

	limited, err := chats.ListMessages(ctx, chat.ID, 2, time.Time{})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, "three", limited[0].Content)
	require.Equal(t, "four", limited[1].Content)

	var third models.ChatMessage
	require.NoError(t, db.Where("chat_id = ? AND content = ?", chat.ID, "three").Take(&third).Error)

	earlier, err := chats.ListMessages(ctx, chat.ID, 10, third.CreatedAt)
	require.NoError(t, err)
	require.Len(t, earlier, 2)
	require.Equal(t, "one", earlier[0].Content)
	require.Equal(t, "two", earlier[1].Content)
}

func TestListChatsByParticipant(t *testing.T) {
	db, chats := newChatFixture(t)

	users, err := NewUserService(db)
	require.NoError(t, err)
	_, err = users.Register(context.Background(), RegisterInput{Email: "bob@example.com", Password: "password-1234"})
	require.NoError(t, err)

	ctx := context.Background()
	chatA, err := chats.OpenChat(ctx, "alice@example.com", "desk@provider.com")
	require.NoError(t, err)
	_, err = chats.OpenChat(ctx, "bob@example.com", "desk@provider.com")
	require.NoError(t, err)

	_, err = chats.SendMessage(ctx, SendMessageParams{
		ChatID:      chatA.ID,
		SenderEmail: "alice@example.com",
		SenderRole:  models.ChatRoleUser,
		Content:     "latest",
	})
	require.NoError(t, err)

	aliceChats, err := chats.ListChatsByParticipant(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, aliceChats, 1)
	require.NotNil(t, aliceChats[0].LastMessage)
	require.Equal(t, "latest", aliceChats[0].LastMessage.Content)

	providerChats, err := chats.ListChatsByParticipant(ctx, "desk@provider.com")
	require.NoError(t, err)
	require.Len(t, providerChats, 2)
}

func TestGetChatNotFound(t *testing.T) {
	_, chats := newChatFixture(t)

	_, err := chats.GetChat(context.Background(), "missing")
	require.ErrorIs(t, err, ErrChatNotFound)
}
