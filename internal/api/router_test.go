package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	iauth "github.com/blockvault/blockvault/internal/auth"
	"github.com/blockvault/blockvault/internal/database"
	"github.com/blockvault/blockvault/internal/realtime"
	"github.com/blockvault/blockvault/internal/services"
	"github.com/blockvault/blockvault/pkg/mail"
)

type stubMailer struct {
	bodies []string
}

func (m *stubMailer) Send(_ context.Context, msg mail.Message) error {
	m.bodies = append(m.bodies, msg.Body)
	return nil
}

var codePattern = regexp.MustCompile(`[0-9]{6}`)

func (m *stubMailer) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.bodies)
	code := codePattern.FindString(m.bodies[len(m.bodies)-1])
	require.NotEmpty(t, code)
	return code
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiFixture struct {
	router *gin.Engine
	mailer *stubMailer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	mailer := &stubMailer{}

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "blockvault-test"})
	require.NoError(t, err)
	sessionService, err := iauth.NewSessionService(db, jwtService, iauth.SessionConfig{})
	require.NoError(t, err)
	verificationService, err := services.NewVerificationService(db, mailer)
	require.NoError(t, err)
	loginService, err := services.NewLoginService(db, sessionService, verificationService, services.LoginConfig{})
	require.NoError(t, err)
	userService, err := services.NewUserService(db)
	require.NoError(t, err)
	walletService, err := services.NewWalletService(db)
	require.NoError(t, err)
	providerService, err := services.NewProviderService(db)
	require.NoError(t, err)
	chatService, err := services.NewChatService(db, userService, providerService)
	require.NoError(t, err)

	hub := realtime.NewHub()
	chatService.AttachBroadcaster(hub)

	router, err := NewRouter(Deps{
		DB:        db,
		JWT:       jwtService,
		Sessions:  sessionService,
		Users:     userService,
		Login:     loginService,
		Wallets:   walletService,
		Providers: providerService,
		Chats:     chatService,
		Hub:       hub,
		RateLimit: RateLimitConfig{Requests: 1000},
	})
	require.NoError(t, err)

	return &apiFixture{router: router, mailer: mailer}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, payload any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)

	var env envelope
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &env))
	}
	return recorder, env
}

func (f *apiFixture) register(t *testing.T, email, password string) {
	t.Helper()

	recorder, env := f.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	require.True(t, env.Success)
}

type loginData struct {
	Status string `json:"status"`
	UserID string `json:"user_id"`
	User   *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Tokens *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"tokens"`
	DispatchFailed bool `json:"dispatch_failed"`
}

func (f *apiFixture) login(t *testing.T, email, password string) (int, loginData) {
	t.Helper()

	recorder, env := f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    email,
		"password": password,
	})

	var data loginData
	if env.Success {
		require.NoError(t, json.Unmarshal(env.Data, &data))
	}
	return recorder.Code, data
}

func TestRegisterLoginAndMe(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice@example.com", "password-1234")

	code, data := f.login(t, "alice@example.com", "password-1234")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "authenticated", data.Status)
	require.NotNil(t, data.Tokens)

	recorder, env := f.do(t, http.MethodGet, "/api/auth/me", data.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, string(env.Data), "alice@example.com")
}

func TestLoginFailureEnvelope(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice@example.com", "password-1234")

	recorder, env := f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.False(t, env.Success)
	require.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	// Unknown accounts produce the identical error body.
	recorder2, env2 := f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "nobody@example.com",
		"password": "password-1234",
	})
	require.Equal(t, recorder.Code, recorder2.Code)
	require.Equal(t, env.Error.Code, env2.Error.Code)
	require.Equal(t, env.Error.Message, env2.Error.Message)
}

func TestTwoFactorLoginFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice@example.com", "password-1234")

	code, data := f.login(t, "alice@example.com", "password-1234")
	require.Equal(t, http.StatusOK, code)

	// Enable two-factor; requires the current password.
	recorder, _ := f.do(t, http.MethodPost, "/api/account/two-factor", data.Tokens.AccessToken, gin.H{
		"enabled":          true,
		"current_password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder, _ = f.do(t, http.MethodPost, "/api/account/two-factor", data.Tokens.AccessToken, gin.H{
		"enabled":          true,
		"current_password": "password-1234",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	// The next login is pending until the emailed code is confirmed.
	code, pending := f.login(t, "alice@example.com", "password-1234")
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, "pending_verification", pending.Status)
	require.NotEmpty(t, pending.UserID)
	require.Nil(t, pending.Tokens)

	// A wrong code is rejected and does not burn the pending one.
	wrongCode := "000000"
	if f.mailer.lastCode(t) == wrongCode {
		wrongCode = "000001"
	}
	recorder, env := f.do(t, http.MethodPost, "/api/auth/verify", "", gin.H{
		"user_id": pending.UserID,
		"code":    wrongCode,
	})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, "auth.token_mismatch", env.Error.Code)

	// Resend replaces the code, then the fresh one verifies.
	recorder, _ = f.do(t, http.MethodPost, "/api/auth/resend", "", gin.H{"user_id": pending.UserID})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder, env = f.do(t, http.MethodPost, "/api/auth/verify", "", gin.H{
		"user_id": pending.UserID,
		"code":    f.mailer.lastCode(t),
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var verified loginData
	require.NoError(t, json.Unmarshal(env.Data, &verified))
	require.Equal(t, "authenticated", verified.Status)
	require.NotNil(t, verified.Tokens)

	// The consumed code cannot be replayed.
	recorder, env = f.do(t, http.MethodPost, "/api/auth/verify", "", gin.H{
		"user_id": pending.UserID,
		"code":    f.mailer.lastCode(t),
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, "auth.no_pending_token", env.Error.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice@example.com", "password-1234")

	_, data := f.login(t, "alice@example.com", "password-1234")

	recorder, env := f.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{
		"refresh_token": data.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var rotated struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	require.NotEqual(t, data.Tokens.RefreshToken, rotated.RefreshToken)

	recorder, _ = f.do(t, http.MethodPost, "/api/auth/logout", rotated.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	// The revoked session can no longer refresh.
	recorder, _ = f.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{
		"refresh_token": rotated.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestWalletEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice@example.com", "password-1234")
	_, data := f.login(t, "alice@example.com", "password-1234")

	recorder, env := f.do(t, http.MethodGet, "/api/wallets", data.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var wallets []struct {
		Symbol string `json:"symbol"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &wallets))
	require.Len(t, wallets, 3)

	recorder, env = f.do(t, http.MethodGet, "/api/wallets/BTC", data.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, string(env.Data), "Bitcoin")

	recorder, _ = f.do(t, http.MethodGet, "/api/wallets/DOGE", data.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestChatEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice@example.com", "password-1234")
	_, data := f.login(t, "alice@example.com", "password-1234")
	token := data.Tokens.AccessToken

	recorder, _ := f.do(t, http.MethodPost, "/api/providers", token, gin.H{
		"name":  "Coin Desk",
		"email": "desk@provider.com",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder, env := f.do(t, http.MethodPost, "/api/chats", token, gin.H{
		"provider_email": "desk@provider.com",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var chat struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &chat))
	require.NotEmpty(t, chat.ID)

	recorder, _ = f.do(t, http.MethodPost, "/api/chats/"+chat.ID+"/messages", token, gin.H{
		"content": "Hello",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder, env = f.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, string(env.Data), "Hello")

	recorder, env = f.do(t, http.MethodGet, "/api/chats", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, string(env.Data), chat.ID)

	// Other accounts cannot read the conversation.
	f.register(t, "mallory@example.com", "password-1234")
	_, other := f.login(t, "mallory@example.com", "password-1234")
	recorder, _ = f.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/messages", other.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestSessionManagementEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice@example.com", "password-1234")
	_, data := f.login(t, "alice@example.com", "password-1234")
	f.login(t, "alice@example.com", "password-1234")

	recorder, env := f.do(t, http.MethodGet, "/api/account/sessions", data.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var sessions []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sessions))
	require.Len(t, sessions, 2)

	// Revoke the other session; its refresh token dies.
	recorder, _ = f.do(t, http.MethodDelete, "/api/account/sessions/"+sessions[0].ID, data.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder, _ = f.do(t, http.MethodGet, "/api/account/sessions", data.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	// Another user cannot revoke sessions they do not own.
	f.register(t, "mallory@example.com", "password-1234")
	_, other := f.login(t, "mallory@example.com", "password-1234")
	recorder, _ = f.do(t, http.MethodDelete, "/api/account/sessions/"+sessions[1].ID, other.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/api/auth/me", "/api/wallets", "/api/account", "/api/chats"} {
		recorder, env := f.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, recorder.Code, path)
		require.False(t, env.Success, path)
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	f := newAPIFixture(t)

	recorder, env := f.do(t, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.False(t, env.Success)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	recorder, env := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, env.Success)
	require.Contains(t, string(env.Data), "ok")
}
