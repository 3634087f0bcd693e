package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/blockvault/blockvault/internal/auth"
	"github.com/blockvault/blockvault/internal/models"
	"github.com/blockvault/blockvault/internal/services"
	appErrors "github.com/blockvault/blockvault/pkg/errors"
	"github.com/blockvault/blockvault/pkg/response"
)

// AuthHandler exposes registration, login, verification, and session endpoints.
type AuthHandler struct {
	users    *services.UserService
	login    *services.LoginService
	sessions *iauth.SessionService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *services.UserService, login *services.LoginService, sessions *iauth.SessionService) (*AuthHandler, error) {
	if users == nil || login == nil || sessions == nil {
		return nil, errors.New("auth handler: missing dependencies")
	}
	return &AuthHandler{users: users, login: login, sessions: sessions}, nil
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

type resendRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type loginResponse struct {
	Status         string           `json:"status"`
	User           *models.User     `json:"user,omitempty"`
	UserID         string           `json:"user_id,omitempty"`
	Tokens         *iauth.TokenPair `json:"tokens,omitempty"`
	DispatchFailed bool             `json:"dispatch_failed,omitempty"`
}

// Register creates a new account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			response.Error(c, appErrors.ErrConflict)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// Login authenticates credentials. Accounts with two-factor enabled receive a
// pending_verification response and an emailed code instead of tokens.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.login.Login(c.Request.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, mapLoginError(err))
		return
	}

	if result.Status == services.StatusPendingVerification {
		response.Success(c, http.StatusAccepted, loginResponse{
			Status:         string(result.Status),
			UserID:         result.User.ID,
			DispatchFailed: result.DispatchFailed,
		})
		return
	}

	response.Success(c, http.StatusOK, loginResponse{
		Status: string(result.Status),
		User:   result.User,
		Tokens: &result.Tokens,
	})
}

// Verify consumes an emailed verification code and promotes the pending login
// to an authenticated session.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.login.VerifyLogin(c.Request.Context(), req.UserID, req.Code, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, mapLoginError(err))
		return
	}

	response.Success(c, http.StatusOK, loginResponse{
		Status: string(result.Status),
		User:   result.User,
		Tokens: &result.Tokens,
	})
}

// Resend reissues the pending verification code for an account.
func (h *AuthHandler) Resend(c *gin.Context) {
	var req resendRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.login.ResendCode(c.Request.Context(), req.UserID); err != nil {
		response.Error(c, mapLoginError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"resent": true})
}

// Refresh rotates the refresh token and issues a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	tokens, _, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, iauth.ErrSessionNotFound),
			errors.Is(err, iauth.ErrSessionRevoked),
			errors.Is(err, iauth.ErrSessionExpired),
			errors.Is(err, iauth.ErrSessionInvalidToken):
			response.Error(c, appErrors.ErrUnauthorized)
		default:
			response.Error(c, err)
		}
		return
	}

	response.Success(c, http.StatusOK, tokens)
}

// Logout revokes the current session.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := currentSessionID(c)
	if sessionID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(sessionID); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// mapLoginError translates login/verification sentinels into client-facing errors.
func mapLoginError(err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	case errors.Is(err, services.ErrAccountLocked):
		return appErrors.ErrAccountLocked
	case errors.Is(err, services.ErrAccountDisabled):
		return appErrors.ErrForbidden
	case errors.Is(err, services.ErrNoPendingToken):
		return appErrors.ErrNoPendingToken
	case errors.Is(err, services.ErrTokenExpired):
		return appErrors.ErrTokenExpired
	case errors.Is(err, services.ErrTokenMismatch):
		return appErrors.ErrTokenMismatch
	case errors.Is(err, services.ErrDispatchFailed):
		return appErrors.ErrDispatchFailed
	default:
		return err
	}
}
