package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/blockvault/blockvault/internal/auth"
	"github.com/blockvault/blockvault/internal/services"
	appErrors "github.com/blockvault/blockvault/pkg/errors"
	"github.com/blockvault/blockvault/pkg/response"
)

// AccountHandler exposes the authenticated user's account settings.
type AccountHandler struct {
	users    *services.UserService
	sessions *iauth.SessionService
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(users *services.UserService, sessions *iauth.SessionService) (*AccountHandler, error) {
	if users == nil {
		return nil, errors.New("account handler: user service is required")
	}
	if sessions == nil {
		return nil, errors.New("account handler: session service is required")
	}
	return &AccountHandler{users: users, sessions: sessions}, nil
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type twoFactorRequest struct {
	Enabled         *bool  `json:"enabled" validate:"required"`
	CurrentPassword string `json:"current_password" validate:"required"`
}

// GetProfile returns the caller's account record.
func (h *AccountHandler) GetProfile(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Error(c, mapAccountError(err))
		return
	}

	response.Success(c, http.StatusOK, user)
}

// UpdateProfile applies name changes to the caller's account.
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), currentUserID(c), services.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.Error(c, mapAccountError(err))
		return
	}

	response.Success(c, http.StatusOK, user)
}

// ChangePassword rotates the caller's password after checking the current one.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	err := h.users.ChangePassword(c.Request.Context(), currentUserID(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		response.Error(c, mapAccountError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"changed": true})
}

// SetTwoFactor toggles email two-factor authentication for the caller. Both
// enabling and disabling require the current password.
func (h *AccountHandler) SetTwoFactor(c *gin.Context) {
	var req twoFactorRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.SetTwoFactor(c.Request.Context(), currentUserID(c), *req.Enabled, req.CurrentPassword)
	if err != nil {
		response.Error(c, mapAccountError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"two_factor_enabled": user.TwoFactorEnabled,
	})
}

// ListSessions returns the caller's active sessions, newest first.
func (h *AccountHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.ListUserSessions(currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, sessions)
}

// RevokeSession revokes one of the caller's sessions by id.
func (h *AccountHandler) RevokeSession(c *gin.Context) {
	sessionID := c.Param("id")

	sessions, err := h.sessions.ListUserSessions(currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	owned := false
	for _, session := range sessions {
		if session.ID == sessionID {
			owned = true
			break
		}
	}
	if !owned {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	if err := h.sessions.RevokeSession(sessionID); err != nil {
		if errors.Is(err, iauth.ErrSessionNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

func mapAccountError(err error) error {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		return appErrors.ErrNotFound
	case errors.Is(err, services.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	case errors.Is(err, services.ErrPasswordRequired):
		return appErrors.NewBadRequest("Current password is required")
	default:
		return err
	}
}
