package handlers

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/blockvault/blockvault/internal/auth"
	"github.com/blockvault/blockvault/internal/middleware"
)

// currentUserID returns the authenticated user id stored by the auth middleware.
func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserIDKey)
}

// currentSessionID returns the session id stored by the auth middleware.
func currentSessionID(c *gin.Context) string {
	return c.GetString(middleware.CtxSessionIDKey)
}

// currentClaims returns the full JWT claims stored by the auth middleware.
func currentClaims(c *gin.Context) *iauth.Claims {
	value, ok := c.Get(middleware.CtxClaimsKey)
	if !ok {
		return nil
	}

	claims, ok := value.(*iauth.Claims)
	if !ok {
		return nil
	}
	return claims
}
