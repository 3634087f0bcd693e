package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/blockvault/blockvault/internal/auth"
	"github.com/blockvault/blockvault/internal/handlers"
	"github.com/blockvault/blockvault/internal/middleware"
	"github.com/blockvault/blockvault/internal/realtime"
	"github.com/blockvault/blockvault/internal/services"
)

// RateLimitConfig tunes the per-client limiter applied to credential endpoints.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Deps collects the services the HTTP layer depends on.
type Deps struct {
	DB        *gorm.DB
	JWT       *iauth.JWTService
	Sessions  *iauth.SessionService
	Users     *services.UserService
	Login     *services.LoginService
	Wallets   *services.WalletService
	Providers *services.ProviderService
	Chats     *services.ChatService
	Hub       *realtime.Hub
	RateLimit RateLimitConfig
}

// NewRouter wires middleware, handlers, and routes into a gin engine.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.JWT == nil {
		return nil, errors.New("api: jwt service is required")
	}

	authHandler, err := handlers.NewAuthHandler(deps.Users, deps.Login, deps.Sessions)
	if err != nil {
		return nil, err
	}
	accountHandler, err := handlers.NewAccountHandler(deps.Users, deps.Sessions)
	if err != nil {
		return nil, err
	}
	walletHandler, err := handlers.NewWalletHandler(deps.Wallets)
	if err != nil {
		return nil, err
	}
	providerHandler, err := handlers.NewProviderHandler(deps.Providers)
	if err != nil {
		return nil, err
	}
	chatHandler, err := handlers.NewChatHandler(deps.Chats, deps.Hub)
	if err != nil {
		return nil, err
	}
	healthHandler := handlers.NewHealthHandler(deps.DB)

	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
	)
	router.NoRoute(middleware.NotFoundHandler)

	router.GET("/health", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limit := deps.RateLimit
	if limit.Requests <= 0 {
		limit.Requests = 30
	}
	if limit.Window <= 0 {
		limit.Window = time.Minute
	}
	credentialLimiter := middleware.RateLimit(limit.Requests, limit.Window)

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", credentialLimiter, authHandler.Register)
		authGroup.POST("/login", credentialLimiter, authHandler.Login)
		authGroup.POST("/verify", credentialLimiter, authHandler.Verify)
		authGroup.POST("/resend", credentialLimiter, authHandler.Resend)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	protected := api.Group("", middleware.Auth(deps.JWT))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.Me)

		account := protected.Group("/account")
		{
			account.GET("", accountHandler.GetProfile)
			account.PATCH("", accountHandler.UpdateProfile)
			account.POST("/password", accountHandler.ChangePassword)
			account.POST("/two-factor", accountHandler.SetTwoFactor)
			account.GET("/sessions", accountHandler.ListSessions)
			account.DELETE("/sessions/:id", accountHandler.RevokeSession)
		}

		wallets := protected.Group("/wallets")
		{
			wallets.GET("", walletHandler.List)
			wallets.GET("/:symbol", walletHandler.Get)
		}

		providers := protected.Group("/providers")
		{
			providers.GET("", providerHandler.List)
			providers.POST("", providerHandler.Create)
			providers.GET("/:email", providerHandler.Get)
		}

		chats := protected.Group("/chats")
		{
			chats.POST("", chatHandler.Open)
			chats.GET("", chatHandler.List)
			chats.GET("/:id/messages", chatHandler.Messages)
			chats.POST("/:id/messages", chatHandler.Send)
			chats.GET("/:id/stream", chatHandler.Stream)
		}
	}

	return router, nil
}
