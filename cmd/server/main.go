package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blockvault/blockvault/internal/api"
	"github.com/blockvault/blockvault/internal/app"
	"github.com/blockvault/blockvault/internal/app/maintenance"
	iauth "github.com/blockvault/blockvault/internal/auth"
	"github.com/blockvault/blockvault/internal/database"
	"github.com/blockvault/blockvault/internal/realtime"
	"github.com/blockvault/blockvault/internal/services"
	"github.com/blockvault/blockvault/pkg/logger"
	"github.com/blockvault/blockvault/pkg/mail"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	_ = logger.Sync()
}

func run(configPath string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging.Level); err != nil {
		return err
	}

	log := logger.WithModule("server")

	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.DatabaseSettings())
	if err != nil {
		return err
	}
	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	mailer, err := mail.NewSMTPMailer(cfg.SMTPSettings())
	if err != nil {
		return err
	}

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.JWT.Secret,
		Issuer:         cfg.JWT.Issuer,
		AccessTokenTTL: cfg.JWT.AccessTokenTTL,
	})
	if err != nil {
		return err
	}

	sessionService, err := iauth.NewSessionService(db, jwtService, iauth.SessionConfig{
		RefreshTokenTTL: cfg.Session.RefreshTokenTTL,
		RefreshLength:   cfg.Session.RefreshLength,
	})
	if err != nil {
		return err
	}

	verificationService, err := services.NewVerificationService(db, mailer,
		services.WithVerificationTTL(cfg.Verification.TTL),
		services.WithVerificationDigits(cfg.Verification.Digits),
	)
	if err != nil {
		return err
	}

	loginService, err := services.NewLoginService(db, sessionService, verificationService, services.LoginConfig{
		LockoutThreshold: cfg.Auth.LockoutThreshold,
		LockoutDuration:  cfg.Auth.LockoutDuration,
	})
	if err != nil {
		return err
	}

	userService, err := services.NewUserService(db)
	if err != nil {
		return err
	}
	walletService, err := services.NewWalletService(db)
	if err != nil {
		return err
	}
	providerService, err := services.NewProviderService(db)
	if err != nil {
		return err
	}
	chatService, err := services.NewChatService(db, userService, providerService)
	if err != nil {
		return err
	}

	hub := realtime.NewHub()
	chatService.AttachBroadcaster(hub)

	router, err := api.NewRouter(api.Deps{
		DB:        db,
		JWT:       jwtService,
		Sessions:  sessionService,
		Users:     userService,
		Login:     loginService,
		Wallets:   walletService,
		Providers: providerService,
		Chats:     chatService,
		Hub:       hub,
		RateLimit: api.RateLimitConfig{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
		},
	})
	if err != nil {
		return err
	}

	if cfg.Maintenance.Enabled {
		cleaner, err := maintenance.NewCleaner(db, sessionService,
			maintenance.WithSchedule(cfg.Maintenance.Schedule))
		if err != nil {
			return err
		}
		if err := cleaner.Start(); err != nil {
			return err
		}
		defer cleaner.Stop()
	}

	// Read/write timeouts are left off the listener because chat streams hold
	// long-lived websocket connections; per-connection deadlines are managed by
	// the realtime hub instead.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("shutdown complete")
	return nil
}
