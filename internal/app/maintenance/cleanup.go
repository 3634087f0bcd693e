package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/blockvault/blockvault/internal/auth"
	"github.com/blockvault/blockvault/internal/models"
	"github.com/blockvault/blockvault/pkg/logger"
)

// DefaultSchedule runs cleanup once an hour.
const DefaultSchedule = "@every 1h"

// Cleaner removes expired sessions and stale verification tokens on a schedule.
type Cleaner struct {
	db       *gorm.DB
	sessions *iauth.SessionService
	schedule string
	now      func() time.Time

	cron *cron.Cron
	log  *zap.Logger
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithSchedule overrides the cron schedule expression.
func WithSchedule(schedule string) Option {
	return func(c *Cleaner) {
		if schedule != "" {
			c.schedule = schedule
		}
	}
}

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Cleaner) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewCleaner constructs a Cleaner.
func NewCleaner(db *gorm.DB, sessions *iauth.SessionService, opts ...Option) (*Cleaner, error) {
	if db == nil {
		return nil, errors.New("maintenance: db is required")
	}
	if sessions == nil {
		return nil, errors.New("maintenance: session service is required")
	}

	cleaner := &Cleaner{
		db:       db,
		sessions: sessions,
		schedule: DefaultSchedule,
		now:      time.Now,
		log:      logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(cleaner)
	}
	return cleaner, nil
}

// Start schedules periodic cleanup until Stop is called.
func (c *Cleaner) Start() error {
	if c.cron != nil {
		return nil
	}

	runner := cron.New()
	_, err := runner.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("cleanup run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}

	runner.Start()
	c.cron = runner
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (c *Cleaner) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.cron = nil
}

// RunOnce removes expired sessions and expired verification tokens, reporting
// every failure rather than stopping at the first.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	var errs error

	removedSessions, err := c.sessions.CleanupExpired(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
	}

	removedTokens, err := c.cleanupVerificationTokens(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
	}

	if errs == nil {
		c.log.Info("cleanup complete",
			zap.Int64("sessions_removed", removedSessions),
			zap.Int64("tokens_removed", removedTokens),
		)
	}

	return errs
}

// cleanupVerificationTokens deletes verification tokens past their expiry.
// Live tokens are never touched; expired rows are kept until this sweep so
// a late Verify still reports expiry rather than absence.
func (c *Cleaner) cleanupVerificationTokens(ctx context.Context) (int64, error) {
	result := c.db.WithContext(ctx).
		Where("expires_at < ?", c.now()).
		Delete(&models.VerificationToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("maintenance: cleanup verification tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
