package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/config"
)

// Purger deletes entries older than cutoff
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically drops stale rate snapshots and old history
type Janitor struct {
	rates            Purger
	history          Purger
	ratesRetention   time.Duration
	historyRetention time.Duration
	schedule         string
	logger           *logrus.Logger
	now              func() time.Time

	cron *cron.Cron
}

// NewJanitor creates a janitor using the configured retentions and schedule
func NewJanitor(configuration *config.Config, rates, history Purger, logger *logrus.Logger) *Janitor {
	return &Janitor{
		rates:            rates,
		history:          history,
		ratesRetention:   configuration.RatesRetention,
		historyRetention: configuration.HistoryRetention,
		schedule:         configuration.PurgeSchedule,
		logger:           logger,
		now:              time.Now,
	}
}

// WithClock replaces the time source
func (janitor *Janitor) WithClock(now func() time.Time) *Janitor {
	janitor.now = now
	return janitor
}

// Start registers the purge job and starts the cron runner
func (janitor *Janitor) Start(ctx context.Context) error {
	janitor.cron = cron.New()
	_, err := janitor.cron.AddFunc(janitor.schedule, func() {
		if err := janitor.RunOnce(ctx); err != nil {
			janitor.logger.WithError(err).Warn("Scheduled purge failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", janitor.schedule, err)
	}
	janitor.cron.Start()
	janitor.logger.WithField("schedule", janitor.schedule).Info("Purge job scheduled")
	return nil
}

// Stop stops the runner and waits for a running purge to finish
func (janitor *Janitor) Stop() {
	if janitor.cron == nil {
		return
	}
	<-janitor.cron.Stop().Done()
}

// RunOnce purges both stores; both are attempted even when the first fails
func (janitor *Janitor) RunOnce(ctx context.Context) error {
	now := janitor.now()
	var firstErr error

	if janitor.rates != nil && janitor.ratesRetention > 0 {
		removed, err := janitor.rates.PurgeOlderThan(ctx, now.Add(-janitor.ratesRetention))
		if err != nil {
			firstErr = fmt.Errorf("failed to purge rates: %w", err)
		} else if removed > 0 {
			janitor.logger.WithField("removed", removed).Info("Purged stale exchange rates")
		}
	}

	if janitor.history != nil && janitor.historyRetention > 0 {
		removed, err := janitor.history.PurgeOlderThan(ctx, now.Add(-janitor.historyRetention))
		switch {
		case err != nil && firstErr == nil:
			firstErr = fmt.Errorf("failed to purge history: %w", err)
		case err != nil:
			// only one error is returned, so the second is logged
			janitor.logger.WithError(err).Error("Failed to purge old conversions")
		case removed > 0:
			janitor.logger.WithField("removed", removed).Info("Purged old conversions")
		}
	}
	return firstErr
}
