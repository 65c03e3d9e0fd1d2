package update

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/models"
)

const rateLimitProtectionMessage = "Rate limit protection: Please wait before checking again"

// VersionSource returns the build ordinal of the running application
type VersionSource func(ctx context.Context) int

// UpdateChecker is satisfied by Checker
type UpdateChecker interface {
	Check(ctx context.Context, currentVersionCode int) models.UpdateCheckResult
}

// Manager gates update checks with the throttle
type Manager struct {
	checker        UpdateChecker
	throttle       *Throttle
	currentVersion VersionSource
	logger         *logrus.Logger
	now            func() time.Time
}

// NewManager creates a manager; currentVersion reports the running build
func NewManager(checker UpdateChecker, throttle *Throttle, currentVersion VersionSource, logger *logrus.Logger) *Manager {
	return &Manager{
		checker:        checker,
		throttle:       throttle,
		currentVersion: currentVersion,
		logger:         logger,
		now:            time.Now,
	}
}

// WithClock replaces the time source of the manager and its throttle
func (manager *Manager) WithClock(now func() time.Time) *Manager {
	manager.now = now
	manager.throttle.WithClock(now)
	return manager
}

// CheckForUpdates runs a throttled check. A check refused by the minimum gap
// or rejected by the feed's rate limit does not advance the last check time.
func (manager *Manager) CheckForUpdates(ctx context.Context, force bool) models.UpdateCheckResult {
	checkTime := manager.now()

	refused, err := manager.throttle.WithinMinimumGap(ctx, force)
	if err != nil {
		manager.logger.WithError(err).Warn("Failed to read last update check")
	}
	if refused {
		return models.UpdateCheckResult{HasUpdate: false, Error: rateLimitProtectionMessage, RateLimited: true}
	}

	due, err := manager.throttle.ShouldCheck(ctx, force)
	if err != nil {
		manager.logger.WithError(err).Warn("Failed to read last update check")
		due = true
	}
	if !due {
		manager.logger.Debug("Skipping update check, checked recently")
		return models.UpdateCheckResult{HasUpdate: false, Skipped: true}
	}

	result := manager.checker.Check(ctx, manager.currentVersion(ctx))

	if !result.RateLimited {
		if err := manager.throttle.RecordCheck(ctx, checkTime); err != nil {
			manager.logger.WithError(err).Warn("Failed to persist update check time")
		}
	}
	return result
}

// LastCheckTime exposes the persisted check time
func (manager *Manager) LastCheckTime(ctx context.Context) (time.Time, error) {
	return manager.throttle.LastCheckTime(ctx)
}

// StaticVersion returns a VersionSource that always reports versionCode
func StaticVersion(versionCode int) VersionSource {
	return func(context.Context) int { return versionCode }
}
