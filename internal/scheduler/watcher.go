package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/update"
)

// UpdateSource runs a throttled update check
type UpdateSource interface {
	CheckForUpdates(ctx context.Context, force bool) models.UpdateCheckResult
}

// UpdateWatcher checks for updates on an adaptive cadence.
// Each idle result lengthens the delay; activity or a found update resets it.
type UpdateWatcher struct {
	source  UpdateSource
	backoff *update.Backoff
	logger  *logrus.Logger
	wake    chan struct{}

	mutex  sync.RWMutex
	latest *models.UpdateInfo
}

// NewUpdateWatcher creates a watcher over source using backoff
func NewUpdateWatcher(source UpdateSource, backoff *update.Backoff, logger *logrus.Logger) *UpdateWatcher {
	return &UpdateWatcher{
		source:  source,
		backoff: backoff,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// Latest returns the most recent update found, if any
func (watcher *UpdateWatcher) Latest() (models.UpdateInfo, bool) {
	watcher.mutex.RLock()
	defer watcher.mutex.RUnlock()
	if watcher.latest == nil {
		return models.UpdateInfo{}, false
	}
	return *watcher.latest, true
}

// Touch records user activity: the cadence restarts from the shortest delay
func (watcher *UpdateWatcher) Touch() {
	watcher.backoff.Reset()
	select {
	case watcher.wake <- struct{}{}:
	default:
	}
}

// Run checks until ctx is cancelled
func (watcher *UpdateWatcher) Run(ctx context.Context) {
	timer := time.NewTimer(watcher.backoff.Current())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watcher.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(watcher.backoff.Current())
		case <-timer.C:
			timer.Reset(watcher.Step(ctx))
		}
	}
}

// Step runs one check and returns the delay before the next
func (watcher *UpdateWatcher) Step(ctx context.Context) time.Duration {
	result := watcher.source.CheckForUpdates(ctx, false)

	switch {
	case result.HasUpdate && result.UpdateInfo != nil:
		info := *result.UpdateInfo
		watcher.mutex.Lock()
		watcher.latest = &info
		watcher.mutex.Unlock()
		watcher.backoff.Reset()
		watcher.logger.WithField("version", info.LatestVersion).Info("Update available")
	case result.Error != "":
		watcher.logger.WithField("error", result.Error).Debug("Update check did not complete")
		return watcher.backoff.Next()
	default:
		return watcher.backoff.Next()
	}
	return watcher.backoff.Current()
}
