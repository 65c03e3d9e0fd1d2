package update

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dalfonso89/currency-converter/internal/config"
)

// LastCheckKey is the preference holding the last check time in unix millis
const LastCheckKey = "last_update_check"

// PreferenceStore is the key/value store the throttle persists into
type PreferenceStore interface {
	GetPreference(ctx context.Context, key string) (string, bool, error)
	SetPreference(ctx context.Context, key, value string) error
}

// Throttle remembers when the feed was last queried across restarts
type Throttle struct {
	preferences PreferenceStore
	interval    time.Duration
	minimumGap  time.Duration
	strict      bool
	now         func() time.Time
}

// NewThrottle creates a throttle using the feed's interval settings
func NewThrottle(preferences PreferenceStore, configuration config.UpdateFeed) *Throttle {
	return &Throttle{
		preferences: preferences,
		interval:    configuration.CheckInterval,
		minimumGap:  configuration.MinCheckGap,
		strict:      configuration.StrictThrottle,
		now:         time.Now,
	}
}

// WithClock replaces the time source
func (throttle *Throttle) WithClock(now func() time.Time) *Throttle {
	throttle.now = now
	return throttle
}

// LastCheckTime returns the persisted check time, zero when none was recorded
func (throttle *Throttle) LastCheckTime(ctx context.Context) (time.Time, error) {
	value, found, err := throttle.preferences.GetPreference(ctx, LastCheckKey)
	if err != nil || !found {
		return time.Time{}, err
	}
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		// an unreadable value counts as never checked
		return time.Time{}, nil
	}
	return time.UnixMilli(millis).UTC(), nil
}

// RecordCheck persists at as the last check time
func (throttle *Throttle) RecordCheck(ctx context.Context, at time.Time) error {
	if err := throttle.preferences.SetPreference(ctx, LastCheckKey, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("failed to record update check: %w", err)
	}
	return nil
}

// ShouldCheck applies the default interval policy
func (throttle *Throttle) ShouldCheck(ctx context.Context, force bool) (bool, error) {
	if force {
		return true, nil
	}
	elapsed, err := throttle.sinceLastCheck(ctx)
	if err != nil {
		return false, err
	}
	return elapsed >= throttle.interval, nil
}

// WithinMinimumGap reports whether the strict variant must refuse a check now
func (throttle *Throttle) WithinMinimumGap(ctx context.Context, force bool) (bool, error) {
	if force || !throttle.strict {
		return false, nil
	}
	elapsed, err := throttle.sinceLastCheck(ctx)
	if err != nil {
		return false, err
	}
	return elapsed < throttle.minimumGap, nil
}

func (throttle *Throttle) sinceLastCheck(ctx context.Context) (time.Duration, error) {
	lastCheck, err := throttle.LastCheckTime(ctx)
	if err != nil {
		return 0, err
	}
	if lastCheck.IsZero() {
		return time.Duration(math.MaxInt64), nil
	}
	return throttle.now().Sub(lastCheck), nil
}
