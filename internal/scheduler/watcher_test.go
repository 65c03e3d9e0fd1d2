package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/testutils"
	"github.com/dalfonso89/currency-converter/internal/update"
)

type scriptedSource struct {
	mutex   sync.Mutex
	results []models.UpdateCheckResult
	calls   int
}

func (source *scriptedSource) CheckForUpdates(ctx context.Context, force bool) models.UpdateCheckResult {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	source.calls++
	if len(source.results) == 0 {
		return models.UpdateCheckResult{}
	}
	result := source.results[0]
	source.results = source.results[1:]
	return result
}

func (source *scriptedSource) Calls() int {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	return source.calls
}

func TestUpdateWatcher_Step_BacksOffUntilUpdate(t *testing.T) {
	source := &scriptedSource{results: []models.UpdateCheckResult{
		{},
		{Skipped: true},
		{Error: "Network error: offline"},
		{HasUpdate: true, UpdateInfo: &models.UpdateInfo{LatestVersion: "1.4.0", LatestVersionCode: 14}},
		{},
	}}
	watcher := NewUpdateWatcher(source, update.NewBackoff(), testutils.MockLogger())
	ctx := context.Background()

	var delays []time.Duration
	for i := 0; i < 5; i++ {
		delays = append(delays, watcher.Step(ctx))
	}

	assert.Equal(t, []time.Duration{
		60 * time.Second,
		120 * time.Second,
		300 * time.Second,
		30 * time.Second,
		60 * time.Second,
	}, delays)

	latest, found := watcher.Latest()
	require.True(t, found)
	assert.Equal(t, "1.4.0", latest.LatestVersion)
}

func TestUpdateWatcher_TouchResetsCadence(t *testing.T) {
	backoff := update.NewBackoff()
	watcher := NewUpdateWatcher(&scriptedSource{}, backoff, testutils.MockLogger())

	watcher.Step(context.Background())
	watcher.Step(context.Background())
	require.Equal(t, 120*time.Second, backoff.Current())

	watcher.Touch()
	watcher.Touch()

	assert.Equal(t, 30*time.Second, backoff.Current())
	_, found := watcher.Latest()
	assert.False(t, found)
}

func TestUpdateWatcher_RunStopsWithContext(t *testing.T) {
	source := &scriptedSource{}
	watcher := NewUpdateWatcher(source, update.NewBackoff(time.Millisecond, 2*time.Millisecond), testutils.MockLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watcher.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return source.Calls() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
