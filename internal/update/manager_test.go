package update

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/currency-converter/internal/storage"
	"github.com/dalfonso89/currency-converter/internal/testutils"
)

type managerFixture struct {
	manager *Manager
	feed    *testutils.MockReleaseServer
	store   *storage.Store
	now     time.Time
}

func newManagerFixture(t *testing.T, strict bool) *managerFixture {
	t.Helper()

	feed := testutils.NewMockReleaseServer(testutils.ReleaseJSON("v1.1.0", 11, "kharrency.apk", testDownloadURL, 2<<20))
	t.Cleanup(feed.Close)

	feedConfig := testutils.MockConfig().Update
	feedConfig.URL = feed.URL()
	feedConfig.StrictThrottle = strict

	fixture := &managerFixture{
		feed:  feed,
		store: testutils.OpenTestStore(t),
		now:   time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	checker := NewChecker(feedConfig, testutils.MockLogger())
	throttle := NewThrottle(fixture.store, feedConfig)
	fixture.manager = NewManager(checker, throttle, StaticVersion(10), testutils.MockLogger()).
		WithClock(func() time.Time { return fixture.now })
	return fixture
}

func TestManager_ConsecutiveChecksHitFeedOnce(t *testing.T) {
	for _, strict := range []bool{true, false} {
		fixture := newManagerFixture(t, strict)
		ctx := context.Background()

		first := fixture.manager.CheckForUpdates(ctx, false)
		require.True(t, first.HasUpdate)

		fixture.now = fixture.now.Add(5 * time.Minute)
		second := fixture.manager.CheckForUpdates(ctx, false)

		assert.False(t, second.HasUpdate)
		assert.Equal(t, int64(1), fixture.feed.Requests(), "strict=%v", strict)
		if strict {
			assert.Equal(t, rateLimitProtectionMessage, second.Error)
			assert.True(t, second.RateLimited)
		} else {
			assert.True(t, second.Skipped)
			assert.Empty(t, second.Error)
		}
	}
}

func TestManager_GapRefusalDoesNotAdvanceLastCheck(t *testing.T) {
	fixture := newManagerFixture(t, true)
	ctx := context.Background()
	started := fixture.now

	fixture.manager.CheckForUpdates(ctx, false)
	fixture.now = fixture.now.Add(30 * time.Minute)
	fixture.manager.CheckForUpdates(ctx, false)

	lastCheck, err := fixture.manager.LastCheckTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, started, lastCheck)
}

func TestManager_IntervalPolicy(t *testing.T) {
	fixture := newManagerFixture(t, true)
	ctx := context.Background()

	fixture.manager.CheckForUpdates(ctx, false)

	fixture.now = fixture.now.Add(2 * time.Hour)
	result := fixture.manager.CheckForUpdates(ctx, false)
	assert.True(t, result.Skipped)
	assert.Equal(t, int64(1), fixture.feed.Requests())

	fixture.now = fixture.now.Add(23 * time.Hour)
	result = fixture.manager.CheckForUpdates(ctx, false)
	assert.True(t, result.HasUpdate)
	assert.Equal(t, int64(2), fixture.feed.Requests())
}

func TestManager_ForceBypassesThrottle(t *testing.T) {
	fixture := newManagerFixture(t, true)
	ctx := context.Background()

	fixture.manager.CheckForUpdates(ctx, false)
	result := fixture.manager.CheckForUpdates(ctx, true)

	assert.True(t, result.HasUpdate)
	assert.Equal(t, int64(2), fixture.feed.Requests())
}

func TestManager_FeedRateLimitDoesNotPersist(t *testing.T) {
	fixture := newManagerFixture(t, true)
	ctx := context.Background()
	fixture.feed.SetResponse(http.StatusForbidden, "", nil)

	result := fixture.manager.CheckForUpdates(ctx, false)
	assert.True(t, result.RateLimited)

	lastCheck, err := fixture.manager.LastCheckTime(ctx)
	require.NoError(t, err)
	assert.True(t, lastCheck.IsZero())

	// not throttled, so the next call reaches the feed again
	fixture.manager.CheckForUpdates(ctx, false)
	assert.Equal(t, int64(2), fixture.feed.Requests())
}

func TestManager_OtherFailuresAdvanceLastCheck(t *testing.T) {
	fixture := newManagerFixture(t, false)
	ctx := context.Background()
	fixture.feed.SetResponse(http.StatusNotFound, "", nil)

	result := fixture.manager.CheckForUpdates(ctx, false)
	assert.Equal(t, "Release not found. Check repository settings", result.Error)

	lastCheck, err := fixture.manager.LastCheckTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixture.now, lastCheck)
}

func TestThrottle_SurvivesRestart(t *testing.T) {
	store := testutils.OpenTestStore(t)
	feedConfig := testutils.MockConfig().Update
	recorded := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, NewThrottle(store, feedConfig).RecordCheck(context.Background(), recorded))

	reopened := NewThrottle(store, feedConfig).WithClock(func() time.Time { return recorded.Add(time.Hour) })
	lastCheck, err := reopened.LastCheckTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, recorded, lastCheck)

	due, err := reopened.ShouldCheck(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, due)

	due, err = reopened.ShouldCheck(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestThrottle_UnreadableValueCountsAsNeverChecked(t *testing.T) {
	store := testutils.OpenTestStore(t)
	require.NoError(t, store.SetPreference(context.Background(), LastCheckKey, "yesterday"))

	throttle := NewThrottle(store, testutils.MockConfig().Update)
	due, err := throttle.ShouldCheck(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestBackoff(t *testing.T) {
	backoff := NewBackoff()
	assert.Equal(t, 30*time.Second, backoff.Current())

	var steps []time.Duration
	for i := 0; i < 5; i++ {
		steps = append(steps, backoff.Next())
	}
	assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second, 300 * time.Second, 600 * time.Second, 600 * time.Second}, steps)

	backoff.Reset()
	assert.Equal(t, 30*time.Second, backoff.Current())
}
