package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/currency-converter/internal/history"
	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/testutils"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newHistory(t *testing.T) *history.SQLHistory {
	t.Helper()
	return history.NewSQLHistory(testutils.OpenTestStore(t), testutils.MockLogger())
}

func record(amount float64, at time.Time) models.ConversionRecord {
	return models.ConversionRecord{
		FromCurrency:    "USD",
		ToCurrency:      "EUR",
		Amount:          amount,
		ConvertedAmount: amount * 0.85,
		Rate:            0.85,
		Timestamp:       at,
	}
}

func receive(t *testing.T, channel <-chan []models.ConversionRecord) []models.ConversionRecord {
	t.Helper()
	select {
	case records, ok := <-channel:
		require.True(t, ok, "subscription closed")
		return records
	case <-time.After(time.Second):
		t.Fatal("no history published")
		return nil
	}
}

func amounts(records []models.ConversionRecord) []float64 {
	values := make([]float64, 0, len(records))
	for _, entry := range records {
		values = append(values, entry.Amount)
	}
	return values
}

func TestSQLHistory_RecentReturnsNewestFirst(t *testing.T) {
	store := newHistory(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		_, err := store.Append(ctx, record(float64(i), baseTime.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	recent, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 9, 8, 7, 6}, amounts(recent))
	assert.Equal(t, baseTime.Add(10*time.Minute), recent[0].Timestamp)
}

func TestSQLHistory_RecentBreaksTimestampTiesByInsertOrder(t *testing.T) {
	store := newHistory(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := store.Append(ctx, record(float64(i), baseTime))
		require.NoError(t, err)
	}

	recent, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 1}, amounts(recent))
}

func TestSQLHistory_AppendAssignsIDs(t *testing.T) {
	store := newHistory(t)

	first, err := store.Append(context.Background(), record(1, baseTime))
	require.NoError(t, err)
	second, err := store.Append(context.Background(), record(2, baseTime))
	require.NoError(t, err)

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, "USD", second.FromCurrency)
	assert.InDelta(t, 1.7, second.ConvertedAmount, 1e-9)
}

func TestSQLHistory_PurgeOlderThan(t *testing.T) {
	store := newHistory(t)
	ctx := context.Background()

	_, err := store.Append(ctx, record(1, baseTime.Add(-48*time.Hour)))
	require.NoError(t, err)
	_, err = store.Append(ctx, record(2, baseTime.Add(-time.Hour)))
	require.NoError(t, err)

	purged, err := store.PurgeOlderThan(ctx, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	recent, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, amounts(recent))
}

func TestSQLHistory_Clear(t *testing.T) {
	store := newHistory(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, record(float64(i+1), baseTime))
		require.NoError(t, err)
	}

	cleared, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cleared)

	recent, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestSQLHistory_SubscribeDeliversCurrentThenUpdates(t *testing.T) {
	store := newHistory(t)
	ctx := context.Background()

	_, err := store.Append(ctx, record(1, baseTime))
	require.NoError(t, err)

	updates, unsubscribe, err := store.Subscribe(ctx, 2)
	require.NoError(t, err)
	defer unsubscribe()

	assert.Equal(t, []float64{1}, amounts(receive(t, updates)))

	_, err = store.Append(ctx, record(2, baseTime.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1}, amounts(receive(t, updates)))

	_, err = store.Append(ctx, record(3, baseTime.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2}, amounts(receive(t, updates)))
}

func TestSQLHistory_SlowSubscriberSeesLatestList(t *testing.T) {
	store := newHistory(t)
	ctx := context.Background()

	updates, unsubscribe, err := store.Subscribe(ctx, 5)
	require.NoError(t, err)
	defer unsubscribe()

	for i := 1; i <= 4; i++ {
		_, err := store.Append(ctx, record(float64(i), baseTime.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	assert.Equal(t, []float64{4, 3, 2, 1}, amounts(receive(t, updates)))
	select {
	case extra := <-updates:
		t.Fatalf("unexpected extra list %v", amounts(extra))
	default:
	}
}

func TestSQLHistory_SubscribersSeeSameSequence(t *testing.T) {
	store := newHistory(t)
	ctx := context.Background()

	first, stopFirst, err := store.Subscribe(ctx, 5)
	require.NoError(t, err)
	defer stopFirst()
	second, stopSecond, err := store.Subscribe(ctx, 5)
	require.NoError(t, err)
	defer stopSecond()
	assert.Equal(t, 2, store.Subscribers())

	receive(t, first)
	receive(t, second)

	_, err = store.Append(ctx, record(7, baseTime))
	require.NoError(t, err)

	assert.Equal(t, amounts(receive(t, first)), amounts(receive(t, second)))

	_, err = store.Clear(ctx)
	require.NoError(t, err)
	assert.Empty(t, receive(t, first))
	assert.Empty(t, receive(t, second))
}

func TestSQLHistory_UnsubscribeClosesChannel(t *testing.T) {
	store := newHistory(t)

	updates, unsubscribe, err := store.Subscribe(context.Background(), 5)
	require.NoError(t, err)
	receive(t, updates)

	unsubscribe()
	unsubscribe()

	_, ok := <-updates
	assert.False(t, ok)
	assert.Equal(t, 0, store.Subscribers())

	_, err = store.Append(context.Background(), record(1, baseTime))
	require.NoError(t, err)
}
