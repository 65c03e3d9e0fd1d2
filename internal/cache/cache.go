package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dalfonso89/currency-converter/internal/models"
)

// RateCache stores the most recent snapshot per base currency.
// It never decides freshness; callers compare FetchedAt against their own policy.
type RateCache interface {
	// Get is a local lookup and never touches the network
	Get(ctx context.Context, baseCurrency string) (models.ExchangeRateSnapshot, bool, error)
	// Put replaces any snapshot held for the same base currency
	Put(ctx context.Context, snapshot models.ExchangeRateSnapshot) error
	// PurgeOlderThan deletes snapshots fetched before cutoff
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func copyRates(rates map[string]float64) map[string]float64 {
	copied := make(map[string]float64, len(rates))
	for code, rate := range rates {
		copied[code] = rate
	}
	return copied
}

// MemoryCache keeps snapshots in process memory
type MemoryCache struct {
	mutex     sync.RWMutex
	snapshots map[string]models.ExchangeRateSnapshot
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{snapshots: make(map[string]models.ExchangeRateSnapshot)}
}

func (memoryCache *MemoryCache) Get(_ context.Context, baseCurrency string) (models.ExchangeRateSnapshot, bool, error) {
	memoryCache.mutex.RLock()
	defer memoryCache.mutex.RUnlock()

	snapshot, found := memoryCache.snapshots[normalizeCode(baseCurrency)]
	if !found {
		return models.ExchangeRateSnapshot{}, false, nil
	}
	snapshot.Rates = copyRates(snapshot.Rates)
	return snapshot, true, nil
}

func (memoryCache *MemoryCache) Put(_ context.Context, snapshot models.ExchangeRateSnapshot) error {
	snapshot.BaseCurrency = normalizeCode(snapshot.BaseCurrency)
	snapshot.Rates = copyRates(snapshot.Rates)

	memoryCache.mutex.Lock()
	memoryCache.snapshots[snapshot.BaseCurrency] = snapshot
	memoryCache.mutex.Unlock()
	return nil
}

func (memoryCache *MemoryCache) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	memoryCache.mutex.Lock()
	defer memoryCache.mutex.Unlock()

	var purged int64
	for base, snapshot := range memoryCache.snapshots {
		if snapshot.FetchedAt.Before(cutoff) {
			delete(memoryCache.snapshots, base)
			purged++
		}
	}
	return purged, nil
}

var _ RateCache = (*MemoryCache)(nil)
