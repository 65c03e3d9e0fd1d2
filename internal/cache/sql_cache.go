package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/storage"
)

// SQLCache persists snapshots in the exchange_rates table
type SQLCache struct {
	database *gorm.DB
}

// NewSQLCache creates a cache backed by the local store
func NewSQLCache(store *storage.Store) *SQLCache {
	return &SQLCache{database: store.DB()}
}

func (sqlCache *SQLCache) Get(ctx context.Context, baseCurrency string) (models.ExchangeRateSnapshot, bool, error) {
	var row storage.RateSnapshotRow
	err := sqlCache.database.WithContext(ctx).
		Where(&storage.RateSnapshotRow{Base: normalizeCode(baseCurrency)}).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ExchangeRateSnapshot{}, false, nil
	}
	if err != nil {
		return models.ExchangeRateSnapshot{}, false, fmt.Errorf("failed to read cached rates for %s: %w", baseCurrency, err)
	}

	return models.ExchangeRateSnapshot{
		BaseCurrency: row.Base,
		Rates:        row.Rates.Data(),
		FetchedAt:    time.UnixMilli(row.FetchedAt).UTC(),
	}, true, nil
}

// Put upserts on the base currency so a single row survives per base
func (sqlCache *SQLCache) Put(ctx context.Context, snapshot models.ExchangeRateSnapshot) error {
	row := storage.RateSnapshotRow{
		Base:      normalizeCode(snapshot.BaseCurrency),
		Rates:     datatypes.NewJSONType(copyRates(snapshot.Rates)),
		FetchedAt: snapshot.FetchedAt.UnixMilli(),
	}

	err := sqlCache.database.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "base"}},
			DoUpdates: clause.AssignmentColumns([]string{"rates", "fetched_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to cache rates for %s: %w", row.Base, err)
	}
	return nil
}

func (sqlCache *SQLCache) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := sqlCache.database.WithContext(ctx).
		Where("fetched_at < ?", cutoff.UnixMilli()).
		Delete(&storage.RateSnapshotRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge cached rates: %w", result.Error)
	}
	return result.RowsAffected, nil
}

var _ RateCache = (*SQLCache)(nil)
