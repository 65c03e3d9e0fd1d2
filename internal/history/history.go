package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/storage"
)

// DefaultRecentLimit is how many records consumers see when they do not ask for a limit
const DefaultRecentLimit = 5

// Store is the conversion history log
type Store interface {
	Append(ctx context.Context, record models.ConversionRecord) (models.ConversionRecord, error)
	Recent(ctx context.Context, limit int) ([]models.ConversionRecord, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Clear(ctx context.Context) (int64, error)
	Subscribe(ctx context.Context, limit int) (<-chan []models.ConversionRecord, func(), error)
}

// SQLHistory keeps the log in the conversion_history table and pushes
// the recent list to subscribers after every change
type SQLHistory struct {
	database    *gorm.DB
	logger      *logrus.Logger
	broadcaster *Broadcaster

	// serialises writes with their publication so lists arrive in commit order
	writeMutex sync.Mutex
}

// NewSQLHistory creates a history store on the local database
func NewSQLHistory(store *storage.Store, logger *logrus.Logger) *SQLHistory {
	return &SQLHistory{
		database:    store.DB(),
		logger:      logger,
		broadcaster: NewBroadcaster(),
	}
}

// Append persists record and returns it with its assigned id
func (sqlHistory *SQLHistory) Append(ctx context.Context, record models.ConversionRecord) (models.ConversionRecord, error) {
	sqlHistory.writeMutex.Lock()
	defer sqlHistory.writeMutex.Unlock()

	row := toRow(record)
	if err := sqlHistory.database.WithContext(ctx).Create(&row).Error; err != nil {
		return models.ConversionRecord{}, fmt.Errorf("failed to append conversion: %w", err)
	}

	sqlHistory.publishLocked(ctx)
	return fromRow(row), nil
}

// Recent returns up to limit records, newest first
func (sqlHistory *SQLHistory) Recent(ctx context.Context, limit int) ([]models.ConversionRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	var rows []storage.ConversionRow
	err := sqlHistory.database.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read conversion history: %w", err)
	}

	records := make([]models.ConversionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, fromRow(row))
	}
	return records, nil
}

// PurgeOlderThan deletes records whose timestamp is before cutoff
func (sqlHistory *SQLHistory) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	sqlHistory.writeMutex.Lock()
	defer sqlHistory.writeMutex.Unlock()

	result := sqlHistory.database.WithContext(ctx).
		Where(clause.Lt{Column: clause.Column{Name: "timestamp"}, Value: cutoff.UnixMilli()}).
		Delete(&storage.ConversionRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge conversion history: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		sqlHistory.publishLocked(ctx)
	}
	return result.RowsAffected, nil
}

// Clear deletes the whole log
func (sqlHistory *SQLHistory) Clear(ctx context.Context) (int64, error) {
	sqlHistory.writeMutex.Lock()
	defer sqlHistory.writeMutex.Unlock()

	result := sqlHistory.database.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&storage.ConversionRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear conversion history: %w", result.Error)
	}

	sqlHistory.publishLocked(ctx)
	return result.RowsAffected, nil
}

// Subscribe delivers the current recent list at once and a fresh list after every change.
// A slow reader only ever sees the newest pending list. Call the returned func to stop;
// it closes the channel.
func (sqlHistory *SQLHistory) Subscribe(ctx context.Context, limit int) (<-chan []models.ConversionRecord, func(), error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	sqlHistory.writeMutex.Lock()
	defer sqlHistory.writeMutex.Unlock()

	records, err := sqlHistory.Recent(ctx, limit)
	if err != nil {
		return nil, nil, err
	}

	id, entry := sqlHistory.broadcaster.add(limit)
	deliver(entry, records)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { sqlHistory.broadcaster.remove(id) })
	}
	return entry.channel, unsubscribe, nil
}

// Subscribers returns the number of live subscriptions
func (sqlHistory *SQLHistory) Subscribers() int {
	return sqlHistory.broadcaster.Count()
}

// publishLocked must be called with writeMutex held
func (sqlHistory *SQLHistory) publishLocked(ctx context.Context) {
	limit := sqlHistory.broadcaster.maxLimit()
	if limit == 0 {
		return
	}

	records, err := sqlHistory.Recent(context.WithoutCancel(ctx), limit)
	if err != nil {
		sqlHistory.logger.WithError(err).Warn("Failed to publish conversion history")
		return
	}
	sqlHistory.broadcaster.publish(records)
}

func toRow(record models.ConversionRecord) storage.ConversionRow {
	return storage.ConversionRow{
		FromCurrency:    record.FromCurrency,
		ToCurrency:      record.ToCurrency,
		Amount:          record.Amount,
		ConvertedAmount: record.ConvertedAmount,
		Rate:            record.Rate,
		Timestamp:       record.Timestamp.UnixMilli(),
	}
}

func fromRow(row storage.ConversionRow) models.ConversionRecord {
	return models.ConversionRecord{
		ID:              row.ID,
		FromCurrency:    row.FromCurrency,
		ToCurrency:      row.ToCurrency,
		Amount:          row.Amount,
		ConvertedAmount: row.ConvertedAmount,
		Rate:            row.Rate,
		Timestamp:       time.UnixMilli(row.Timestamp).UTC(),
	}
}

var _ Store = (*SQLHistory)(nil)
