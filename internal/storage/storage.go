package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dalfonso89/currency-converter/internal/config"
)

// ErrSchemaCorrupt is returned when the local schema cannot be migrated.
// It is the only storage failure callers should treat as fatal.
var ErrSchemaCorrupt = errors.New("local schema cannot be migrated")

// RateSnapshotRow holds one live snapshot per base currency
type RateSnapshotRow struct {
	Base      string                                 `gorm:"primaryKey;size:8"`
	Rates     datatypes.JSONType[map[string]float64] `gorm:"not null"`
	FetchedAt int64                                  `gorm:"index;not null"` // unix millis
}

func (RateSnapshotRow) TableName() string { return "exchange_rates" }

// ConversionRow is one persisted conversion
type ConversionRow struct {
	ID              uint    `gorm:"primaryKey;autoIncrement"`
	FromCurrency    string  `gorm:"size:8;not null"`
	ToCurrency      string  `gorm:"size:8;not null"`
	Amount          float64 `gorm:"not null"`
	ConvertedAmount float64 `gorm:"not null"`
	Rate            float64 `gorm:"not null"`
	Timestamp       int64   `gorm:"index;not null"` // unix millis
}

func (ConversionRow) TableName() string { return "conversion_history" }

// PreferenceRow is a key/value preference such as the last update check
type PreferenceRow struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"not null"`
}

func (PreferenceRow) TableName() string { return "preferences" }

var allModels = []interface{}{
	&RateSnapshotRow{},
	&ConversionRow{},
	&PreferenceRow{},
}

// Store owns the database handle shared by the cache, history and preferences
type Store struct {
	database *gorm.DB
	logger   *logrus.Logger
}

// Open opens the configured database and migrates the schema
func Open(configuration *config.Config, logger *logrus.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch configuration.DatabaseDriver {
	case "", "sqlite":
		dialector = sqlite.Open(configuration.DatabaseDSN)
	case "postgres":
		dialector = postgres.Open(configuration.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", configuration.DatabaseDriver)
	}
	return OpenWithDialector(dialector, logger)
}

// OpenWithDialector opens a store on an explicit gorm dialector
func OpenWithDialector(dialector gorm.Dialector, logger *logrus.Logger) (*Store, error) {
	logLevel := gormlogger.Silent
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logLevel = gormlogger.Warn
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialector.Name() == "sqlite" {
		// sqlite allows a single writer; an in-memory database also lives per connection
		sqlDatabase, err := database.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access connection pool: %w", err)
		}
		sqlDatabase.SetMaxOpenConns(1)
	}

	if err := database.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCorrupt, err)
	}

	logger.WithField("driver", dialector.Name()).Debug("Database ready")
	return &Store{database: database, logger: logger}, nil
}

// DB returns the gorm handle
func (store *Store) DB() *gorm.DB {
	return store.database
}

// Close releases the underlying connection pool
func (store *Store) Close() error {
	sqlDatabase, err := store.database.DB()
	if err != nil {
		return err
	}
	return sqlDatabase.Close()
}

// GetPreference returns the stored value for key and whether it exists
func (store *Store) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var row PreferenceRow
	err := store.database.WithContext(ctx).Where(&PreferenceRow{Key: key}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return row.Value, true, nil
}

// SetPreference inserts or replaces a preference
func (store *Store) SetPreference(ctx context.Context, key, value string) error {
	row := PreferenceRow{Key: key, Value: value}
	err := store.database.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}
