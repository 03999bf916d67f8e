package timeseries

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the append/read port the Stats Collector and Metrics Engine rely
// on.
type Store interface {
	InsertPoolPrice(ctx context.Context, obs PoolObservation) error
	InsertExchangeRate(ctx context.Context, rate ExchangeRateSample) error
	GetPoolPricesForChain(ctx context.Context, chainID int64, minTs time.Time, maxTs *time.Time) ([]PoolObservation, error)
	GetRecentPoolPrices(ctx context.Context, limit int) ([]PoolObservation, error)
	GetRecentRates(ctx context.Context, chainID *int64, limit int) ([]ExchangeRateSample, error)
}

type poolPriceRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp        time.Time `gorm:"index:idx_chain_ts,priority:2;not null"`
	ChainID          int64     `gorm:"index:idx_chain_ts,priority:1;not null"`
	PoolAddress      string    `gorm:"not null"`
	SqrtPriceX96     string    `gorm:"type:varchar(78);not null"`
	Tick             int32     `gorm:"not null"`
	Liquidity        string    `gorm:"type:varchar(78);not null"`
	Fee              int32     `gorm:"not null"`
	FeeGrowthGlobal0 string    `gorm:"type:varchar(78);not null"`
	FeeGrowthGlobal1 string    `gorm:"type:varchar(78);not null"`
}

func (poolPriceRecord) TableName() string { return "pool_observations" }

type exchangeRateRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time `gorm:"index;not null"`
	ChainID    int64     `gorm:"index;not null"`
	UsdcOutput string    `gorm:"type:varchar(78);not null"`
}

func (exchangeRateRecord) TableName() string { return "exchange_rates" }

// SQLiteStore implements Store on a single WAL-journaled sqlite file.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if necessary) the time-series database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open timeseries store: %w", err)
	}
	if err := db.AutoMigrate(&poolPriceRecord{}, &exchangeRateRecord{}); err != nil {
		return nil, fmt.Errorf("migrate timeseries store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertPoolPrice appends a pool observation row.
func (s *SQLiteStore) InsertPoolPrice(ctx context.Context, obs PoolObservation) error {
	record := poolPriceRecord{
		Timestamp:        obs.Timestamp,
		ChainID:          obs.ChainID,
		PoolAddress:      obs.PoolAddress,
		SqrtPriceX96:     obs.SqrtPriceX96,
		Tick:             obs.Tick,
		Liquidity:        obs.Liquidity,
		Fee:              obs.Fee,
		FeeGrowthGlobal0: obs.FeeGrowthGlobal0,
		FeeGrowthGlobal1: obs.FeeGrowthGlobal1,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("insertPoolPrice: %w", err)
	}
	return nil
}

// InsertExchangeRate appends an exchange-rate sample row.
func (s *SQLiteStore) InsertExchangeRate(ctx context.Context, rate ExchangeRateSample) error {
	record := exchangeRateRecord{
		Timestamp:  rate.Timestamp,
		ChainID:    rate.ChainID,
		UsdcOutput: rate.UsdcOutput,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("insertExchangeRate: %w", err)
	}
	return nil
}

// GetPoolPricesForChain returns observations for chainID with timestamp in
// [minTs, maxTs), ascending by time. A nil maxTs means no upper bound.
func (s *SQLiteStore) GetPoolPricesForChain(ctx context.Context, chainID int64, minTs time.Time, maxTs *time.Time) ([]PoolObservation, error) {
	q := s.db.WithContext(ctx).Where("chain_id = ? AND timestamp >= ?", chainID, minTs)
	if maxTs != nil {
		q = q.Where("timestamp < ?", *maxTs)
	}
	var records []poolPriceRecord
	if err := q.Order("timestamp ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("getPoolPricesForChain: %w", err)
	}
	out := make([]PoolObservation, len(records))
	for i, r := range records {
		out[i] = toObservation(r)
	}
	return out, nil
}

// GetRecentPoolPrices returns the most recent `limit` observations across
// all chains, newest first.
func (s *SQLiteStore) GetRecentPoolPrices(ctx context.Context, limit int) ([]PoolObservation, error) {
	var records []poolPriceRecord
	err := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("getRecentPoolPrices: %w", err)
	}
	out := make([]PoolObservation, len(records))
	for i, r := range records {
		out[i] = toObservation(r)
	}
	return out, nil
}

// GetRecentRates returns the most recent `limit` exchange-rate samples,
// optionally filtered by chain, newest first.
func (s *SQLiteStore) GetRecentRates(ctx context.Context, chainID *int64, limit int) ([]ExchangeRateSample, error) {
	q := s.db.WithContext(ctx)
	if chainID != nil {
		q = q.Where("chain_id = ?", *chainID)
	}
	var records []exchangeRateRecord
	if err := q.Order("timestamp DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("getRecentRates: %w", err)
	}
	out := make([]ExchangeRateSample, len(records))
	for i, r := range records {
		out[i] = ExchangeRateSample{Timestamp: r.Timestamp, ChainID: r.ChainID, UsdcOutput: r.UsdcOutput}
	}
	return out, nil
}

func toObservation(r poolPriceRecord) PoolObservation {
	return PoolObservation{
		Timestamp:        r.Timestamp,
		ChainID:          r.ChainID,
		PoolAddress:      r.PoolAddress,
		SqrtPriceX96:     r.SqrtPriceX96,
		Tick:             r.Tick,
		Liquidity:        r.Liquidity,
		Fee:              r.Fee,
		FeeGrowthGlobal0: r.FeeGrowthGlobal0,
		FeeGrowthGlobal1: r.FeeGrowthGlobal1,
	}
}
