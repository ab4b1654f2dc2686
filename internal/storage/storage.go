// Package storage persists trackers, events, and alerts to MySQL. It is
// optional; the pipeline runs fully in memory when no database is
// configured.
package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/walletpulse/engine/internal/store"
)

// Config holds the MySQL connection settings and pool tuning.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPool fills in pool settings when the caller leaves them zero.
func (c Config) withDefaults() Config {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 2 * time.Minute
	}
	return c
}

// trackerRecord is the persisted form of a tracked wallet.
type trackerRecord struct {
	ID            string `gorm:"primaryKey;size:64"`
	WalletAddress string `gorm:"size:64;index"`
	Alias         string `gorm:"size:128"`
	Chains        string `gorm:"size:128"` // comma-separated
	Tags          string `gorm:"size:256"` // comma-separated
	CreatedAt     time.Time
	LastUpdated   time.Time
}

func (trackerRecord) TableName() string { return "tracked_wallets" }

// eventRecord is the persisted form of a wallet event.
type eventRecord struct {
	ID              string `gorm:"primaryKey;size:128"`
	TrackerWalletID string `gorm:"size:64;index"`
	Type            string `gorm:"size:32"`
	TokenAddress    string `gorm:"size:64"`
	TokenSymbol     string `gorm:"size:32"`
	TokenName       string `gorm:"size:128"`
	Amount          string `gorm:"size:80"`
	USDValue        float64
	TxHash          string `gorm:"size:128;index"`
	BlockNumber     int64
	Timestamp       time.Time
	Chain           string `gorm:"size:16"`
}

func (eventRecord) TableName() string { return "wallet_events" }

// alertRecord is the persisted form of an alert notification.
type alertRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	AlertID   string `gorm:"size:64;index"`
	EventID   string `gorm:"size:128"`
	Title     string `gorm:"size:256"`
	Message   string `gorm:"size:512"`
	Read      bool
	CreatedAt time.Time
}

func (alertRecord) TableName() string { return "alert_notifications" }

// Store implements the registry's persistence sink on top of MySQL.
type Store struct {
	db *gorm.DB
}

// Open connects to MySQL, configures pooling, and migrates the schema.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=True&charset=utf8mb4&loc=Local&timeout=10s&readTimeout=30s&writeTimeout=30s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		NowFunc:     func() time.Time { return time.Now().UTC() },
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(&trackerRecord{}, &eventRecord{}, &alertRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	slog.Info("storage_connected", "host", cfg.Host, "database", cfg.Name)
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTracker upserts a tracker row.
func (s *Store) SaveTracker(tracker store.TrackedWallet) error {
	chains := make([]string, 0, len(tracker.Chains))
	for _, c := range tracker.Chains {
		chains = append(chains, string(c))
	}

	rec := trackerRecord{
		ID:            tracker.ID,
		WalletAddress: tracker.WalletAddress,
		Alias:         tracker.Alias,
		Chains:        strings.Join(chains, ","),
		Tags:          strings.Join(tracker.Tags, ","),
		CreatedAt:     tracker.CreatedAt,
		LastUpdated:   tracker.LastUpdated,
	}

	return s.db.Save(&rec).Error
}

// DeleteTracker removes a tracker row and its dependent records.
func (s *Store) DeleteTracker(trackerID string) error {
	if err := s.db.Delete(&trackerRecord{}, "id = ?", trackerID).Error; err != nil {
		return err
	}
	if err := s.db.Delete(&eventRecord{}, "tracker_wallet_id = ?", trackerID).Error; err != nil {
		return err
	}
	return s.db.Delete(&alertRecord{}, "alert_id = ?", trackerID).Error
}

// SaveEvent inserts an event row, ignoring duplicates on the hash-based ID.
func (s *Store) SaveEvent(event store.WalletEvent) error {
	rec := eventRecord{
		ID:              event.ID,
		TrackerWalletID: event.TrackerWalletID,
		Type:            string(event.Type),
		TokenAddress:    event.TokenAddress,
		TokenSymbol:     event.TokenSymbol,
		TokenName:       event.TokenName,
		Amount:          event.Amount,
		USDValue:        event.USDValue,
		TxHash:          event.TxHash,
		BlockNumber:     event.BlockNumber,
		Timestamp:       event.Timestamp,
		Chain:           string(event.Chain),
	}

	return s.db.Save(&rec).Error
}

// SaveAlert inserts or updates an alert row. Covers the Read flag flip.
func (s *Store) SaveAlert(alert store.AlertNotification) error {
	rec := alertRecord{
		ID:        alert.ID,
		AlertID:   alert.AlertID,
		EventID:   alert.EventID,
		Title:     alert.Title,
		Message:   alert.Message,
		Read:      alert.Read,
		CreatedAt: alert.CreatedAt,
	}

	return s.db.Save(&rec).Error
}
