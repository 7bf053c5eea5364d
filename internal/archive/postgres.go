package archive

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresStore persists archive records in PostgreSQL through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgres connects to PostgreSQL and migrates the archive tables.
func NewPostgres(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w: %w", ErrUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewPostgresFromDB wraps an existing gorm connection. The schema must
// already exist. Useful for tests.
func NewPostgresFromDB(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) migrate() error {
	if err := s.db.AutoMigrate(&ConversationRecord{}, &SessionSummary{}, &UserExperience{}); err != nil {
		return fmt.Errorf("migrate archive tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveConversation(ctx context.Context, rec *ConversationRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save conversation: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, summary *SessionSummary) error {
	if err := s.db.WithContext(ctx).Create(summary).Error; err != nil {
		return fmt.Errorf("save summary: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) SaveExperience(ctx context.Context, exp *UserExperience) error {
	if err := s.db.WithContext(ctx).Create(exp).Error; err != nil {
		return fmt.Errorf("save experience: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) UserSummaries(ctx context.Context, userID string, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var summaries []SessionSummary
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w: %w", ErrUnavailable, err)
	}
	return summaries, nil
}

func (s *PostgresStore) UserExperiences(ctx context.Context, userID string, limit int) ([]UserExperience, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var experiences []UserExperience
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&experiences).Error
	if err != nil {
		return nil, fmt.Errorf("list experiences: %w: %w", ErrUnavailable, err)
	}
	return experiences, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("access connection pool: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
