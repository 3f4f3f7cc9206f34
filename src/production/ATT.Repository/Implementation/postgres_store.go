package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	interfaces "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Repository/Interfaces"
)

type PostgresIdentityStore struct {
	db *sql.DB
}

// NewPostgresIdentityStore opens the pool, pings it and creates the device_kv table
func NewPostgresIdentityStore(dsn string, timeout time.Duration) (*PostgresIdentityStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	// a single agent needs very few connections
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	createTable := `
		CREATE TABLE IF NOT EXISTS device_kv (
			key         TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create device_kv table: %w", err)
	}

	return &PostgresIdentityStore{db: db}, nil
}

func (s *PostgresIdentityStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM device_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", interfaces.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *PostgresIdentityStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO device_kv (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value)
	return err
}

func (s *PostgresIdentityStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.PingContext(ctx)
}

func (s *PostgresIdentityStore) Close() error {
	return s.db.Close()
}
