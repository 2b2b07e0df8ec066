package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// PostgresStore is the PostgreSQL implementation of Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings the connection pool.
func OpenPostgres(cfg DBConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	stateLogger.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to PostgreSQL")
	return NewPostgresStore(db), nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	stateLogger.Info().Msg("Closing database connection...")
	if err := s.db.Close(); err != nil {
		stateLogger.Error().Err(err).Msg("Error closing database connection")
		return err
	}
	return nil
}

// Ping checks the connection with a short timeout.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS tfmm_pools (
		pool VARCHAR(128) PRIMARY KEY,
		rule VARCHAR(64) NOT NULL,
		oracles JSONB NOT NULL,
		last_run_time BIGINT NOT NULL DEFAULT 0,
		update_interval BIGINT NOT NULL,
		lambdas TEXT[] NOT NULL,
		epsilon_max TEXT NOT NULL,
		absolute_guard_rail TEXT NOT NULL,
		parameters JSONB NOT NULL,
		pool_manager VARCHAR(128) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tfmm_weights (
		pool VARCHAR(128) PRIMARY KEY REFERENCES tfmm_pools(pool) ON DELETE CASCADE,
		fixed_weights TEXT[] NOT NULL,
		multipliers TEXT[] NOT NULL,
		last_update_time BIGINT NOT NULL,
		last_interpolation_time_possible BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- estimator vectors are packed 128-bit atto integers
	CREATE TABLE IF NOT EXISTS tfmm_estimators (
		pool VARCHAR(128) PRIMARY KEY REFERENCES tfmm_pools(pool) ON DELETE CASCADE,
		moving_averages BYTEA NOT NULL,
		short_moving_averages BYTEA NOT NULL,
		gradient_intermediate BYTEA NOT NULL,
		variance_intermediate BYTEA NOT NULL,
		covariance_intermediate BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tfmm_updates (
		update_id SERIAL PRIMARY KEY,
		run_id UUID NOT NULL UNIQUE,
		pool VARCHAR(128) NOT NULL REFERENCES tfmm_pools(pool) ON DELETE CASCADE,
		run_time BIGINT NOT NULL,
		prices TEXT[] NOT NULL,
		oracle_indexes INTEGER[] NOT NULL,
		target_weights TEXT[] NOT NULL,
		fixed_weights TEXT[] NOT NULL,
		multipliers TEXT[] NOT NULL,
		last_interpolation_time_possible BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tfmm_updates_pool_run_time ON tfmm_updates(pool, run_time DESC);
`

// EnsureSchema applies the DDL to create tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	stateLogger.Info().Msg("Database schema ensured.")
	return nil
}

// ResetSchema drops every table and recreates the schema.
func (s *PostgresStore) ResetSchema(ctx context.Context) error {
	dropSQL := `
		DROP TABLE IF EXISTS tfmm_updates CASCADE;
		DROP TABLE IF EXISTS tfmm_estimators CASCADE;
		DROP TABLE IF EXISTS tfmm_weights CASCADE;
		DROP TABLE IF EXISTS tfmm_pools CASCADE;
	`
	if _, err := s.db.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	stateLogger.Warn().Msg("All tables dropped.")
	return s.EnsureSchema(ctx)
}

// withTx runs fn inside a transaction and commits when it returns nil.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// expectAffected maps a zero-row write to ErrNotFound.
func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
