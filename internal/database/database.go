package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tripplanner/internal/config"
	"tripplanner/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateReference = errors.New("booking reference already exists")
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DB is the relational store behind itineraries, bookings, accounts and the sync queue.
// Every itinerary and booking query is scoped by account id.
type DB struct {
	*sqlx.DB
	driver string
	path   string
	logger *zerolog.Logger
}

func NewDB(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	var (
		conn *sqlx.DB
		err  error
	)

	switch cfg.Driver {
	case "", DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		conn, err = sqlx.Connect(DriverSQLite, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		// one connection serializes writers and keeps :memory: databases shared
		conn.SetMaxOpenConns(1)
	case DriverPostgres:
		conn, err = sqlx.Connect(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(cfg.MaxOpenConns)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db := &DB{DB: conn, driver: conn.DriverName(), path: cfg.Path, logger: logger}
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("driver", db.driver).Msg("database initialized")
	return db, nil
}

// NewWithConn wraps an existing connection without running migrations.
func NewWithConn(conn *sql.DB, driver string, logger *zerolog.Logger) *DB {
	return &DB{DB: sqlx.NewDb(conn, driver), driver: driver, logger: logger}
}

// Driver returns the name of the underlying SQL driver.
func (db *DB) Driver() string { return db.driver }

// Path returns the sqlite file path; empty for other drivers.
func (db *DB) Path() string {
	if db.driver != DriverSQLite {
		return ""
	}
	return db.path
}

func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) migrate(ctx context.Context) error {
	syncID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.driver == DriverPostgres {
		syncID = "BIGSERIAL PRIMARY KEY"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			preferences TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS itineraries (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			title TEXT NOT NULL,
			destination TEXT NOT NULL,
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP NOT NULL,
			budget REAL NOT NULL DEFAULT 0,
			travelers INTEGER NOT NULL DEFAULT 1,
			preferences TEXT NOT NULL DEFAULT '{}',
			activities TEXT NOT NULL DEFAULT '[]',
			accommodations TEXT NOT NULL DEFAULT '[]',
			flights TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'draft',
			ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			itinerary_id TEXT,
			type TEXT NOT NULL,
			provider TEXT NOT NULL,
			booking_reference TEXT NOT NULL,
			status TEXT NOT NULL,
			cost_amount REAL NOT NULL,
			cost_currency TEXT NOT NULL,
			booking_date TIMESTAMP NOT NULL,
			travel_date TIMESTAMP,
			cancellation_policy TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
			id ` + syncID + `,
			task_type TEXT NOT NULL,
			booking_id TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP,
			next_retry_at TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_itineraries_account ON itineraries(account_id, created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_reference ON bookings(booking_reference)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_account ON bookings(account_id, booking_date)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive LIKE pattern; pair with LOWER(col) and ESCAPE '\'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// listLimit applies the default page size. Callers own the upper bound.
func listLimit(limit int) int {
	if limit <= 0 {
		return models.DefaultListLimit
	}
	return limit
}
