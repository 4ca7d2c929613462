package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const defaultBusyTimeout = 5 * time.Second

// Config holds database configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// InMemory reports whether Path names a private in-memory database
func (c Config) InMemory() bool {
	return c.Path == ":memory:" || strings.Contains(c.Path, "mode=memory")
}

// DSN builds the go-sqlite3 connection string. File databases run in WAL mode;
// every connection enforces foreign keys and takes the write lock at BEGIN.
func (c Config) DSN() string {
	busy := c.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}

	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(busy.Milliseconds()))
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	if !c.InMemory() {
		params.Set("_journal_mode", "WAL")
	}

	path := strings.TrimPrefix(c.Path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		extra, _ := url.ParseQuery(path[i+1:])
		for k, vs := range extra {
			params[k] = vs
		}
		path = path[:i]
	}
	return "file:" + path + "?" + params.Encode()
}

// DB wraps sql.DB with additional functionality
type DB struct {
	*sql.DB
	cfg    Config
	logger *zap.Logger
}

// New opens the database, creating its directory when needed, and verifies the connection pragmas
func New(cfg Config, logger *zap.Logger) (*DB, error) {
	if !cfg.InMemory() {
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.InMemory() {
		// each connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := &DB{DB: sqlDB, cfg: cfg, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Check(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info("Database connection established",
		zap.String("path", cfg.Path),
		zap.Bool("in_memory", cfg.InMemory()))
	return db, nil
}

// Check pings the database and confirms foreign key enforcement is active
func (db *DB) Check(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var fk int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		return fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if fk != 1 {
		return fmt.Errorf("foreign key enforcement is disabled")
	}
	return nil
}

// WithTransaction executes fn within a transaction, rolling back on error or panic
func (db *DB) WithTransaction(fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	stats := db.Stats()
	db.logger.Info("Closing database connection",
		zap.String("path", db.cfg.Path),
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int64("wait_count", stats.WaitCount))
	return db.DB.Close()
}
