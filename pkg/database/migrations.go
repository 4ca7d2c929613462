package database

import (
	"cmp"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// ErrMigrationDrift is returned when an applied migration no longer matches its file
var ErrMigrationDrift = errors.New("applied migration was modified")

// Migration is one versioned schema change read from "NNN_name.sql"
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Migrator applies migrations in version order and records them in schema_migrations
type Migrator struct {
	db     *DB
	logger *zap.Logger
	source fs.FS
}

// NewMigrator creates a migrator over the migrations compiled into the binary
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return NewMigratorFS(db, logger, sub)
}

// NewMigratorFS creates a migrator reading *.sql files from the root of source
func NewMigratorFS(db *DB, logger *zap.Logger, source fs.FS) *Migrator {
	return &Migrator{db: db, logger: logger, source: source}
}

func (m *Migrator) ensureTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// checksums maps each applied version to the checksum recorded when it ran
func (m *Migrator) checksums() (map[int]string, error) {
	rows, err := m.db.Query("SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[int]string)
	for rows.Next() {
		var (
			version int
			sum     string
		)
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, err
		}
		sums[version] = sum
	}
	return sums, rows.Err()
}

// AppliedVersions returns the applied migration versions
func (m *Migrator) AppliedVersions() (map[int]bool, error) {
	sums, err := m.checksums()
	if err != nil {
		return nil, err
	}
	applied := make(map[int]bool, len(sums))
	for v := range sums {
		applied[v] = true
	}
	return applied, nil
}

// Pending returns the migrations not applied yet. It fails with ErrMigrationDrift
// when an applied migration's file content has changed since it ran.
func (m *Migrator) Pending() ([]Migration, error) {
	if err := m.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	sums, err := m.checksums()
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	all, err := m.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	var pending []Migration
	for _, mig := range all {
		sum, done := sums[mig.Version]
		switch {
		case !done:
			pending = append(pending, mig)
		case sum != "" && sum != mig.Checksum:
			return nil, fmt.Errorf("%w: %03d_%s", ErrMigrationDrift, mig.Version, mig.Name)
		}
	}
	return pending, nil
}

// RunMigrations applies every pending migration and returns how many ran
func (m *Migrator) RunMigrations() (int, error) {
	pending, err := m.Pending()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		m.logger.Info("Database schema is up to date")
		return 0, nil
	}

	for i, mig := range pending {
		m.logger.Info("Applying migration",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name))

		if err := m.apply(mig); err != nil {
			return i, fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
		}
	}

	m.logger.Info("Database migrations completed", zap.Int("applied", len(pending)))
	return len(pending), nil
}

func (m *Migrator) load() ([]Migration, error) {
	entries, err := fs.ReadDir(m.source, ".")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	seen := make(map[int]string)

	for _, entry := range entries {
		filename := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(filename, ".sql") {
			continue
		}

		prefix, rest, _ := strings.Cut(strings.TrimSuffix(filename, ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename format: %s", filename)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, other, filename)
		}
		seen[version] = filename

		content, err := fs.ReadFile(m.source, filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		sum := sha256.Sum256(content)
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     rest,
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return migrations, nil
}

func (m *Migrator) apply(mig Migration) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(mig.SQL); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
			mig.Version, mig.Name, mig.Checksum,
		); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}
