package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationStatus reports whether a known migration is applied.
type MigrationStatus struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

var migrationFile = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// parseFilename splits "NNNN_name.up.sql" into its version, name and
// direction.
func parseFilename(filename string) (version int, name, direction string, err error) {
	m := migrationFile.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", "", fmt.Errorf("expected format NNNN_name.{up,down}.sql")
	}
	version, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, "", "", fmt.Errorf("version %q: %w", m[1], err)
	}
	if version <= 0 {
		return 0, "", "", fmt.Errorf("version must be positive, got %d", version)
	}
	return version, m[2], m[3], nil
}

// loadMigrations reads the embedded migrations in version order. Every
// version needs exactly one up and one down file with the same name.
func loadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, direction, err := parseFilename(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %q: %w", entry.Name(), err)
		}
		content, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %04d is named both %q and %q", version, m.Name, name)
		}

		target := &m.UpSQL
		if direction == "down" {
			target = &m.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %04d", direction, version)
		}
		*target = string(content)
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %04d needs both an up and a down file", m.Version)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

// migrator applies the embedded migrations to one connection.
type migrator struct {
	conn       *sql.DB
	dialect    Dialect
	log        zerolog.Logger
	migrations []Migration
}

func newMigrator(ctx context.Context, conn *sql.DB, d Dialect, log zerolog.Logger) (*migrator, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	_, err = conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT    NOT NULL,
			applied_at BIGINT  NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("creating schema_migrations table: %w", err)
	}
	return &migrator{conn: conn, dialect: d, log: log, migrations: migrations}, nil
}

// applied returns the applied versions and when they were applied.
func (m *migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[int]time.Time{}
	for rows.Next() {
		var (
			v  int
			at int64
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		out[v] = time.Unix(0, at)
	}
	return out, rows.Err()
}

// Up applies every pending migration and returns how many ran.
func (m *migrator) Up(ctx context.Context) (int, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		m.log.Debug().Int("version", mig.Version).Str("name", mig.Name).Msg("applying migration")
		err := m.step(ctx, mig.UpSQL,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			mig.Version, mig.Name, time.Now().UnixNano())
		if err != nil {
			return n, fmt.Errorf("migration %04d (%s): %w", mig.Version, mig.Name, err)
		}
		n++
	}
	return n, nil
}

// Down reverts the last n applied migrations, newest first.
func (m *migrator) Down(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("n must be positive, got %d", n)
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	if n > len(applied) {
		return fmt.Errorf("requested %d down migrations but only %d are applied", n, len(applied))
	}

	for i := len(m.migrations) - 1; i >= 0 && n > 0; i-- {
		mig := m.migrations[i]
		if _, ok := applied[mig.Version]; !ok {
			continue
		}
		m.log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("reverting migration")
		err := m.step(ctx, mig.DownSQL, "DELETE FROM schema_migrations WHERE version = ?", mig.Version)
		if err != nil {
			return fmt.Errorf("revert migration %04d (%s): %w", mig.Version, mig.Name, err)
		}
		n--
	}
	return nil
}

// Status lists every known migration in version order.
func (m *migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(m.migrations))
	for _, mig := range m.migrations {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			s.AppliedAt = &at
		}
		out = append(out, s)
	}
	return out, nil
}

// step runs schema SQL and its bookkeeping statement in one transaction.
func (m *migrator) step(ctx context.Context, schema, record string, args ...any) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, Rebind(m.dialect, record), args...); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// MigrationStatus lists the schema migrations of the database.
func (db *DB) MigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	m, err := newMigrator(ctx, db.conn, db.dialect, db.log)
	if err != nil {
		return nil, err
	}
	return m.Status(ctx)
}

// MigrateDown reverts the last n applied migrations.
func (db *DB) MigrateDown(ctx context.Context, n int) error {
	m, err := newMigrator(ctx, db.conn, db.dialect, db.log)
	if err != nil {
		return err
	}
	return m.Down(ctx, n)
}
