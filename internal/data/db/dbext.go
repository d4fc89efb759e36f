// Package db opens the local (sqlite) or shared (postgres) database and keeps
// its schema migrated.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const (
	maxRetries  = 5
	initialWait = 100 * time.Millisecond

	// FileName is the sqlite database file inside the data directory.
	FileName = "kennel.db"
)

// Dialect selects the SQL flavour of the open connection.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// OpenOptions configures the connection pool.
type OpenOptions struct {
	Driver       Dialect
	DSN          string // postgres only
	MaxOpenConns int
	MaxIdleConns int
	BusyTimeout  int // milliseconds, sqlite only
	Log          zerolog.Logger
}

// DefaultOpenOptions returns settings for a local sqlite database.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		Driver:       SQLite,
		MaxOpenConns: 2,
		MaxIdleConns: 2,
		BusyTimeout:  5000,
		Log:          zerolog.Nop(),
	}
}

// DB wraps a SQL database connection with retry logic and dialect helpers.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	log     zerolog.Logger
}

// Open creates a new database connection and applies pending migrations.
// For sqlite the database file is created in dataDir.
func Open(dataDir string, opts OpenOptions) (*DB, error) {
	driver, dsn, err := opts.source(dataDir)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn, dialect: opts.dialect(), log: opts.Log}

	ctx := context.Background()
	if err := db.pingWithRetry(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	m, err := newMigrator(ctx, conn, db.dialect, db.log)
	if err == nil {
		_, err = m.Up(ctx)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (o OpenOptions) dialect() Dialect {
	if o.Driver == Postgres {
		return Postgres
	}
	return SQLite
}

// source returns the database/sql driver name and DSN.
func (o OpenOptions) source(dataDir string) (string, string, error) {
	switch o.dialect() {
	case Postgres:
		if o.DSN == "" {
			return "", "", fmt.Errorf("postgres driver requires a dsn")
		}
		return "pgx", o.DSN, nil
	default:
		busy := o.BusyTimeout
		if busy <= 0 {
			busy = DefaultOpenOptions().BusyTimeout
		}
		path := filepath.Join(dataDir, FileName)
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", path, busy)
		return "sqlite", dsn, nil
	}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection pool.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Dialect returns the SQL flavour of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Rebind rewrites ? placeholders into the dialect's form.
func (db *DB) Rebind(query string) string {
	return Rebind(db.dialect, query)
}

// Rebind rewrites ? placeholders to $N for postgres. Question marks inside
// single-quoted literals are left alone.
func Rebind(d Dialect, query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}

	var (
		b       strings.Builder
		n       int
		inQuote bool
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// JSONField returns an expression reading key from the JSON text column col.
// key must not contain quotes.
func (db *DB) JSONField(col, key string) string {
	if db.dialect == Postgres {
		return fmt.Sprintf("(%s::jsonb -> '%s')", col, key)
	}
	return fmt.Sprintf("json_extract(%s, '$.\"%s\"')", col, key)
}

// JSONText is JSONField coerced to text, for equality comparisons.
func (db *DB) JSONText(col, key string) string {
	if db.dialect == Postgres {
		return fmt.Sprintf("(%s::jsonb ->> '%s')", col, key)
	}
	return fmt.Sprintf("CAST(json_extract(%s, '$.\"%s\"') AS TEXT)", col, key)
}

// WithTx executes a function within a transaction.
// If the function returns an error, the transaction is rolled back.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// pingWithRetry attempts to ping the database with exponential backoff.
func (db *DB) pingWithRetry(ctx context.Context) error {
	wait := initialWait
	var last error
	for i := 0; i < maxRetries; i++ {
		if last = db.conn.PingContext(ctx); last == nil {
			return nil
		}

		if i < maxRetries-1 {
			time.Sleep(wait)
			wait *= 2
		}
	}

	return fmt.Errorf("failed to ping database after %d retries: %w", maxRetries, last)
}
