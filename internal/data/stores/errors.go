package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/data/db"
)

// Postgres error codes treated as transient contention.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
)

const (
	busyRetries = 4
	busyWait    = 25 * time.Millisecond
)

// IsBusyError reports whether err is sqlite lock contention or a postgres
// lock/serialization conflict.
func IsBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable || pgErr.Code == pgSerializationFailure
	}
	return false
}

// IsCorruptionError reports whether err means the sqlite file is unusable.
func IsCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "file is not a database")
}

// IsNotFoundError returns true if the error is a "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, entity.ErrNotFound)
}

// retryBusy runs fn again while it fails with contention, backing off
// between attempts.
func retryBusy(ctx context.Context, fn func() error) error {
	wait := busyWait
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); err == nil || !IsBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
			wait *= 2
		}
	}
	return err
}

// RecoverFromCorruption moves a corrupted sqlite file and its WAL and SHM
// companions aside, so the next Open starts from an empty database. Missing
// files are ignored. The label cache and route records rebuild on demand.
func RecoverFromCorruption(dataDir string) error {
	base := filepath.Join(dataDir, db.FileName)
	backup := fmt.Sprintf("%s.corrupt.%s", base, time.Now().Format("20060102-150405"))

	for _, suffix := range []string{"", "-wal", "-shm"} {
		err := os.Rename(base+suffix, backup+suffix)
		if err == nil || os.IsNotExist(err) {
			continue
		}
		// an orphaned WAL must not be replayed into the new file
		if suffix != "" && os.Remove(base+suffix) == nil {
			continue
		}
		return fmt.Errorf("move aside %s: %w", filepath.Base(base+suffix), err)
	}
	return nil
}
