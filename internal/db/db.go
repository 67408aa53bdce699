// Package db is the device-resident store for the farm log: timeline
// entries with their sync metadata, the sync queue, settings, the raw
// response cache and the mirrored reference collections.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dbFile        = "nhatky.db"
	defaultDriver = "sqlite"
)

// OpenOptions configures Open.
type OpenOptions struct {
	// Driver is the database/sql driver name. "sqlite" (modernc) by default;
	// "sqlite3" selects mattn/go-sqlite3 when the caller imports it.
	Driver string
	// LockTimeout bounds how long a write waits for the cross-process lock.
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultOpenOptions returns the options used by the CLI host.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		Driver:      defaultDriver,
		LockTimeout: defaultTimeout,
	}
}

// DB is an open handle on the local store. It is safe for concurrent use.
type DB struct {
	conn    *sql.DB
	dataDir string
	opts    OpenOptions
	log     *slog.Logger

	// version is the schema version this handle was opened against.
	version int

	mu       sync.Mutex // serializes in-process writers; the file lock covers other processes
	closed   bool
	lastMod  int64
	modMutex sync.Mutex
}

// Open opens the store in dataDir, creating it and upgrading its schema if
// necessary. Concurrent opens serialize on the write lock so exactly one
// upgrade runs.
func Open(dataDir string, opts OpenOptions) (*DB, error) {
	if opts.Driver == "" {
		opts.Driver = defaultDriver
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", ErrStorageUnavailable, err)
	}

	conn, err := sql.Open(opts.Driver, filepath.Join(dataDir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorageUnavailable, err)
	}
	// One connection: pragmas apply everywhere and transactions serialize.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrStorageUnavailable, err)
	}

	if _, err := conn.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", opts.LockTimeout.Milliseconds())); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: set busy timeout: %v", ErrStorageUnavailable, err)
	}
	// Enable WAL mode for concurrent readers in other processes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: enable WAL mode: %v", ErrStorageUnavailable, err)
	}
	if _, err := conn.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		logger.Debug("store: keeping default synchronous mode", "err", err)
	}

	db := &DB{conn: conn, dataDir: dataDir, opts: opts, log: logger}

	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	v, err := db.GetSchemaVersion()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	db.version = v

	var maxMod sql.NullInt64
	if err := conn.QueryRow(`SELECT MAX(last_modified) FROM timeline_entries`).Scan(&maxMod); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read last write time: %w", err)
	}
	db.lastMod = maxMod.Int64

	return db, nil
}

// Close closes the database. Closing twice is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closeLocked()
}

func (db *DB) closeLocked() error {
	if db.closed {
		return nil
	}
	db.closed = true
	return db.conn.Close()
}

// DataDir returns the directory holding the database.
func (db *DB) DataDir() string {
	return db.dataDir
}

// Conn returns the underlying *sql.DB for callers that need raw access.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// withWriteLock executes fn while holding the in-process writer mutex and
// the cross-process file lock, after checking the handle is still current.
func (db *DB) withWriteLock(fn func() error) error {
	return db.locked(true, fn)
}

func (db *DB) locked(checkFresh bool, fn func() error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}

	locker := newWriteLocker(db.dataDir)
	if err := locker.acquire(db.opts.LockTimeout); err != nil {
		return err
	}
	defer locker.release()

	if checkFresh {
		if err := db.checkFreshLocked(); err != nil {
			return err
		}
	}
	return fn()
}

// withTx runs fn in a transaction under the write lock.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return db.withWriteLock(func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// readable returns ErrClosed for closed handles.
func (db *DB) readable() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

// checkFreshLocked closes a handle whose schema was upgraded underneath it
// by another process. The upgrade wins over stale handles.
func (db *DB) checkFreshLocked() error {
	onDisk, err := db.GetSchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if onDisk != db.version {
		db.log.Warn("store: schema changed by another process, closing stale handle",
			"handle_version", db.version, "disk_version", onDisk)
		db.closeLocked()
		return fmt.Errorf("%w: handle at version %d, store at %d", ErrSchemaMismatch, db.version, onDisk)
	}
	return nil
}

// nextModified returns a write timestamp strictly greater than any
// previously issued by this handle.
func (db *DB) nextModified() int64 {
	db.modMutex.Lock()
	defer db.modMutex.Unlock()
	now := time.Now().UnixNano()
	if now <= db.lastMod {
		now = db.lastMod + 1
	}
	db.lastMod = now
	return now
}
