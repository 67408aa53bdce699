package db

import "errors"

var (
	// ErrStorageUnavailable means the platform denied persistent storage.
	// Offline mode is unavailable when Open returns it.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSchemaMismatch means the on-disk schema does not match this handle
	// or this build. A stale handle closes itself when it sees it.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrNotFound is returned when a timeline entry does not exist or is
	// pending deletion.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned for operations on a closed handle.
	ErrClosed = errors.New("store closed")

	// ErrLockBusy means another process kept the write lock past the
	// configured lock timeout.
	ErrLockBusy = errors.New("write lock timeout")
)
