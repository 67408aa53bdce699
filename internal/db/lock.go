package db

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockFileName   = "nhatky.lock"
	defaultTimeout = 2 * time.Second
	lockPollMin    = 5 * time.Millisecond
	lockPollMax    = 50 * time.Millisecond
)

// lockHolder is written into the lock file by whoever holds it.
type lockHolder struct {
	PID     int       `json:"pid"`
	Since   time.Time `json:"since"`
	Command string    `json:"cmd,omitempty"`
}

func (h *lockHolder) String() string {
	if h == nil {
		return "unknown holder"
	}
	s := fmt.Sprintf("pid:%d (%s) since %s", h.PID, h.Command, h.Since.Format(time.RFC3339))
	if !isProcessAlive(h.PID) {
		s += ", process gone"
	}
	return s
}

// writeLocker serialises writers across every process sharing a data
// directory. The OS drops the lock when the holding process exits.
type writeLocker struct {
	path string
	f    *os.File
}

func newWriteLocker(dataDir string) *writeLocker {
	return &writeLocker{path: filepath.Join(dataDir, lockFileName)}
}

// acquire polls for the exclusive lock until timeout, backing off between
// attempts.
func (l *writeLocker) acquire(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("%w: open lock file: %v", ErrStorageUnavailable, err)
	}

	deadline := time.Now().Add(timeout)
	for wait := lockPollMin; ; wait = min(wait*2, lockPollMax) {
		if tryLock(f) == nil {
			l.f = f
			l.stamp()
			return nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return fmt.Errorf("%w after %v, held by %s", ErrLockBusy, timeout, readLockHolder(l.path))
		}
		time.Sleep(wait)
	}
}

func (l *writeLocker) release() error {
	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	_ = f.Truncate(0)
	unlock(f)
	return f.Close()
}

func (l *writeLocker) stamp() {
	data, err := json.Marshal(lockHolder{
		PID:     os.Getpid(),
		Since:   time.Now().UTC(),
		Command: filepath.Base(os.Args[0]),
	})
	if err != nil || l.f.Truncate(0) != nil {
		return
	}
	_, _ = l.f.WriteAt(data, 0)
}

// readLockHolder returns nil when the file is empty or unreadable.
func readLockHolder(path string) *lockHolder {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil
	}
	var h lockHolder
	if json.Unmarshal(data, &h) != nil || h.PID == 0 {
		return nil
	}
	return &h
}
