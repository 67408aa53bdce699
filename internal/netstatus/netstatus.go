// Package netstatus tracks whether the device can reach the API and tells
// subscribers when that changes.
package netstatus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Setting keys persisted on an offline to online transition.
const (
	SettingLastOnline      = "last_online"
	SettingLastSyncAttempt = "last_sync_attempt"
)

// SettingsWriter persists transition markers.
type SettingsWriter interface {
	SetTimeSetting(ctx context.Context, key string, t time.Time) error
}

// Monitor holds the current connectivity state. The zero state is offline.
type Monitor struct {
	settings SettingsWriter
	log      *slog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	online     bool
	lastOnline time.Time
	subs       []func(online bool)
}

// NewMonitor creates a monitor. settings may be nil.
func NewMonitor(settings SettingsWriter, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{settings: settings, log: logger, now: time.Now}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// LastOnline returns when the device last came online, or the zero time.
func (m *Monitor) LastOnline() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastOnline
}

// Subscribe registers fn to be called on every transition. Callbacks run
// synchronously on the goroutine calling SetOnline and must not block.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline records the observed state. Only transitions notify subscribers;
// coming online also persists the last-online and last-sync-attempt markers.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	now := m.now()
	if online {
		m.lastOnline = now
	}
	subs := append([]func(bool){}, m.subs...)
	m.mu.Unlock()

	if online {
		m.log.Info("netstatus: online")
		if m.settings != nil {
			ctx := context.Background()
			for _, key := range []string{SettingLastOnline, SettingLastSyncAttempt} {
				if err := m.settings.SetTimeSetting(ctx, key, now); err != nil {
					m.log.Warn("netstatus: persist marker", "key", key, "err", err)
				}
			}
		}
	} else {
		m.log.Info("netstatus: offline")
	}

	for _, fn := range subs {
		fn(online)
	}
}
