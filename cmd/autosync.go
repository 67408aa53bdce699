package cmd

import (
	"context"
	"errors"
	"time"

	nksync "github.com/marcus/nhatky/internal/sync"
)

// autoSyncTimeout bounds the post-mutation pass.
const autoSyncTimeout = 10 * time.Second

// mutatingCommands lists commands that modify local data and should trigger auto-sync.
var mutatingCommands = map[string]bool{
	"add":    true,
	"edit":   true,
	"rm":     true,
	"delete": true,
}

// isMutatingCommand checks if the given command name triggers auto-sync.
func isMutatingCommand(name string) bool {
	return mutatingCommands[name]
}

// autoSyncAfterMutation runs one quick pass after a mutating command completes
// when auto-sync is enabled and the API answers. Errors are logged, not returned.
func autoSyncAfterMutation(ctx context.Context) {
	if cfg == nil || !cfg.AutoSyncEnabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, autoSyncTimeout)
	defer cancel()

	a, err := newApp()
	if err != nil {
		logger.Debug("autosync: open store", "err", err)
		return
	}
	defer a.Close()
	a.client.HTTP.Timeout = 5 * time.Second

	if !a.prober.Probe(ctx) {
		logger.Debug("autosync: offline, change stays queued")
		return
	}
	res, err := a.engine.RunPass(ctx)
	if err != nil {
		if !errors.Is(err, nksync.ErrPassRunning) {
			logger.Debug("autosync: pass", "err", err)
		}
		return
	}
	logger.Debug("autosync: pushed", "synced", res.Synced, "failed", res.Failed)
}
