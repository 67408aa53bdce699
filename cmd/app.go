package cmd

import (
	"errors"
	"fmt"

	"github.com/marcus/nhatky/internal/db"
	"github.com/marcus/nhatky/internal/netstatus"
	"github.com/marcus/nhatky/internal/output"
	"github.com/marcus/nhatky/internal/refdata"
	nksync "github.com/marcus/nhatky/internal/sync"
	"github.com/marcus/nhatky/internal/syncclient"
	"github.com/spf13/cobra"
)

// app is the wired subsystem one command works against.
type app struct {
	dataDir string
	store   *db.DB
	client  *syncclient.Client
	monitor *netstatus.Monitor
	prober  *netstatus.Prober
	refs    *refdata.Cache
	engine  *nksync.Engine
}

// openStore opens the local store in the configured data directory.
func openStore() (*db.DB, string, error) {
	dir, err := cfg.DataDirectory()
	if err != nil {
		return nil, "", err
	}
	opts := db.DefaultOpenOptions()
	opts.Logger = logger
	store, err := db.Open(dir, opts)
	if err != nil {
		return nil, "", err
	}
	return store, dir, nil
}

// newApp opens the store and wires client, monitor, reference cache and
// engine from the loaded config. The monitor starts offline; callers probe.
func newApp() (*app, error) {
	store, dir, err := openStore()
	if err != nil {
		return nil, err
	}
	client := syncclient.New(cfg.ServerURL(), cfg.Token)
	monitor := netstatus.NewMonitor(store, logger)
	refs := refdata.New(store, client, monitor, logger)
	engine := nksync.NewEngine(store, client, refs, monitor, nksync.Config{
		OwnerID:  cfg.UserID,
		Interval: cfg.SyncInterval(),
		Retry:    cfg.RetryPolicy(),
	}, logger)
	monitor.Subscribe(engine.OnNetworkChange)

	return &app{
		dataDir: dir,
		store:   store,
		client:  client,
		monitor: monitor,
		prober:  netstatus.NewProber(monitor, client, cfg.ProbeInterval(), logger),
		refs:    refs,
		engine:  engine,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// errorCode maps an error to the structured JSON error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return output.ErrCodeNotFound
	case errors.Is(err, db.ErrSchemaMismatch):
		return output.ErrCodeSchemaMismatch
	case errors.Is(err, db.ErrLockBusy):
		return output.ErrCodeLocked
	case errors.Is(err, nksync.ErrPassRunning):
		return output.ErrCodeSyncRunning
	case errors.Is(err, syncclient.ErrRemoteRejected):
		return output.ErrCodeRemoteError
	case errors.Is(err, errInvalidInput):
		return output.ErrCodeInvalidInput
	}
	return output.ErrCodeDatabaseError
}

var errInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errInvalidInput, fmt.Sprintf(format, args...))
}

// fail reports err in the requested output mode and returns it so cobra
// exits non-zero.
func fail(cmd *cobra.Command, err error) error {
	if jsonOutput(cmd) {
		output.JSONError(errorCode(err), err.Error())
	} else {
		output.Error("%v", err)
	}
	return reportedError{err}
}
