package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/marcus/nhatky/internal/logging"
	"github.com/marcus/nhatky/internal/output"
	nksync "github.com/marcus/nhatky/internal/sync"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync in the background until interrupted",
	Long: `Probes the API, runs a pass on every interval, on every offline to online
transition and whenever 'nhatky trigger' touches the trigger file.
Logs go to <data-dir>/logs/nhatky.log as well as stderr.`,
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := cfg.DataDirectory()
		if err != nil {
			return fail(cmd, err)
		}
		debug, _ := cmd.Flags().GetBool("debug")
		var closeLog func() error
		logger, closeLog = logging.Setup(logging.Options{Debug: debug, Dir: filepath.Join(dir, "logs")})
		defer closeLog()

		a, err := newApp()
		if err != nil {
			return fail(cmd, err)
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		watcher, err := nksync.NewTriggerWatcher(a.dataDir, a.engine.Trigger, logger)
		if err != nil {
			return fail(cmd, err)
		}
		if err := watcher.Start(); err != nil {
			return fail(cmd, err)
		}
		defer watcher.Stop()

		logger.Info("daemon: started", "data_dir", a.dataDir, "api", cfg.ServerURL(),
			"interval", cfg.SyncInterval(), "probe_interval", cfg.ProbeInterval())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return a.prober.Run(gctx) })
		g.Go(func() error { return a.engine.Run(gctx) })
		err = g.Wait()

		logger.Info("daemon: stopped")
		return err
	},
}

var triggerCmd = &cobra.Command{
	Use:     "trigger",
	Short:   "Ask a running daemon to sync now",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := cfg.DataDirectory()
		if err != nil {
			return fail(cmd, err)
		}
		if err := nksync.TouchTrigger(dir); err != nil {
			return fail(cmd, err)
		}
		if !jsonOutput(cmd) {
			output.Success("Sync requested")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd, triggerCmd)
}
