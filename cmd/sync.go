package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/marcus/nhatky/internal/db"
	"github.com/marcus/nhatky/internal/models"
	"github.com/marcus/nhatky/internal/output"
	nksync "github.com/marcus/nhatky/internal/sync"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued changes against the server",
	Long: `Runs one reconciliation pass: queued creates, updates and deletes are sent
in the order they were made, the owner's timeline is pulled back and the
reference collections are refreshed. Failed items stay queued for the next pass.`,
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if status, _ := cmd.Flags().GetBool("status"); status {
			return runSyncStatus(cmd)
		}
		if n, _ := cmd.Flags().GetInt("conflicts"); n > 0 {
			return runSyncConflicts(cmd, n)
		}

		a, err := newApp()
		if err != nil {
			return fail(cmd, err)
		}
		defer a.Close()
		ctx := cmd.Context()

		a.prober.Probe(ctx)
		res, err := a.engine.RunPass(ctx)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(passJSON(res))
		}
		printPassResult(res)

		counts, err := a.store.SyncCounts(ctx)
		if err == nil {
			fmt.Println(output.SyncBanner(counts, lastSyncSuccess(ctx, a.store)))
		}
		return nil
	},
}

func runSyncStatus(cmd *cobra.Command) error {
	store, _, err := openStore()
	if err != nil {
		return fail(cmd, err)
	}
	defer store.Close()
	ctx := cmd.Context()

	counts, err := store.SyncCounts(ctx)
	if err != nil {
		return fail(cmd, err)
	}
	last := lastSyncSuccess(ctx, store)
	lastOnline, _ := store.GetTimeSetting(ctx, db.SettingLastOnline)

	if jsonOutput(cmd) {
		return output.JSON(map[string]interface{}{
			"pending":         counts.Pending,
			"error":           counts.Error,
			"dead":            counts.Dead,
			"lastSyncSuccess": timeOrNil(last),
			"lastOnline":      timeOrNil(lastOnline),
		})
	}

	fmt.Println(output.SyncBanner(counts, last))
	if !lastOnline.IsZero() {
		fmt.Printf("Last online: %s\n", output.FormatTimeAgo(lastOnline))
	}
	return nil
}

func runSyncConflicts(cmd *cobra.Command, limit int) error {
	store, _, err := openStore()
	if err != nil {
		return fail(cmd, err)
	}
	defer store.Close()

	conflicts, err := store.ListConflicts(cmd.Context(), limit)
	if err != nil {
		return fail(cmd, err)
	}
	if jsonOutput(cmd) {
		return output.JSON(conflicts)
	}
	if len(conflicts) == 0 {
		fmt.Println("No conflicts recorded")
		return nil
	}
	fmt.Printf("Conflicts (%d), local edits were kept:\n\n", len(conflicts))
	for _, c := range conflicts {
		fmt.Printf("%s  %s\n", c.DetectedAt.Local().Format("2006-01-02 15:04:05"), c.EntryID)
		fmt.Println(output.IndentString("local:  "+c.LocalData, 2))
		fmt.Println(output.IndentString("server: "+c.RemoteData, 2))
		fmt.Println()
	}
	return nil
}

func lastSyncSuccess(ctx context.Context, store *db.DB) time.Time {
	t, err := store.GetTimeSetting(ctx, db.SettingLastSyncSuccess)
	if err != nil {
		logger.Debug("sync: read last success", "err", err)
	}
	return t
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}

func passJSON(res nksync.PassResult) map[string]interface{} {
	refreshErrs := map[string]string{}
	for kind, err := range res.RefreshErrors {
		refreshErrs[string(kind)] = err.Error()
	}
	out := map[string]interface{}{
		"skipped":       res.Skipped,
		"attempted":     res.Attempted,
		"synced":        res.Synced,
		"failed":        res.Failed,
		"pulled":        res.Pulled,
		"removed":       res.Removed,
		"conflicts":     res.Conflicts,
		"refreshErrors": refreshErrs,
		"durationMs":    res.Duration.Milliseconds(),
	}
	if res.PullError != nil {
		out["pullError"] = res.PullError.Error()
	}
	return out
}

func printPassResult(res nksync.PassResult) {
	if res.Skipped {
		output.Warning("offline, changes stay queued until the server is reachable")
		return
	}
	switch {
	case res.Attempted == 0:
		fmt.Println("Nothing to push")
	case res.Failed == 0:
		output.Success("Pushed %d change(s)", res.Synced)
	default:
		output.Warning("Pushed %d of %d change(s), %d failed and will be retried", res.Synced, res.Attempted, res.Failed)
	}
	if res.PullError != nil {
		output.Warning("pull failed: %v", res.PullError)
	} else if res.Pulled > 0 || res.Removed > 0 {
		fmt.Printf("Pulled %d entries, removed %d\n", res.Pulled, res.Removed)
	}
	if res.Conflicts > 0 {
		output.Warning("%d server change(s) conflicted with local edits; see 'nhatky sync --conflicts 10'", res.Conflicts)
	}

	kinds := make([]string, 0, len(res.RefreshErrors))
	for kind := range res.RefreshErrors {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		output.Warning("%v", res.RefreshErrors[models.ReferenceKind(k)])
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("status", false, "Show unsynced change counts and the last successful sync")
	syncCmd.Flags().Int("conflicts", 0, "Show the N most recent server conflicts")
}
