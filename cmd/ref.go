package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/marcus/nhatky/internal/models"
	"github.com/marcus/nhatky/internal/output"
	"github.com/marcus/nhatky/internal/suggest"
	"github.com/spf13/cobra"
)

var refCmd = &cobra.Command{
	Use:     "ref",
	Short:   "Look up seasons, growth stages and tasks",
	GroupID: "core",
}

// withRefs wires the app, probes once and refreshes kind when --refresh is set.
func withRefs(cmd *cobra.Command, kind models.ReferenceKind, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return fail(cmd, err)
	}
	defer a.Close()
	ctx := cmd.Context()

	a.prober.Probe(ctx)
	if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
		if !a.monitor.Online() {
			output.Warning("offline, showing cached %s", kind)
		} else if err := a.refs.Refresh(ctx, kind); err != nil {
			output.Warning("%v", err)
		}
	}
	if err := fn(ctx, a); err != nil {
		return fail(cmd, err)
	}
	return nil
}

var refSeasonsCmd = &cobra.Command{
	Use:   "seasons",
	Short: "List growing seasons",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRefs(cmd, models.RefSeasons, func(ctx context.Context, a *app) error {
			seasons, err := a.refs.Seasons(ctx)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(seasons)
			}
			for _, s := range seasons {
				line := fmt.Sprintf("%-12s %s", s.ID, s.Name)
				if s.StartDate != "" || s.EndDate != "" {
					line += fmt.Sprintf("  (%s .. %s)", s.StartDate, s.EndDate)
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

var refStagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List growth stages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRefs(cmd, models.RefStages, func(ctx context.Context, a *app) error {
			stages, err := a.refs.Stages(ctx)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(stages)
			}
			for _, s := range stages {
				fmt.Printf("%-12s %s\n", s.ID, s.Name)
			}
			return nil
		})
	},
}

var refTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks, optionally for one growth stage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRefs(cmd, models.RefTasks, func(ctx context.Context, a *app) error {
			var tasks []models.Task
			var err error
			stage, _ := cmd.Flags().GetString("stage")
			if stage != "" {
				tasks, err = a.refs.TasksByStageID(ctx, stage)
				if err == nil && len(tasks) == 0 {
					warnUnknownStage(ctx, a, stage)
				}
			} else {
				tasks, err = a.refs.Tasks(ctx)
			}
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(tasks)
			}
			for _, t := range tasks {
				fmt.Printf("%-12s %-12s %s\n", t.ID, t.StageID, t.Name)
			}
			return nil
		})
	},
}

// warnUnknownStage points at similar stage IDs or names when stage matches none.
func warnUnknownStage(ctx context.Context, a *app, stage string) {
	stages, err := a.refs.Stages(ctx)
	if err != nil {
		return
	}
	var candidates []string
	for _, s := range stages {
		if s.ID == stage {
			return
		}
		candidates = append(candidates, s.ID, s.Name)
	}
	if similar := suggest.Similar(stage, candidates); len(similar) > 0 {
		output.Warning("no stage %q; did you mean %s?", stage, strings.Join(similar, ", "))
	}
}

func init() {
	rootCmd.AddCommand(refCmd)
	refCmd.AddCommand(refSeasonsCmd, refStagesCmd, refTasksCmd)
	refCmd.PersistentFlags().Bool("refresh", false, "Reload from the server before listing")
	refTasksCmd.Flags().String("stage", "", "Only tasks of this growth stage")
}
