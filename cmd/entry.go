package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/marcus/nhatky/internal/dateparse"
	"github.com/marcus/nhatky/internal/db"
	"github.com/marcus/nhatky/internal/input"
	"github.com/marcus/nhatky/internal/models"
	"github.com/marcus/nhatky/internal/output"
	"github.com/marcus/nhatky/internal/refdata"
	"github.com/marcus/nhatky/internal/tui/entryform"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// entryJSON is the --json view of an entry, sync metadata included.
type entryJSON struct {
	*models.TimelineEntry
	SyncStatus   models.SyncStatus `json:"syncStatus"`
	Operation    models.Operation  `json:"operation"`
	LastModified int64             `json:"lastModified"`
	SyncError    string            `json:"syncError,omitempty"`
}

func toJSON(e *models.TimelineEntry) entryJSON {
	return entryJSON{
		TimelineEntry: e,
		SyncStatus:    e.Sync.Status,
		Operation:     e.Sync.Operation,
		LastModified:  e.Sync.LastModified,
		SyncError:     e.Sync.Error,
	}
}

var entryCmd = &cobra.Command{
	Use:     "entry",
	Aliases: []string{"e"},
	Short:   "Record and browse timeline entries",
	GroupID: "core",
}

var entryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a farm activity",
	Example: `  nhatky entry add --date 01-01-2025 --cost 100000 --task t1 --notes "Bon lot"
  nhatky entry add --date yesterday --chemical "Ure:2kg/sao:5:kg"
  nhatky entry add -i`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e := &models.TimelineEntry{UserID: cfg.UserID, UnitID: cfg.UnitID}
		if err := applyEntryFlags(cmd.Flags(), e); err != nil {
			return fail(cmd, err)
		}

		store, _, err := openStore()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			if err := runEntryForm(cmd.Context(), store, e); err != nil {
				return fail(cmd, err)
			}
		}
		if e.ExecutionDate == "" {
			today, _ := dateparse.ParseDate("today")
			e.ExecutionDate = today
		}

		saved, err := store.SaveTimelineEntry(cmd.Context(), e, models.OpCreate)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(toJSON(saved))
		}
		output.Success("ADDED %s", saved.ID)
		return nil
	},
}

var entryEditCmd = &cobra.Command{
	Use:   "edit <entry-id>",
	Short: "Change fields of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		e, err := store.GetTimelineEntry(cmd.Context(), args[0])
		if err != nil {
			return fail(cmd, err)
		}
		if err := applyEntryFlags(cmd.Flags(), e); err != nil {
			return fail(cmd, err)
		}
		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			if err := runEntryForm(cmd.Context(), store, e); err != nil {
				return fail(cmd, err)
			}
		}
		saved, err := store.SaveTimelineEntry(cmd.Context(), e, models.OpUpdate)
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(toJSON(saved))
		}
		output.Success("UPDATED %s", saved.ID)
		return nil
	},
}

var entryRmCmd = &cobra.Command{
	Use:     "rm <entry-id>...",
	Aliases: []string{"delete"},
	Short:   "Delete one or more entries",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		var firstErr error
		for _, id := range args {
			if err := store.DeleteTimelineEntry(cmd.Context(), id); err != nil {
				output.Error("failed to delete %s: %v", id, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			fmt.Printf("DELETED %s\n", id)
		}
		return firstErr
	},
}

var entryLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List timeline entries, newest execution date first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()
		ctx := cmd.Context()

		var entries []*models.TimelineEntry
		if pending, _ := cmd.Flags().GetBool("pending"); pending {
			entries, err = store.GetPendingSyncEntries(ctx)
		} else {
			owner := cfg.UserID
			if all, _ := cmd.Flags().GetBool("all"); all {
				owner = ""
			}
			entries, err = store.GetAllTimelineEntries(ctx, owner)
		}
		if err != nil {
			return fail(cmd, err)
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}

		if jsonOutput(cmd) {
			out := make([]entryJSON, len(entries))
			for i, e := range entries {
				out[i] = toJSON(e)
			}
			return output.JSON(out)
		}

		if len(entries) == 0 {
			fmt.Println("No entries")
		}
		for _, e := range entries {
			fmt.Println(output.FormatEntryShort(e))
		}

		counts, err := store.SyncCounts(ctx)
		if err == nil && (counts.Unsynced() > 0 || counts.Dead > 0) {
			fmt.Println()
			fmt.Println(output.SyncBanner(counts, lastSyncSuccess(ctx, store)))
		}
		return nil
	},
}

var entryShowCmd = &cobra.Command{
	Use:   "show <entry-id>",
	Short: "Show every field of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return fail(cmd, err)
		}
		defer store.Close()

		e, err := store.GetTimelineEntry(cmd.Context(), args[0])
		if err != nil {
			return fail(cmd, err)
		}
		if jsonOutput(cmd) {
			return output.JSON(toJSON(e))
		}
		if render, _ := cmd.Flags().GetBool("render-markdown"); render && e.Notes != "" {
			if notes, err := output.RenderNotes(e.Notes, output.TerminalWidth(80)-2); err == nil {
				e.Notes = notes
			} else {
				logger.Debug("render notes", "err", err)
			}
		}
		fmt.Print(output.FormatEntryLong(e))
		return nil
	},
}

// stdin feeds "-" flag values.
var stdin io.Reader = os.Stdin

// applyEntryFlags copies every changed field flag onto e. --notes accepts
// "-" and "@file"; --chemical and --image expand them line by line.
func applyEntryFlags(flags *pflag.FlagSet, e *models.TimelineEntry) error {
	x := &input.Expander{Stdin: stdin}
	if flags.Changed("date") {
		raw, _ := flags.GetString("date")
		date, err := dateparse.ParseDate(raw)
		if err != nil {
			return invalidInput("%v", err)
		}
		e.ExecutionDate = date
	}

	strs := map[string]*string{
		"season":        &e.SeasonID,
		"stage":         &e.StageID,
		"task":          &e.TaskID,
		"notes":         &e.Notes,
		"quantity-unit": &e.QuantityUnit,
	}
	for name, field := range strs {
		if flags.Changed(name) {
			*field, _ = flags.GetString(name)
		}
	}
	if flags.Changed("notes") {
		notes, err := x.Text(e.Notes)
		if err != nil {
			return invalidInput("--notes: %v", err)
		}
		e.Notes = notes
	}

	if flags.Changed("cost") {
		e.Cost, _ = flags.GetFloat64("cost")
		if e.Cost < 0 {
			return invalidInput("cost must not be negative")
		}
	}
	if flags.Changed("quantity") {
		e.Quantity, _ = flags.GetFloat64("quantity")
		if e.Quantity < 0 {
			return invalidInput("quantity must not be negative")
		}
	}

	if flags.Changed("image") {
		raw, _ := flags.GetStringArray("image")
		images, err := x.Lines(raw)
		if err != nil {
			return invalidInput("--image: %v", err)
		}
		e.Images = images
	}
	if flags.Changed("chemical") {
		raw, _ := flags.GetStringArray("chemical")
		raw, err := x.Lines(raw)
		if err != nil {
			return invalidInput("--chemical: %v", err)
		}
		chems := make([]models.ChemicalUsage, 0, len(raw))
		for _, s := range raw {
			c, err := parseChemical(s)
			if err != nil {
				return err
			}
			chems = append(chems, c)
		}
		e.Chemicals = chems
	}
	return nil
}

// runEntryForm edits e in the interactive form, offering the cached seasons,
// stages and tasks. It never touches the network.
func runEntryForm(ctx context.Context, store *db.DB, e *models.TimelineEntry) error {
	if !output.IsTerminal() {
		return invalidInput("--interactive needs a terminal")
	}
	refs := refdata.New(store, nil, nil, logger)
	var choices entryform.Choices
	var err error
	if choices.Seasons, err = refs.Seasons(ctx); err != nil {
		return err
	}
	if choices.Stages, err = refs.Stages(ctx); err != nil {
		return err
	}
	if choices.Tasks, err = refs.Tasks(ctx); err != nil {
		return err
	}

	fs := entryform.NewFormState(e, choices)
	if err := fs.Form.RunWithContext(ctx); err != nil {
		return err
	}
	return fs.Apply(e)
}

// parseChemical parses "name[:dosage[:quantity[:unit]]]".
func parseChemical(s string) (models.ChemicalUsage, error) {
	parts := strings.SplitN(s, ":", 4)
	c := models.ChemicalUsage{Name: strings.TrimSpace(parts[0])}
	if c.Name == "" {
		return c, invalidInput("chemical %q: name is required", s)
	}
	if len(parts) > 1 {
		c.Dosage = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		q, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || q < 0 {
			return c, invalidInput("chemical %q: bad quantity %q", s, parts[2])
		}
		c.Quantity = q
	}
	if len(parts) > 3 {
		c.Unit = strings.TrimSpace(parts[3])
	}
	return c, nil
}

func addEntryFieldFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("date", "", "Execution date (DD-MM-YYYY, YYYY-MM-DD, today, yesterday, -3d, monday)")
	f.Float64("cost", 0, "Cost of the activity")
	f.Float64("quantity", 0, "Quantity applied or harvested")
	f.String("quantity-unit", "", "Unit of --quantity")
	f.String("notes", "", "Free-form notes (- reads stdin, @file reads a file)")
	f.String("season", "", "Season ID")
	f.String("stage", "", "Growth stage ID")
	f.String("task", "", "Task ID")
	f.StringArray("chemical", nil, "Chemical used as name[:dosage[:quantity[:unit]]] (repeatable, @file for one per line)")
	f.BoolP("interactive", "i", false, "Fill in the entry with a form")
	f.StringArray("image", nil, "Image reference (repeatable, @file for one per line)")
}

func init() {
	rootCmd.AddCommand(entryCmd)
	entryCmd.AddCommand(entryAddCmd, entryEditCmd, entryRmCmd, entryLsCmd, entryShowCmd)

	addEntryFieldFlags(entryAddCmd)
	addEntryFieldFlags(entryEditCmd)

	entryShowCmd.Flags().BoolP("render-markdown", "m", false, "Render notes as markdown")
	entryLsCmd.Flags().Bool("all", false, "List entries of every owner")
	entryLsCmd.Flags().Bool("pending", false, "Only entries with changes waiting to sync")
	entryLsCmd.Flags().IntP("limit", "n", 0, "Max entries to show (0 = all)")
}
