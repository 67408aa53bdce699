// Package entryform builds the interactive form for recording and editing
// timeline entries.
package entryform

import (
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/marcus/nhatky/internal/dateparse"
	"github.com/marcus/nhatky/internal/models"
)

var errNegative = errors.New("must be a number, zero or more")

// FormMode represents the mode of the form
type FormMode string

const (
	FormModeCreate FormMode = "create"
	FormModeEdit   FormMode = "edit"
)

// Choices are the cached reference lists offered in the selects.
type Choices struct {
	Seasons []models.Season
	Stages  []models.Stage
	Tasks   []models.Task
}

// FormState holds the bound values of the entry form
type FormState struct {
	Mode    FormMode
	Form    *huh.Form
	EntryID string // edit mode only

	Date         string
	SeasonID     string
	StageID      string
	TaskID       string
	Cost         string
	Quantity     string
	QuantityUnit string
	Notes        string

	choices Choices
}

// NewFormState prefills the form from e. A nil e starts an empty create form.
func NewFormState(e *models.TimelineEntry, choices Choices) *FormState {
	fs := &FormState{Mode: FormModeCreate, choices: choices}
	if e != nil {
		if e.ID != "" {
			fs.Mode = FormModeEdit
			fs.EntryID = e.ID
		}
		fs.Date = e.ExecutionDate
		fs.SeasonID = e.SeasonID
		fs.StageID = e.StageID
		fs.TaskID = e.TaskID
		fs.Cost = formatAmount(e.Cost)
		fs.Quantity = formatAmount(e.Quantity)
		fs.QuantityUnit = e.QuantityUnit
		fs.Notes = e.Notes
	}
	if fs.Date == "" {
		fs.Date, _ = dateparse.ParseDate("today")
	}
	fs.buildForm()
	return fs
}

// buildForm constructs the huh.Form based on current state
func (fs *FormState) buildForm() {
	titleStr := "New Entry"
	if fs.Mode == FormModeEdit {
		titleStr = "Edit Entry: " + fs.EntryID
	}

	catalogGroup := huh.NewGroup(
		huh.NewInput().
			Title("Date").
			Description("DD-MM-YYYY, YYYY-MM-DD, today, yesterday, -3d").
			Value(&fs.Date).
			Validate(validateDate),
		huh.NewSelect[string]().
			Title("Season").
			Options(fs.seasonOptions()...).
			Value(&fs.SeasonID),
		huh.NewSelect[string]().
			Title("Stage").
			Options(fs.stageOptions()...).
			Value(&fs.StageID),
		huh.NewSelect[string]().
			Title("Task").
			OptionsFunc(fs.taskOptions, &fs.StageID).
			Value(&fs.TaskID),
	).Title(titleStr)

	detailGroup := huh.NewGroup(
		huh.NewInput().
			Title("Cost").
			Value(&fs.Cost).
			Placeholder("0").
			Validate(validateAmount),
		huh.NewInput().
			Title("Quantity").
			Value(&fs.Quantity).
			Placeholder("0").
			Validate(validateAmount),
		huh.NewInput().
			Title("Unit").
			Value(&fs.QuantityUnit).
			Placeholder("kg, l, bao..."),
		huh.NewText().
			Title("Notes").
			Value(&fs.Notes).
			Placeholder("Optional notes...").
			Lines(3),
	).Title("Details")

	fs.Form = huh.NewForm(catalogGroup, detailGroup)
	fs.Form.WithTheme(huh.ThemeDracula())
}

func (fs *FormState) seasonOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("(none)", "")}
	for _, s := range fs.choices.Seasons {
		opts = append(opts, huh.NewOption(s.Name, s.ID))
	}
	return ensureOption(opts, fs.SeasonID)
}

func (fs *FormState) stageOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("(none)", "")}
	for _, s := range fs.choices.Stages {
		opts = append(opts, huh.NewOption(s.Name, s.ID))
	}
	return ensureOption(opts, fs.StageID)
}

// taskOptions lists the tasks of the selected stage, or every task when no
// stage is selected.
func (fs *FormState) taskOptions() []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("(none)", "")}
	for _, t := range fs.choices.Tasks {
		if fs.StageID != "" && t.StageID != fs.StageID {
			continue
		}
		opts = append(opts, huh.NewOption(t.Name, t.ID))
	}
	return ensureOption(opts, fs.TaskID)
}

// ensureOption keeps a current value selectable when the cache lacks it.
func ensureOption(opts []huh.Option[string], current string) []huh.Option[string] {
	if current == "" {
		return opts
	}
	for _, o := range opts {
		if o.Value == current {
			return opts
		}
	}
	return append(opts, huh.NewOption(current+" (not cached)", current))
}

// Apply copies the form values onto e.
func (fs *FormState) Apply(e *models.TimelineEntry) error {
	date, err := dateparse.ParseDate(strings.TrimSpace(fs.Date))
	if err != nil {
		return err
	}
	cost, err := parseAmount(fs.Cost)
	if err != nil {
		return err
	}
	qty, err := parseAmount(fs.Quantity)
	if err != nil {
		return err
	}

	e.ExecutionDate = date
	e.SeasonID = fs.SeasonID
	e.StageID = fs.StageID
	e.TaskID = fs.TaskID
	e.Cost = cost
	e.Quantity = qty
	e.QuantityUnit = strings.TrimSpace(fs.QuantityUnit)
	e.Notes = strings.TrimRight(fs.Notes, " \t\r\n")
	return nil
}

func validateDate(s string) error {
	_, err := dateparse.ParseDate(strings.TrimSpace(s))
	return err
}

func validateAmount(s string) error {
	_, err := parseAmount(s)
	return err
}

// parseAmount accepts an empty string as zero and "100,000" style grouping.
func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, errNegative
	}
	return v, nil
}

func formatAmount(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
