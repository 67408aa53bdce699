// Package output provides styled terminal output helpers (success, error,
// warning, timeline entry formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/nhatky/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	costStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyles = map[models.SyncStatus]lipgloss.Style{
		models.SyncPending: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.SyncSynced:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.SyncError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound       = "not_found"
	ErrCodeInvalidInput   = "invalid_input"
	ErrCodeDatabaseError  = "database_error"
	ErrCodeSchemaMismatch = "schema_mismatch"
	ErrCodeRemoteError    = "remote_error"
	ErrCodeSyncRunning    = "sync_running"
	ErrCodeLocked         = "database_locked"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// FormatSyncStatus formats a sync status with color
func FormatSyncStatus(s models.SyncStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatCost renders a cost with thousands grouping, e.g. 100000 -> "100,000".
// Fractions are kept to two places.
func FormatCost(cost float64) string {
	neg := cost < 0
	if neg {
		cost = -cost
	}
	cents := int64(math.Round(cost * 100))
	digits := strconv.FormatInt(cents/100, 10)
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(d)
	}
	if frac := cents % 100; frac != 0 {
		sb.WriteString(fmt.Sprintf(".%02d", frac))
	}
	return sb.String()
}

// FormatEntryShort formats a timeline entry on one line
func FormatEntryShort(e *models.TimelineEntry) string {
	var parts []string
	parts = append(parts, titleStyle.Render(e.ID))
	date := e.ExecutionDate
	if date == "" {
		date = "-"
	}
	parts = append(parts, date)
	if e.Cost != 0 {
		parts = append(parts, costStyle.Render(FormatCost(e.Cost)))
	}
	if e.Notes != "" {
		parts = append(parts, Truncate(firstLine(e.Notes), 48))
	}
	if e.TaskID != "" {
		parts = append(parts, subtleStyle.Render("task:"+e.TaskID))
	}
	parts = append(parts, FormatSyncStatus(e.Sync.Status))
	return strings.Join(parts, "  ")
}

// FormatEntryLong formats a timeline entry with every field
func FormatEntryLong(e *models.TimelineEntry) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(e.ID))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Sync: %s", FormatSyncStatus(e.Sync.Status)))
	if e.Sync.LastModified > 0 {
		sb.WriteString(fmt.Sprintf(" | Modified: %s", FormatTimeAgo(time.Unix(0, e.Sync.LastModified))))
	}
	sb.WriteString("\n")

	field := func(label, value string) {
		if value != "" {
			sb.WriteString(fmt.Sprintf("%s: %s\n", label, value))
		}
	}
	field("Date", e.ExecutionDate)
	field("Season", e.SeasonID)
	field("Stage", e.StageID)
	field("Task", e.TaskID)
	if e.Cost != 0 {
		field("Cost", FormatCost(e.Cost))
	}
	if e.Quantity != 0 {
		field("Quantity", strings.TrimSpace(strconv.FormatFloat(e.Quantity, 'f', -1, 64)+" "+e.QuantityUnit))
	}
	field("Owner", e.UserID)
	field("Unit", e.UnitID)

	if e.Notes != "" {
		sb.WriteString(SectionHeader("Notes"))
		sb.WriteString(IndentString(e.Notes, 2))
		sb.WriteString("\n")
	}

	if len(e.Chemicals) > 0 {
		sb.WriteString(SectionHeader("Chemicals"))
		items := make([]string, len(e.Chemicals))
		for i, c := range e.Chemicals {
			items[i] = formatChemical(c)
		}
		sb.WriteString(strings.Join(BulletList(items, 2), "\n"))
		sb.WriteString("\n")
	}

	if len(e.Images) > 0 {
		sb.WriteString(SectionHeader("Images"))
		sb.WriteString(strings.Join(BulletList(e.Images, 2), "\n"))
		sb.WriteString("\n")
	}

	if e.Sync.Error != "" {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render("Last sync error: " + e.Sync.Error))
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatChemical(c models.ChemicalUsage) string {
	s := c.Name
	if c.Dosage != "" {
		s += " (" + c.Dosage + ")"
	}
	if c.Quantity != 0 {
		s += " " + strings.TrimSpace(strconv.FormatFloat(c.Quantity, 'f', -1, 64)+" "+c.Unit)
	}
	return s
}

// SyncBanner summarises unsynced local work, e.g.
// "3 unsynced changes, last synced 5m ago".
func SyncBanner(counts models.SyncCounts, lastSuccess time.Time) string {
	last := "never synced"
	if !lastSuccess.IsZero() {
		last = "last synced " + FormatTimeAgo(lastSuccess)
	}

	n := counts.Unsynced()
	if n == 0 && counts.Dead == 0 {
		return successStyle.Render("All changes synced") + subtleStyle.Render(" ("+last+")")
	}

	var parts []string
	if n > 0 {
		noun := "changes"
		if n == 1 {
			noun = "change"
		}
		parts = append(parts, fmt.Sprintf("%d unsynced %s", n, noun))
	}
	if counts.Error > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%d failing", counts.Error)))
	}
	if counts.Dead > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%d given up (run 'nhatky requeue')", counts.Dead)))
	}
	return warningStyle.Render(strings.Join(parts, ", ")) + subtleStyle.Render(", "+last)
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nCHEMICALS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
