package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/marcus/nhatky/internal/models"
	"github.com/marcus/nhatky/internal/output"
	nksync "github.com/marcus/nhatky/internal/sync"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	// Handle small terminal sizes gracefully
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.Err != nil {
		return m.renderError()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	// 3 panels, status line and footer
	availableHeight := m.Height - 4
	panelHeight := availableHeight / 3

	panels := lipgloss.JoinVertical(lipgloss.Left,
		m.renderQueuePanel(panelHeight),
		m.renderEntriesPanel(panelHeight),
		m.renderConflictsPanel(panelHeight),
	)

	return lipgloss.JoinVertical(lipgloss.Left, panels, m.renderStatusLine(), m.renderFooter())
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder

	s.WriteString("nhatky watch (resize for full view)\n\n")
	s.WriteString(m.connectionBadge() + "\n")
	fmt.Fprintf(&s, "Queued: %d | Failing: %d | Given up: %d\n",
		len(m.Data.Queue), m.Data.Counts.Error, m.Data.Counts.Dead)
	fmt.Fprintf(&s, "Conflicts: %d\n", len(m.Data.Conflicts))

	s.WriteString("\nq:quit s:sync r:refresh ?:help")

	return s.String()
}

// renderError renders an error message
func (m Model) renderError() string {
	return fmt.Sprintf("Error: %v\n\nPress r to retry, q to quit", m.Err)
}

// renderQueuePanel lists queued changes in replay order (Panel 1)
func (m Model) renderQueuePanel(height int) string {
	title := fmt.Sprintf("PENDING CHANGES (%d)", len(m.Data.Queue))
	if len(m.Data.Queue) == 0 {
		return m.wrapPanel(title, subtleStyle.Render("Nothing waiting to sync"), height, PanelQueue)
	}

	var content strings.Builder
	offset := m.ScrollOffset[PanelQueue]
	visible := m.visibleItems(len(m.Data.Queue), offset, height-3)
	for i := offset; i < offset+visible; i++ {
		content.WriteString(m.formatQueueItem(m.Data.Queue[i]))
		content.WriteString("\n")
	}
	return m.wrapPanel(title, content.String(), height, PanelQueue)
}

// renderEntriesPanel lists the newest entries of the owner (Panel 2)
func (m Model) renderEntriesPanel(height int) string {
	title := fmt.Sprintf("TIMELINE (%d)", len(m.Data.Entries))
	if len(m.Data.Entries) == 0 {
		return m.wrapPanel(title, subtleStyle.Render("No entries"), height, PanelEntries)
	}

	var content strings.Builder
	offset := m.ScrollOffset[PanelEntries]
	visible := m.visibleItems(len(m.Data.Entries), offset, height-3)
	for i := offset; i < offset+visible; i++ {
		content.WriteString(m.formatEntry(m.Data.Entries[i]))
		content.WriteString("\n")
	}
	return m.wrapPanel(title, content.String(), height, PanelEntries)
}

// renderConflictsPanel lists recently detected conflicts (Panel 3)
func (m Model) renderConflictsPanel(height int) string {
	title := fmt.Sprintf("CONFLICTS (%d)", len(m.Data.Conflicts))
	if len(m.Data.Conflicts) == 0 {
		return m.wrapPanel(title, subtleStyle.Render("No conflicts"), height, PanelConflicts)
	}

	var content strings.Builder
	offset := m.ScrollOffset[PanelConflicts]
	visible := m.visibleItems(len(m.Data.Conflicts), offset, height-3)
	for i := offset; i < offset+visible; i++ {
		c := m.Data.Conflicts[i]
		fmt.Fprintf(&content, "%s %s %s\n",
			timestampStyle.Render(c.DetectedAt.Format("01-02 15:04")),
			titleStyle.Render(c.EntryID),
			subtleStyle.Render("local change kept, server copy recorded"))
	}
	return m.wrapPanel(title, content.String(), height, PanelConflicts)
}

// renderStatusLine shows connectivity, the sync banner and the last manual pass
func (m Model) renderStatusLine() string {
	parts := []string{m.connectionBadge(), output.SyncBanner(m.Data.Counts, m.Data.LastSuccess)}

	switch {
	case m.Syncing:
		parts = append(parts, m.spinner.View()+" syncing")
	case m.PassErr != nil:
		parts = append(parts, errorStyle.Render("sync: "+m.PassErr.Error()))
	case m.LastPass != nil:
		parts = append(parts, subtleStyle.Render(formatPass(*m.LastPass)))
	}
	return " " + strings.Join(parts, "  ")
}

func (m Model) connectionBadge() string {
	if m.Data.Online {
		return onlineBadge.Render(" ONLINE ")
	}
	return offlineBadge.Render(" OFFLINE ")
}

// renderFooter renders the footer with key bindings and refresh time
func (m Model) renderFooter() string {
	keys := helpStyle.Render("q:quit  tab:switch  j/k:scroll  s:sync now  r:refresh  ?:help")
	refresh := timestampStyle.Render(fmt.Sprintf("Last: %s", m.LastRefresh.Format("15:04:05")))

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(refresh) - 2
	if padding < 0 {
		padding = 0
	}

	return fmt.Sprintf(" %s%s%s", keys, strings.Repeat(" ", padding), refresh)
}

// renderHelp renders the help overlay
func (m Model) renderHelp() string {
	help := `
NHATKY WATCH - Key Bindings

NAVIGATION:
  Tab / Shift+Tab   Switch between panels
  1 / 2 / 3         Jump to panel
  j / k             Scroll active panel

ACTIONS:
  s                 Run a sync pass now
  r                 Force refresh
  q / Ctrl+C        Quit

Press ? to close help
`
	return helpStyle.Render(help)
}

// wrapPanel wraps content in a panel with title and border
func (m Model) wrapPanel(title, content string, height int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	titleStr := panelTitleStyle.Render(title)
	contentWidth := m.Width - 4 // border and padding

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	contentHeight := height - 3 // title and border

	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if contentHeight >= 0 && len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}

	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "…")
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, titleStr, strings.Join(lines, "\n"))
	return style.Width(m.Width - 2).Render(inner)
}

// formatQueueItem formats one queued change
func (m Model) formatQueueItem(item models.SyncQueueItem) string {
	line := fmt.Sprintf("%s %s %s",
		timestampStyle.Render(item.EnqueuedAt.Format("01-02 15:04")),
		formatOpBadge(item.Operation),
		titleStyle.Render(item.EntryID))
	if item.Dead {
		line += " " + deadBadge.Render("GIVEN UP")
	}
	if item.RetryCount > 0 {
		line += subtleStyle.Render(fmt.Sprintf(" (%d tries)", item.RetryCount))
	}
	if item.LastError != "" {
		line += " " + errorStyle.Render(item.LastError)
	}
	return line
}

// formatEntry formats an entry in a short single-line format
func (m Model) formatEntry(e *models.TimelineEntry) string {
	parts := []string{
		e.ExecutionDate,
		titleStyle.Render(e.ID),
		formatStatus(e.Sync.Status),
	}
	if e.Cost > 0 {
		parts = append(parts, output.FormatCost(e.Cost))
	}
	if e.Notes != "" {
		parts = append(parts, subtleStyle.Render(firstLine(e.Notes)))
	}
	return strings.Join(parts, " ")
}

// visibleItems calculates how many items can be shown given scroll offset and height
func (m Model) visibleItems(total, offset, height int) int {
	remaining := total - offset
	if remaining > height {
		return max(height, 0)
	}
	return max(remaining, 0)
}

func formatPass(res nksync.PassResult) string {
	if res.Skipped {
		return "last pass skipped (offline)"
	}
	s := fmt.Sprintf("last pass: %d synced, %d failed, %d pulled", res.Synced, res.Failed, res.Pulled)
	if res.Conflicts > 0 {
		s += fmt.Sprintf(", %d conflicts", res.Conflicts)
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
