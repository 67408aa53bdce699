package monitor

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/nhatky/internal/models"
)

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle     = lipgloss.NewStyle().Foreground(errorColor)
	syncingStyle   = lipgloss.NewStyle().Foreground(primaryColor)

	statusStyles = map[models.SyncStatus]lipgloss.Style{
		models.SyncPending: lipgloss.NewStyle().Foreground(warningColor),
		models.SyncSynced:  lipgloss.NewStyle().Foreground(successColor),
		models.SyncError:   lipgloss.NewStyle().Foreground(errorColor),
	}

	opBadges = map[models.Operation]lipgloss.Style{
		models.OpCreate: lipgloss.NewStyle().Foreground(successColor),
		models.OpUpdate: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.OpDelete: lipgloss.NewStyle().Foreground(errorColor),
	}

	deadBadge = lipgloss.NewStyle().Bold(true).Foreground(errorColor)

	onlineBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(successColor)

	offlineBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(warningColor)
)

// formatStatus renders a sync status with color
func formatStatus(s models.SyncStatus) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// formatOpBadge renders a queued operation as a fixed-width badge
func formatOpBadge(op models.Operation) string {
	label := map[models.Operation]string{
		models.OpCreate: "[NEW]",
		models.OpUpdate: "[UPD]",
		models.OpDelete: "[DEL]",
	}[op]
	style, ok := opBadges[op]
	if !ok {
		return subtleStyle.Render("[???]")
	}
	return style.Render(label)
}
