package output

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const minNotesWidth = 20

// RenderNotes renders entry notes as markdown wrapped to width columns.
// Blank notes render as "".
func RenderNotes(notes string, width int) (string, error) {
	if strings.TrimSpace(notes) == "" {
		return "", nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width, minNotesWidth)),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(notes)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}
