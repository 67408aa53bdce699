// Package dateparse converts the execution dates recorded on timeline entries
// between the field format used by the farm log (DD-MM-YYYY) and a sortable
// ISO key (YYYY-MM-DD).
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DisplayLayout is the date layout the remote API and the log forms use.
const DisplayLayout = "02-01-2006"

// KeyLayout is the sortable storage layout.
const KeyLayout = "2006-01-02"

var inputLayouts = []string{
	DisplayLayout,
	"02/01/2006",
	"2-1-2006",
	"2/1/2006",
	KeyLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Parse interprets an execution date in any of the accepted layouts.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

// Normalize returns the YYYY-MM-DD key for an execution date.
func Normalize(s string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return t.Format(KeyLayout), nil
}

// ParseDate parses user input for an execution date and returns it in
// DisplayLayout. Uses the current time as the reference point.
//
// Supported formats:
//   - Exact dates: "01-01-2025", "01/01/2025", "2025-01-01"
//   - Relative days back: "-3d"
//   - Relative weeks back: "-2w"
//   - Keywords: "today", "yesterday"
//   - Day names: "monday", "tuesday", etc. (most recent past occurrence)
func ParseDate(input string) (string, error) {
	return ParseDateFrom(input, time.Now())
}

// ParseDateFrom parses a date input string relative to the given reference time.
// This variant enables deterministic testing with a fixed "now".
func ParseDateFrom(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return "", fmt.Errorf("empty date input")
	}

	if t, err := Parse(input); err == nil {
		return formatDate(t), nil
	}

	switch input {
	case "today":
		return formatDate(now), nil
	case "yesterday":
		return formatDate(now.AddDate(0, 0, -1)), nil
	}

	// Relative offsets into the past: -Nd, -Nw
	if strings.HasPrefix(input, "-") && len(input) >= 3 {
		suffix := input[len(input)-1]
		numStr := input[1 : len(input)-1]
		n, err := strconv.Atoi(numStr)
		if err == nil && n >= 0 {
			switch suffix {
			case 'd':
				return formatDate(now.AddDate(0, 0, -n)), nil
			case 'w':
				return formatDate(now.AddDate(0, 0, -n*7)), nil
			default:
				return "", fmt.Errorf("unknown relative unit %q in %q (use d or w)", string(suffix), input)
			}
		}
	}

	// Day names: most recent occurrence of that weekday, today included
	dayMap := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
	if target, ok := dayMap[input]; ok {
		daysBack := (int(now.Weekday()) - int(target) + 7) % 7
		return formatDate(now.AddDate(0, 0, -daysBack)), nil
	}

	return "", fmt.Errorf("unrecognized date format: %q", input)
}

func formatDate(t time.Time) string {
	return t.Format(DisplayLayout)
}
