// Package input provides helpers for reading flag values from stdin and files
// (@file syntax).
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrStdinUsed is returned when more than one flag value asks for stdin.
var ErrStdinUsed = errors.New("stdin already used by another flag")

// Expander resolves "-" (stdin) and "@path" flag values. Stdin can be read
// once per Expander.
type Expander struct {
	Stdin     io.Reader
	stdinUsed bool
}

func (x *Expander) open(v string) (io.ReadCloser, error) {
	if v == "-" {
		if x.stdinUsed {
			return nil, ErrStdinUsed
		}
		x.stdinUsed = true
		stdin := x.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.NopCloser(stdin), nil
	}
	path := strings.TrimPrefix(v, "@")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return f, nil
}

func expandable(v string) bool {
	return v == "-" || (strings.HasPrefix(v, "@") && len(v) > 1)
}

// Text expands a single value into the whole text it names, with trailing
// whitespace trimmed. Plain values are returned as is.
func (x *Expander) Text(v string) (string, error) {
	if !expandable(v) {
		return v, nil
	}
	r, err := x.open(v)
	if err != nil {
		return "", err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), " \t\r\n"), nil
}

// Lines expands every value, replacing "-" and "@path" with the non-empty
// lines they contain.
func (x *Expander) Lines(values []string) ([]string, error) {
	var result []string
	for _, v := range values {
		if !expandable(v) {
			result = append(result, v)
			continue
		}
		r, err := x.open(v)
		if err != nil {
			return nil, err
		}
		lines, err := ReadLines(r)
		r.Close()
		if err != nil {
			return nil, err
		}
		result = append(result, lines...)
	}
	return result, nil
}

// ReadLines reads non-empty, trimmed lines from a reader.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
