package input

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Bon lot dot 1\nUre 5kg\n\n"), 0644); err != nil {
		t.Fatal(err)
	}

	x := &Expander{Stdin: strings.NewReader("from stdin\n")}
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"@", "@"},
		{"@" + path, "Bon lot dot 1\nUre 5kg"},
		{"-", "from stdin"},
	}
	for _, tc := range tests {
		got, err := x.Text(tc.in)
		if err != nil {
			t.Fatalf("Text(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("Text(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	if _, err := x.Text("-"); !errors.Is(err, ErrStdinUsed) {
		t.Errorf("second stdin read: got %v, want ErrStdinUsed", err)
	}
	if _, err := x.Text("@" + filepath.Join(dir, "missing")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chems.txt")
	if err := os.WriteFile(path, []byte("Ure:2kg\n\n  Kali  \n"), 0644); err != nil {
		t.Fatal(err)
	}

	x := &Expander{Stdin: strings.NewReader("a.jpg\nb.jpg\n")}
	got, err := x.Lines([]string{"Lan", "@" + path, "-"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Lan", "Ure:2kg", "Kali", "a.jpg", "b.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Lines = %q, want %q", got, want)
	}
}
