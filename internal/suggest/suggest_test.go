package suggest

import (
	"reflect"
	"testing"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"cost", "", 4},
		{"cost", "cost", 0},
		{"cots", "cost", 2},
		{"quantty", "quantity", 1},
		{"mùa", "mua", 1},
	}
	for _, tc := range tests {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFlag(t *testing.T) {
	valid := []string{"--date", "--cost", "--quantity", "--quantity-unit", "--notes"}

	got := Flag("--quantty", valid)
	if len(got) == 0 || got[0] != "--quantity" {
		t.Errorf("Flag(--quantty) = %v, want --quantity first", got)
	}
	if got := Flag("--zzzzzzzzzzzz", valid); len(got) != 0 {
		t.Errorf("Flag(far) = %v, want none", got)
	}
}

func TestSimilar_CaseInsensitiveAndCapped(t *testing.T) {
	got := Similar("G1", []string{"g1", "g2", "g3", "g4", "stage-long-name"})
	if len(got) != 3 || got[0] != "g1" {
		t.Errorf("Similar = %v", got)
	}
}

func TestGetFlagHint(t *testing.T) {
	if got := GetFlagHint("--Price"); got != "--cost" {
		t.Errorf("GetFlagHint(--Price) = %q", got)
	}
	if got := GetFlagHint("--date"); got != "" {
		t.Errorf("GetFlagHint(--date) = %q, want empty", got)
	}
	if !reflect.DeepEqual(Flag("--note", []string{"--notes"}), []string{"--notes"}) {
		t.Error("Flag(--note) should suggest --notes")
	}
}
