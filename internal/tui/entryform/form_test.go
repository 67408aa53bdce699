package entryform

import (
	"testing"

	"github.com/marcus/nhatky/internal/models"
)

var testChoices = Choices{
	Seasons: []models.Season{{ID: "s1", Name: "Dong Xuan 2025"}},
	Stages:  []models.Stage{{ID: "g1", Name: "Lam dat"}, {ID: "g2", Name: "Bon phan"}},
	Tasks: []models.Task{
		{ID: "t1", Name: "Cay", StageID: "g1"},
		{ID: "t2", Name: "Bon lot", StageID: "g2"},
		{ID: "t3", Name: "Bon thuc", StageID: "g2"},
	},
}

func optionValues(fs *FormState) []string {
	var vals []string
	for _, o := range fs.taskOptions() {
		vals = append(vals, o.Value)
	}
	return vals
}

func TestNewFormState_CreateDefaults(t *testing.T) {
	fs := NewFormState(nil, testChoices)
	if fs.Mode != FormModeCreate {
		t.Errorf("mode = %q", fs.Mode)
	}
	if fs.Date == "" {
		t.Error("date should default to today")
	}
	if fs.Form == nil {
		t.Fatal("form not built")
	}
}

func TestNewFormState_EditPrefills(t *testing.T) {
	e := &models.TimelineEntry{
		ID:            "srv_1",
		ExecutionDate: "01-01-2025",
		StageID:       "g2",
		TaskID:        "t2",
		Cost:          100000,
		Notes:         "Ure",
	}
	fs := NewFormState(e, testChoices)
	if fs.Mode != FormModeEdit || fs.EntryID != "srv_1" {
		t.Errorf("mode = %q id = %q", fs.Mode, fs.EntryID)
	}
	if fs.Cost != "100000" || fs.Quantity != "" || fs.Date != "01-01-2025" {
		t.Errorf("prefill: cost=%q qty=%q date=%q", fs.Cost, fs.Quantity, fs.Date)
	}
}

func TestTaskOptionsFollowStage(t *testing.T) {
	fs := NewFormState(nil, testChoices)

	if got := optionValues(fs); len(got) != 4 {
		t.Errorf("no stage: options = %v, want none plus 3 tasks", got)
	}

	fs.StageID = "g2"
	got := optionValues(fs)
	if len(got) != 3 || got[1] != "t2" || got[2] != "t3" {
		t.Errorf("stage g2: options = %v", got)
	}

	fs.TaskID = "t9"
	got = optionValues(fs)
	if got[len(got)-1] != "t9" {
		t.Errorf("uncached current task should stay selectable: %v", got)
	}
}

func TestApply(t *testing.T) {
	fs := NewFormState(nil, testChoices)
	fs.Date = "2025-01-02"
	fs.StageID = "g2"
	fs.TaskID = "t2"
	fs.Cost = "100,000"
	fs.Quantity = " 5 "
	fs.QuantityUnit = " kg "
	fs.Notes = "Bon lot\n\n"

	e := &models.TimelineEntry{ID: "local_x", UserID: "u1"}
	if err := fs.Apply(e); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if e.ExecutionDate != "02-01-2025" || e.Cost != 100000 || e.Quantity != 5 {
		t.Errorf("entry = %+v", e)
	}
	if e.QuantityUnit != "kg" || e.Notes != "Bon lot" || e.UserID != "u1" {
		t.Errorf("entry = %+v", e)
	}
}

func TestApply_Invalid(t *testing.T) {
	for _, tc := range []struct{ date, cost string }{
		{"someday", ""},
		{"today", "-5"},
		{"today", "abc"},
	} {
		fs := NewFormState(nil, testChoices)
		fs.Date, fs.Cost = tc.date, tc.cost
		if err := fs.Apply(&models.TimelineEntry{}); err == nil {
			t.Errorf("date=%q cost=%q: expected error", tc.date, tc.cost)
		}
	}
}

func TestValidators(t *testing.T) {
	if validateAmount("") != nil || validateAmount("1.5") != nil {
		t.Error("empty and decimal amounts are valid")
	}
	if validateAmount("-1") == nil {
		t.Error("negative amount accepted")
	}
	if validateDate("yesterday") != nil || validateDate("32-13-2025") == nil {
		t.Error("date validation wrong")
	}
}
