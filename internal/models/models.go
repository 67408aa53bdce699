package models

import (
	"encoding/json"
	"strings"
	"time"
)

// SyncStatus describes whether a locally stored record still needs to be
// reconciled with the remote API.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// Operation is the kind of mutation last applied to a record locally.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// LocalIDPrefix marks identifiers minted on the device before the server
// has accepted the record.
const LocalIDPrefix = "local_"

// IsLocalID reports whether id is a temporary device-side identifier.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// CurrentRecordVersion is the format version of TimelineEntry bodies written
// by this build.
const CurrentRecordVersion = 2

// ChemicalUsage is one agrochemical applied as part of an activity.
type ChemicalUsage struct {
	Name     string  `json:"name"`
	Dosage   string  `json:"dosage,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

// TimelineEntry is one logged farming activity.
type TimelineEntry struct {
	ID            string          `json:"id,omitempty"`
	SeasonID      string          `json:"seasonId,omitempty"`
	StageID       string          `json:"stageId,omitempty"`
	TaskID        string          `json:"taskId,omitempty"`
	ExecutionDate string          `json:"executionDate,omitempty"`
	Cost          float64         `json:"cost,omitempty"`
	Quantity      float64         `json:"quantity,omitempty"`
	QuantityUnit  string          `json:"quantityUnit,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Images        []string        `json:"images,omitempty"`
	Chemicals     []ChemicalUsage `json:"chemicals,omitempty"`
	UserID        string          `json:"userId,omitempty"`
	UnitID        string          `json:"unitId,omitempty"`

	// Sync metadata. Never serialized into payloads sent to the remote API.
	Sync SyncMeta `json:"-"`
}

// SyncMeta is the device-local bookkeeping attached to a TimelineEntry.
type SyncMeta struct {
	Status       SyncStatus
	Operation    Operation
	LastModified int64 // unix nanoseconds, strictly increasing per store
	LocalID      string
	Error        string
}

// Clone returns a deep copy of e.
func (e *TimelineEntry) Clone() *TimelineEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Images != nil {
		c.Images = append([]string(nil), e.Images...)
	}
	if e.Chemicals != nil {
		c.Chemicals = append([]ChemicalUsage(nil), e.Chemicals...)
	}
	return &c
}

// RemotePayload returns the JSON body to send to the remote API. Sync
// metadata is never included; the identifier is dropped for creates.
func (e *TimelineEntry) RemotePayload(op Operation) ([]byte, error) {
	c := e.Clone()
	if op == OpCreate || IsLocalID(c.ID) {
		c.ID = ""
	}
	return json.Marshal(c)
}

// SyncQueueItem is one outstanding mutation awaiting remote application.
type SyncQueueItem struct {
	Seq           int64
	EntryID       string
	Operation     Operation
	Payload       json.RawMessage
	EnqueuedAt    time.Time
	Revision      int64
	RetryCount    int
	NextAttemptAt time.Time
	Dead          bool
	LastError     string
}

// ReferenceKind names one of the server-owned lookup collections.
type ReferenceKind string

const (
	RefSeasons ReferenceKind = "seasons"
	RefStages  ReferenceKind = "stages"
	RefTasks   ReferenceKind = "tasks"
)

// ReferenceKinds lists every reference collection in refresh order.
var ReferenceKinds = []ReferenceKind{RefSeasons, RefStages, RefTasks}

// Valid reports whether k is a known reference collection.
func (k ReferenceKind) Valid() bool {
	switch k {
	case RefSeasons, RefStages, RefTasks:
		return true
	}
	return false
}

// Season is a growing season (muavu).
type Season struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	UnitID    string `json:"unitId,omitempty"`
}

// Stage is a crop stage within a season (giaidoan).
type Stage struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order,omitempty"`
}

// Task is a catalog task (congviec) belonging to a stage.
type Task struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StageID     string `json:"stageId"`
	Description string `json:"description,omitempty"`
}

// ReferenceRecord is one row of a reference collection in storage form.
// StageID is only meaningful for tasks.
type ReferenceRecord struct {
	ID      string
	StageID string
	Body    json.RawMessage
}

// CachedResponse is a raw API response kept as a last-resort read fallback.
type CachedResponse struct {
	URL        string
	Body       []byte
	CapturedAt time.Time
}

// SyncConflict records a server-side change detected against a pending
// local edit. The local write wins; the conflict is only surfaced.
type SyncConflict struct {
	ID         int64
	EntryID    string
	LocalData  string
	RemoteData string
	DetectedAt time.Time
}

// SyncCounts summarises unsynced local work for UI banners.
type SyncCounts struct {
	Pending int
	Error   int
	Dead    int
}

// Unsynced is the number of local changes not yet accepted by the server.
func (c SyncCounts) Unsynced() int {
	return c.Pending + c.Error
}
