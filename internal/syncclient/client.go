// Package syncclient talks to the farm-log REST API: timeline entries under
// /api/nhatky and the seasons, stages and tasks reference collections.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/nhatky/internal/models"
)

// Sentinel errors for common HTTP error classes.
var (
	// ErrRemoteRejected matches every HTTP error status from the API.
	ErrRemoteRejected = errors.New("remote rejected")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	// ErrMissingID means a create succeeded without telling us the new id.
	ErrMissingID = errors.New("response carries no identifier")
)

// API paths.
const (
	PathEntries = "/api/nhatky"
	PathSeasons = "/api/muavu"
	PathStages  = "/api/giaidoan"
	PathTasks   = "/api/congviec"
)

// ReferencePath returns the collection path for a reference kind.
func ReferencePath(kind models.ReferenceKind) string {
	switch kind {
	case models.RefSeasons:
		return PathSeasons
	case models.RefStages:
		return PathStages
	case models.RefTasks:
		return PathTasks
	}
	return ""
}

// Client is an HTTP client for the farm-log API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a new API client.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is an HTTP error status returned by the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, msg)
}

// Is lets errors.Is match ErrRemoteRejected and the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRemoteRejected:
		return true
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Ping checks the API host is reachable. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BaseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	resp.Body.Close()
	return nil
}

// --- Timeline entries ---

// CreateEntry posts a new entry and returns the server's copy, whose ID is
// the server-assigned identifier.
func (c *Client) CreateEntry(ctx context.Context, payload []byte) (*models.TimelineEntry, error) {
	body, err := c.do(ctx, http.MethodPost, PathEntries, payload)
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(body)
	if err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	return rec, nil
}

// UpdateEntry replaces the entry id on the server. The returned copy is nil
// when the server answers without a body.
func (c *Client) UpdateEntry(ctx context.Context, id string, payload []byte) (*models.TimelineEntry, error) {
	body, err := c.do(ctx, http.MethodPut, entryPath(id), payload)
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(body)
	if err != nil {
		return nil, nil
	}
	return rec, nil
}

// DeleteEntry deletes the entry id on the server.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, entryPath(id), nil)
	return err
}

func entryPath(id string) string {
	return PathEntries + "?id=" + url.QueryEscape(id)
}

// ListEntriesPath returns the listing path for an owner's entries.
func ListEntriesPath(ownerID string) string {
	return PathEntries + "?userId=" + url.QueryEscape(ownerID)
}

// Fetch performs a GET and returns the raw response body.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// FetchReference returns the raw listing of a reference collection.
func (c *Client) FetchReference(ctx context.Context, kind models.ReferenceKind) ([]byte, error) {
	path := ReferencePath(kind)
	if path == "" {
		return nil, fmt.Errorf("unknown reference collection %q", kind)
	}
	return c.Fetch(ctx, path)
}

// DecodeList splits a listing body into its records. Bare arrays and
// objects wrapping the array under "data" are accepted.
func DecodeList(body []byte) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return wrapped.Data, nil
}

// ExtractID returns the identifier of a record body, looking at "id", then
// "_id", then inside a "data" envelope. Numeric identifiers are rendered in
// decimal.
func ExtractID(body []byte) (string, error) {
	fields, err := unwrapRecord(body)
	if err != nil {
		return "", err
	}
	return idOf(fields)
}

func unwrapRecord(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if _, ok := fields["id"]; !ok {
		if _, ok := fields["_id"]; !ok {
			if data, ok := fields["data"]; ok {
				return unwrapRecord(data)
			}
		}
	}
	return fields, nil
}

func idOf(fields map[string]json.RawMessage) (string, error) {
	for _, key := range []string{"id", "_id"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n != "" {
			if i, err := n.Int64(); err == nil {
				return strconv.FormatInt(i, 10), nil
			}
			return n.String(), nil
		}
	}
	return "", ErrMissingID
}

// decodeRecord decodes a single-record response into an entry. Fields that do
// not fit the entry shape are dropped but the identifier is always kept.
func decodeRecord(body []byte) (*models.TimelineEntry, error) {
	fields, err := unwrapRecord(body)
	if err != nil {
		return nil, err
	}
	id, err := idOf(fields)
	if err != nil {
		return nil, err
	}
	delete(fields, "_id")
	fields["id"], _ = json.Marshal(id)
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var rec models.TimelineEntry
	if err := json.Unmarshal(data, &rec); err != nil {
		return &models.TimelineEntry{ID: id}, nil
	}
	rec.ID = id
	return &rec, nil
}

// --- HTTP helpers ---

// errorBody is the error shape the API returns.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Message
			if apiErr.Message == "" {
				apiErr.Message = eb.Error
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, apiErr
	}
	return respBody, nil
}
