package syncclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcus/nhatky/internal/models"
)

func TestExtractID(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"id":"srv_1"}`, "srv_1"},
		{`{"_id":"65f0a1"}`, "65f0a1"},
		{`{"id":42}`, "42"},
		{`{"data":{"id":"srv_2","notes":"x"}}`, "srv_2"},
		{`{"success":true,"data":{"_id":7}}`, "7"},
	}
	for _, tt := range tests {
		got, err := ExtractID([]byte(tt.body))
		if err != nil {
			t.Errorf("ExtractID(%s): %v", tt.body, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractID(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}

	if _, err := ExtractID([]byte(`{"ok":true}`)); !errors.Is(err, ErrMissingID) {
		t.Errorf("missing id: %v", err)
	}
}

func TestDecodeList(t *testing.T) {
	for _, body := range []string{`[{"id":"a"},{"id":"b"}]`, `{"data":[{"id":"a"},{"id":"b"}]}`} {
		list, err := DecodeList([]byte(body))
		if err != nil {
			t.Fatalf("DecodeList(%s): %v", body, err)
		}
		if len(list) != 2 {
			t.Errorf("DecodeList(%s) = %d records", body, len(list))
		}
	}
	if _, err := DecodeList([]byte(`"nope"`)); err == nil {
		t.Error("expected error for non-list body")
	}
}

func TestCreateEntry(t *testing.T) {
	var gotBody, gotAuth, gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"_id":"srv_9","cost":100000,"executionDate":"01-01-2025"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "tok")
	rec, err := c.CreateEntry(context.Background(), []byte(`{"cost":100000}`))
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if rec.ID != "srv_9" || rec.Cost != 100000 {
		t.Errorf("record = %+v", rec)
	}
	if gotMethod != http.MethodPost || gotPath != PathEntries {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody != `{"cost":100000}` {
		t.Errorf("body = %s", gotBody)
	}
}

func TestCreateEntry_NumericFieldsStillYieldID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":12,"seasonId":3}`))
	}))
	defer srv.Close()

	rec, err := New(srv.URL, "").CreateEntry(context.Background(), []byte(`{}`))
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if rec.ID != "12" {
		t.Errorf("ID = %q, want 12", rec.ID)
	}
}

func TestUpdateAndDeleteAddressByID(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path+" id="+r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	ctx := context.Background()
	rec, err := c.UpdateEntry(ctx, "srv_1", []byte(`{"id":"srv_1"}`))
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if rec != nil {
		t.Errorf("empty body should yield nil record, got %+v", rec)
	}
	if err := c.DeleteEntry(ctx, "srv_1"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	want := []string{"PUT /api/nhatky id=srv_1", "DELETE /api/nhatky id=srv_1"}
	for i, w := range want {
		if seen[i] != w {
			t.Errorf("request %d = %q, want %q", i, seen[i], w)
		}
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		status int
		body   string
		is     error
	}{
		{http.StatusInternalServerError, `{"message":"boom"}`, ErrRemoteRejected},
		{http.StatusUnauthorized, `{"error":"token expired"}`, ErrUnauthorized},
		{http.StatusForbidden, ``, ErrForbidden},
		{http.StatusNotFound, `not here`, ErrNotFound},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		}))
		_, err := New(srv.URL, "").Fetch(context.Background(), PathSeasons)
		srv.Close()

		if !errors.Is(err, tt.is) {
			t.Errorf("status %d: errors.Is(%v, %v) = false", tt.status, err, tt.is)
		}
		if !errors.Is(err, ErrRemoteRejected) {
			t.Errorf("status %d: not ErrRemoteRejected", tt.status)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != tt.status {
			t.Errorf("status %d: APIError = %+v", tt.status, apiErr)
		}
	}
}

func TestFetchReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["` + r.URL.Path + `"]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	for kind, path := range map[models.ReferenceKind]string{
		models.RefSeasons: "/api/muavu",
		models.RefStages:  "/api/giaidoan",
		models.RefTasks:   "/api/congviec",
	} {
		body, err := c.FetchReference(context.Background(), kind)
		if err != nil {
			t.Fatalf("FetchReference(%s): %v", kind, err)
		}
		if string(body) != `["`+path+`"]` {
			t.Errorf("FetchReference(%s) hit %s", kind, body)
		}
	}
	if _, err := c.FetchReference(context.Background(), "units"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	c := New(srv.URL, "")
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("any HTTP response counts as reachable: %v", err)
	}
	srv.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected error once server is gone")
	}
}
