package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	gosync "sync"
	"testing"
)

// fakeAPI is an in-memory stand-in for the farm-log REST API.
type fakeAPI struct {
	mu        gosync.Mutex
	next      int
	entries   map[string]map[string]any
	mutations []string
	reads     []string

	// failNotes makes creates and updates whose notes equal it answer 500.
	failNotes string
	// failPaths makes GETs of these paths answer 500.
	failPaths map[string]bool
	refs      map[string]string
	// onCreate runs after a create is stored, before the response is sent.
	onCreate func()
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{
		entries:   map[string]map[string]any{},
		failPaths: map[string]bool{},
		refs: map[string]string{
			"/api/muavu":    `[{"id":"s1","name":"Dong Xuan"}]`,
			"/api/giaidoan": `[{"id":"g1","name":"Gieo sa"}]`,
			"/api/congviec": `[{"id":"t1","name":"Bon lot","stageId":"g1"}]`,
		},
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r.Method == http.MethodHead {
		return
	}
	if r.URL.Path != "/api/nhatky" {
		a.reads = append(a.reads, r.URL.Path)
		if a.failPaths[r.URL.Path] {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		body, ok := a.refs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, body)
		return
	}

	id := r.URL.Query().Get("id")
	switch r.Method {
	case http.MethodGet:
		a.reads = append(a.reads, r.URL.String())
		owner := r.URL.Query().Get("userId")
		ids := make([]string, 0, len(a.entries))
		for k := range a.entries {
			ids = append(ids, k)
		}
		sort.Strings(ids)
		var list []map[string]any
		for _, k := range ids {
			if a.entries[k]["userId"] == owner {
				list = append(list, a.entries[k])
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": list})
		return
	case http.MethodDelete:
		a.mutations = append(a.mutations, "DELETE "+id)
		if _, ok := a.entries[id]; !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		delete(a.entries, id)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var rec map[string]any
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, `{"message":"bad json"}`, http.StatusBadRequest)
		return
	}
	if a.failNotes != "" && rec["notes"] == a.failNotes {
		a.mutations = append(a.mutations, r.Method+" (failed)")
		http.Error(w, `{"message":"internal error"}`, http.StatusInternalServerError)
		return
	}

	switch r.Method {
	case http.MethodPost:
		if _, hasID := rec["id"]; hasID {
			http.Error(w, `{"message":"id must not be sent on create"}`, http.StatusBadRequest)
			return
		}
		a.next++
		id = fmt.Sprintf("srv_%d", a.next)
		rec["id"] = id
		a.entries[id] = rec
		a.mutations = append(a.mutations, "POST "+id)
		if a.onCreate != nil {
			a.onCreate()
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"data": rec})
	case http.MethodPut:
		a.mutations = append(a.mutations, "PUT "+id)
		if _, ok := a.entries[id]; !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		rec["id"] = id
		a.entries[id] = rec
		json.NewEncoder(w).Encode(rec)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *fakeAPI) mutationCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.mutations)
}

func (a *fakeAPI) mutationLog() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.mutations, ", ")
}

func (a *fakeAPI) resetCalls() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mutations = nil
	a.reads = nil
}

func (a *fakeAPI) put(id string, rec map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec["id"] = id
	a.entries[id] = rec
}

func (a *fakeAPI) get(id string) (map[string]any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.entries[id]
	return rec, ok
}
