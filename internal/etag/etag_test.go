package etag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
	"github.com/linuxfoundation/lfx-gateway/internal/proxy"
)

// versionedStore simulates the upstream resource API: GET returns an ETag,
// PUT/DELETE require a matching If-Match and bump the version on success.
type versionedStore struct {
	mu        sync.Mutex
	resources map[string]map[string]interface{}
	versions  map[string]int
	omitETag  bool
}

func newVersionedStore() *versionedStore {
	return &versionedStore{
		resources: make(map[string]map[string]interface{}),
		versions:  make(map[string]int),
	}
}

func (s *versionedStore) put(path string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[path] = data
	s.versions[path]++
}

func (s *versionedStore) etag(path string) string {
	return fmt.Sprintf(`"v%d"`, s.versions[path])
}

func (s *versionedStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	data, exists := s.resources[path]

	switch r.Method {
	case http.MethodGet:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "not found", "code": "NOT_FOUND"})
			return
		}
		if !s.omitETag {
			w.Header().Set("ETag", s.etag(path))
		}
		json.NewEncoder(w).Encode(data)

	case http.MethodPut, http.MethodDelete:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("If-Match") != s.etag(path) {
			w.WriteHeader(http.StatusPreconditionFailed)
			json.NewEncoder(w).Encode(map[string]string{"error": "etag mismatch"})
			return
		}
		if r.Method == http.MethodDelete {
			delete(s.resources, path)
			delete(s.versions, path)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var updated map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.resources[path] = updated
		s.versions[path]++
		w.Header().Set("ETag", s.etag(path))
		json.NewEncoder(w).Encode(updated)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestService(t *testing.T, store *versionedStore) *Service {
	t.Helper()
	server := httptest.NewServer(store)
	t.Cleanup(server.Close)
	return NewService(proxy.NewClient(proxy.Config{BaseURL: server.URL}))
}

func TestFetchThenUpdate_RoundTrip(t *testing.T) {
	store := newVersionedStore()
	store.put("/meetings/m1", map[string]interface{}{"title": "TAC call", "organizers": []interface{}{"alice"}})
	svc := newTestService(t, store)
	ctx := context.Background()

	res, err := svc.Fetch(ctx, "/meetings/m1", "tok")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if res.ETag == "" {
		t.Fatal("Fetch() returned empty etag")
	}

	updated, err := svc.Update(ctx, "/meetings/m1", res.ETag, map[string]interface{}{"title": "TAC call (moved)"}, "tok")
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(updated, &payload); err != nil {
		t.Fatalf("unmarshal updated body: %v", err)
	}
	if payload["title"] != "TAC call (moved)" {
		t.Errorf("title = %v", payload["title"])
	}
}

func TestUpdate_StaleETagIsPreconditionFailed(t *testing.T) {
	store := newVersionedStore()
	store.put("/committees/c1", map[string]interface{}{"name": "TSC"})
	svc := newTestService(t, store)
	ctx := context.Background()

	res, err := svc.Fetch(ctx, "/committees/c1", "tok")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	// A concurrent writer updates the resource between our read and write.
	store.put("/committees/c1", map[string]interface{}{"name": "TSC (renamed)"})

	_, err = svc.Update(ctx, "/committees/c1", res.ETag, map[string]interface{}{"name": "TSC v2"}, "tok")
	if err == nil {
		t.Fatal("Update() with stale etag should fail")
	}
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodePreconditionFailed {
		t.Errorf("error = %v, want PRECONDITION_FAILED", err)
	}
	if svcErr != nil && svcErr.HTTPStatus != http.StatusPreconditionFailed {
		t.Errorf("HTTPStatus = %d, want 412", svcErr.HTTPStatus)
	}
}

func TestUpdate_ConsumedETagFailsSecondTime(t *testing.T) {
	store := newVersionedStore()
	store.put("/meetings/m2", map[string]interface{}{"title": "board sync"})
	svc := newTestService(t, store)
	ctx := context.Background()

	res, err := svc.Fetch(ctx, "/meetings/m2", "tok")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	if _, err := svc.Update(ctx, "/meetings/m2", res.ETag, map[string]interface{}{"title": "board sync 2"}, "tok"); err != nil {
		t.Fatalf("first Update() error: %v", err)
	}

	// The first write consumed the tag; the upstream's version moved on.
	_, err = svc.Update(ctx, "/meetings/m2", res.ETag, map[string]interface{}{"title": "board sync 3"}, "tok")
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodePreconditionFailed {
		t.Errorf("second update error = %v, want PRECONDITION_FAILED", err)
	}
}

func TestFetch_MissingETagDistinctFromNotFound(t *testing.T) {
	store := newVersionedStore()
	store.put("/meetings/m3", map[string]interface{}{"title": "x"})
	store.omitETag = true
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Fetch(ctx, "/meetings/m3", "tok")
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeETagMissing {
		t.Fatalf("error = %v, want ETAG_MISSING", err)
	}

	_, err = svc.Fetch(ctx, "/meetings/absent", "tok")
	svcErr = errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeNotFound {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestDelete_WithFreshETag(t *testing.T) {
	store := newVersionedStore()
	store.put("/registrants/r1", map[string]interface{}{"email": "a@example.org"})
	svc := newTestService(t, store)
	ctx := context.Background()

	res, err := svc.Fetch(ctx, "/registrants/r1", "tok")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if err := svc.Delete(ctx, "/registrants/r1", res.ETag, "tok"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	_, err = svc.Fetch(ctx, "/registrants/r1", "tok")
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeNotFound {
		t.Errorf("Fetch() after delete = %v, want NOT_FOUND", err)
	}
}

func TestUpdate_RequiresTag(t *testing.T) {
	svc := newTestService(t, newVersionedStore())

	_, err := svc.Update(context.Background(), "/meetings/m", "", nil, "tok")
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeValidation {
		t.Errorf("Update without tag = %v, want VALIDATION_ERROR", err)
	}
}
