package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
)

func TestDo_ForwardsBearerAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("Authorization = %q, want Bearer user-token", got)
		}
		if got := r.URL.Query().Get("project"); got != "lf-energy" {
			t.Errorf("query project = %q, want lf-energy", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, M2MToken: "m2m-token"})

	resp, err := client.Get(context.Background(), "/meetings", url.Values{"project": {"lf-energy"}}, "user-token")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
}

func TestDo_FallsBackToM2MToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer m2m-token" {
			t.Errorf("Authorization = %q, want Bearer m2m-token", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, M2MToken: "m2m-token"})
	if _, err := client.Get(context.Background(), "/public", nil, ""); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
}

func TestDo_MarshalsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if payload["title"] != "TAC call" {
			t.Errorf("title = %q", payload["title"])
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	resp, err := client.Post(context.Background(), "/meetings", map[string]string{"title": "TAC call"}, "tok")
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Errorf("Status = %d, want 201", resp.Status)
	}
}

func TestDo_Unreachable(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})

	_, err := client.Get(context.Background(), "/meetings", nil, "tok")
	if err == nil {
		t.Fatal("expected error for unreachable host")
	}
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.Code != errors.CodeUnavailable && svcErr.Code != errors.CodeTimeout {
		t.Errorf("Code = %s, want UNAVAILABLE or TIMEOUT", svcErr.Code)
	}
}

func TestAsError_MapsStatuses(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		wantCode errors.ErrorCode
	}{
		{http.StatusNotFound, `{"error":"meeting not found","code":"NOT_FOUND"}`, errors.CodeNotFound},
		{http.StatusPreconditionFailed, `{"error":"etag mismatch"}`, errors.CodePreconditionFailed},
		{http.StatusConflict, `{"error":"version conflict"}`, errors.CodePreconditionFailed},
		{http.StatusUnauthorized, `{"error":"expired token"}`, errors.CodeUnauthorized},
		{http.StatusForbidden, `{"error":"not an organizer"}`, errors.CodeForbidden},
		{http.StatusBadGateway, "upstream exploded", errors.CodeMicroservice},
	}

	for _, tt := range tests {
		err := AsError(&Response{Status: tt.status, Body: []byte(tt.body)})
		svcErr := errors.GetServiceError(err)
		if svcErr == nil {
			t.Errorf("status %d: not a ServiceError: %v", tt.status, err)
			continue
		}
		if svcErr.Code != tt.wantCode {
			t.Errorf("status %d: Code = %s, want %s", tt.status, svcErr.Code, tt.wantCode)
		}
		if svcErr.Details["upstream_status"] != tt.status {
			t.Errorf("status %d: upstream_status detail = %v", tt.status, svcErr.Details["upstream_status"])
		}
	}
}

func TestAsError_PreservesUpstreamCode(t *testing.T) {
	err := AsError(&Response{Status: 404, Body: []byte(`{"error":"nope","code":"MEETING_GONE"}`)})
	svcErr := errors.GetServiceError(err)
	if svcErr.Details["upstream_code"] != "MEETING_GONE" {
		t.Errorf("upstream_code = %v", svcErr.Details["upstream_code"])
	}
	if svcErr.Message != "nope" {
		t.Errorf("Message = %q, want upstream error text", svcErr.Message)
	}
}

func TestAsError_NilForSuccess(t *testing.T) {
	if err := AsError(&Response{Status: 200}); err != nil {
		t.Errorf("AsError(200) = %v, want nil", err)
	}
}

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("hello"), 10)
	if err != nil || truncated || string(data) != "hello" {
		t.Errorf("got %q truncated=%v err=%v", data, truncated, err)
	}

	data, truncated, err = ReadAllWithLimit(strings.NewReader("hello world"), 5)
	if err != nil || !truncated || string(data) != "hello" {
		t.Errorf("got %q truncated=%v err=%v", data, truncated, err)
	}
}

func TestReadAllStrict(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("too many bytes"), 4); err == nil {
		t.Error("ReadAllStrict should fail when the limit is exceeded")
	}
}
