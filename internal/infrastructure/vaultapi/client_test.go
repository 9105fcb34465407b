package vaultapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/resilience"
)

func newTestClient(baseURL string, opts Options) *Client {
	if opts.APIKey == nil {
		opts.APIKey = func() string { return "test-key" }
	}
	return New(baseURL, opts)
}

func TestCallWithoutAPIKeyFailsBeforeRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := New(server.URL, Options{APIKey: func() string { return "" }, APIKeyEnv: "CASE_VAULT_KEY"})
	_, err := NewObjectStore(client).ListVaults(context.Background())
	if !domain.IsKind(err, domain.ErrMissingAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
	if !strings.Contains(err.Error(), "CASE_VAULT_KEY") {
		t.Fatalf("expected env var name in error, got %v", err)
	}
	if called {
		t.Fatalf("request must not be sent without a key")
	}
}

func TestAPIKeyIsReadOnEveryCall(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"vaults":[]}`))
	}))
	defer server.Close()

	key := "first"
	client := New(server.URL, Options{APIKey: func() string { return key }})
	store := NewObjectStore(client)
	if _, err := store.ListVaults(context.Background()); err != nil {
		t.Fatalf("ListVaults() error = %v", err)
	}
	key = "second"
	if _, err := store.ListVaults(context.Background()); err != nil {
		t.Fatalf("ListVaults() error = %v", err)
	}
	if len(seen) != 2 || seen[0] != "Bearer first" || seen[1] != "Bearer second" {
		t.Fatalf("unexpected auth headers: %v", seen)
	}
}

func TestGetObjectMapsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such object", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewObjectStore(newTestClient(server.URL, Options{})).GetObject(context.Background(), "v1", "obj-1")
	if !domain.IsKind(err, domain.ErrEvidenceNotFound) {
		t.Fatalf("expected not found kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such object") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestUnauthorizedIsMapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewObjectStore(newTestClient(server.URL, Options{})).ListObjects(context.Background(), "v1")
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized kind, got %v", err)
	}
}

func TestRetryableStatusIsRetriedAndMappedTemporary(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})
	client := newTestClient(server.URL, Options{Executor: executor})

	_, err := NewObjectStore(client).ListObjects(context.Background(), "v1")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestCreatingCallsAreNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})
	store := NewObjectStore(newTestClient(server.URL, Options{Executor: executor}))

	_, err := store.CreateUpload(context.Background(), "v1", "a.pdf", "application/pdf", 4)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("create_upload sent %d requests, want 1", attempts)
	}

	attempts = 0
	if err := store.TriggerIngestion(context.Background(), "v1", "obj-1"); err == nil {
		t.Fatalf("expected trigger_ingestion to fail")
	}
	if attempts != 1 {
		t.Fatalf("trigger_ingestion sent %d requests, want 1", attempts)
	}
}

func TestUploadFlow(t *testing.T) {
	var uploaded string
	var ingestPath string
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/vault/case-1/upload", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["filename"] != "contract_v2.pdf" {
			t.Errorf("unexpected upload payload: %v", payload)
		}
		_, _ = w.Write([]byte(`{"objectId":"obj-9","uploadUrl":"` + server.URL + `/blob/obj-9"}`))
	})
	mux.HandleFunc("/blob/obj-9", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("presigned upload must not carry the api key")
		}
		body, _ := io.ReadAll(r.Body)
		uploaded = string(body)
	})
	mux.HandleFunc("/vault/case-1/ingest/obj-9", func(w http.ResponseWriter, r *http.Request) {
		ingestPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusAccepted)
	})

	store := NewObjectStore(newTestClient(server.URL, Options{}))
	target, err := store.CreateUpload(context.Background(), "case-1", "contract_v2.pdf", "application/pdf", 7)
	if err != nil {
		t.Fatalf("CreateUpload() error = %v", err)
	}
	if target.ObjectID != "obj-9" {
		t.Fatalf("unexpected target: %+v", target)
	}
	if err := store.UploadBytes(context.Background(), *target, "application/pdf", 7, strings.NewReader("%PDF-1.")); err != nil {
		t.Fatalf("UploadBytes() error = %v", err)
	}
	if uploaded != "%PDF-1." {
		t.Fatalf("unexpected uploaded body %q", uploaded)
	}
	if err := store.TriggerIngestion(context.Background(), "case-1", "obj-9"); err != nil {
		t.Fatalf("TriggerIngestion() error = %v", err)
	}
	if ingestPath != "/vault/case-1/ingest/obj-9" {
		t.Fatalf("unexpected ingest path %q", ingestPath)
	}
}

func TestListObjectsDefaultsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"objects":[{"id":"a","filename":"a.pdf","ingestionStatus":"EXTRACTION_FAILED"},{"id":"b","filename":"b.pdf"}]}`))
	}))
	defer server.Close()

	objects, err := NewObjectStore(newTestClient(server.URL, Options{})).ListObjects(context.Background(), "v1")
	if err != nil {
		t.Fatalf("ListObjects() error = %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}
	if objects[0].IngestionStatus != domain.RemoteExtractionFailed {
		t.Fatalf("unexpected status %q", objects[0].IngestionStatus)
	}
	if objects[1].IngestionStatus != domain.RemotePending {
		t.Fatalf("expected missing status to default to pending, got %q", objects[1].IngestionStatus)
	}
}

func TestOCRStatusStates(t *testing.T) {
	state := "running"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ocr/v1/process":
			_, _ = w.Write([]byte(`{"id":"job-1"}`))
		case "/ocr/v1/job-1":
			_, _ = w.Write([]byte(`{"status":"` + state + `","text":"Exhibit A"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ocr := NewOCR(newTestClient(server.URL, Options{}))
	jobID, err := ocr.Submit(context.Background(), "https://files.example/photo.png")
	if err != nil || jobID != "job-1" {
		t.Fatalf("Submit() = %q, %v", jobID, err)
	}

	status, err := ocr.Status(context.Background(), jobID)
	if err != nil || status.Done {
		t.Fatalf("expected running job, got %+v, %v", status, err)
	}
	state = "completed"
	status, err = ocr.Status(context.Background(), jobID)
	if err != nil || !status.Done || status.Failed || status.Text != "Exhibit A" {
		t.Fatalf("expected completed job, got %+v, %v", status, err)
	}
	state = "failed"
	status, err = ocr.Status(context.Background(), jobID)
	if err != nil || !status.Done || !status.Failed {
		t.Fatalf("expected failed job, got %+v, %v", status, err)
	}
}

func TestSearchSendsQuery(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vault/v1/search" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"chunks":[{"objectId":"a","score":0.82,"text":"invoice total"}]}`))
	}))
	defer server.Close()

	chunks, err := NewSearchIndex(newTestClient(server.URL, Options{})).Search(context.Background(), "v1", "invoice", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if payload["query"] != "invoice" || payload["topK"] != float64(10) {
		t.Fatalf("unexpected search payload: %v", payload)
	}
	if len(chunks) != 1 || chunks[0].ObjectID != "a" || chunks[0].Score != 0.82 {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}
