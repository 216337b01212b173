package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"imagepush/internal/publisher"
	"imagepush/internal/services"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func newClient(t *testing.T, baseURL string, opts ...publisher.Option) *publisher.Client {
	t.Helper()
	opts = append([]publisher.Option{publisher.WithSleeper(func(time.Duration) {})}, opts...)
	client, err := publisher.NewClient(publisher.Config{BaseURL: baseURL, APIKey: "secret"}, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestPublishSendsMultipartUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/media" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != publisher.IdempotencyKey("a") {
			t.Errorf("Idempotency-Key = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.MultipartForm.Value["tags"]; !reflect.DeepEqual(got, []string{"vacation:beach", "vacation:sunset"}) {
			t.Errorf("tags = %v", got)
		}
		if got := r.FormValue("url"); got != "https://example.com/a" {
			t.Errorf("url = %q", got)
		}
		if got := r.FormValue("private"); got != "false" {
			t.Errorf("private = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "a.jpg" || string(data) != "jpeg-bytes" {
			t.Errorf("file = %s %q", header.Filename, data)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "remote-1"})
	}))
	defer server.Close()

	client := newClient(t, server.URL+"/v1/")
	remoteID, err := client.Publish(context.Background(), publisher.Request{
		URL:            "https://example.com/a",
		ImagePath:      writeImage(t),
		Tags:           []string{"vacation:beach", "vacation:sunset"},
		IdempotencyKey: publisher.IdempotencyKey("a"),
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if remoteID != "remote-1" {
		t.Fatalf("remoteID = %q", remoteID)
	}
}

func TestPublishAcceptsNumericID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": 4211}`)
	}))
	defer server.Close()

	remoteID, err := newClient(t, server.URL).Publish(context.Background(), publisher.Request{ImagePath: writeImage(t)})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if remoteID != "4211" {
		t.Fatalf("remoteID = %q", remoteID)
	}
}

func TestPublishRejectsEmptyID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": ""}`)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).Publish(context.Background(), publisher.Request{ImagePath: writeImage(t)})
	if !errors.Is(err, services.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
}

func TestPublishRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "remote-ok"})
	}))
	defer server.Close()

	var slept []time.Duration
	client := newClient(t, server.URL,
		publisher.WithRetryMaxAttempts(3),
		publisher.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	remoteID, err := client.Publish(context.Background(), publisher.Request{ImagePath: writeImage(t)})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if remoteID != "remote-ok" || calls.Load() != 3 {
		t.Fatalf("remoteID=%q calls=%d", remoteID, calls.Load())
	}
	if !reflect.DeepEqual(slept, []time.Duration{2 * time.Second, 2 * time.Second}) {
		t.Fatalf("slept = %v", slept)
	}
}

func TestPublishDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "conflict", http.StatusConflict)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL, publisher.WithRetryMaxAttempts(5)).Publish(context.Background(), publisher.Request{ImagePath: writeImage(t)})
	if !errors.Is(err, services.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
	if code, ok := publisher.StatusCode(err); !ok || code != http.StatusConflict {
		t.Fatalf("StatusCode = %d, %v", code, ok)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestPublishRetriesTimeouts(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "late"})
	}))
	defer server.Close()
	defer close(release)

	client := newClient(t, server.URL,
		publisher.WithRequestTimeout(50*time.Millisecond),
		publisher.WithRetryMaxAttempts(2),
	)
	remoteID, err := client.Publish(context.Background(), publisher.Request{ImagePath: writeImage(t)})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if remoteID != "late" || calls.Load() != 2 {
		t.Fatalf("remoteID=%q calls=%d", remoteID, calls.Load())
	}
}

func TestPublishMissingImage(t *testing.T) {
	client := newClient(t, "http://127.0.0.1:1")
	_, err := client.Publish(context.Background(), publisher.Request{ImagePath: filepath.Join(t.TempDir(), "nope.jpg")})
	if !errors.Is(err, services.ErrPublish) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist publish error, got %v", err)
	}
}

func TestPublishStopsOnCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newClient(t, server.URL).Publish(ctx, publisher.Request{ImagePath: writeImage(t)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIdempotencyKeyIsStable(t *testing.T) {
	if publisher.IdempotencyKey("a") != publisher.IdempotencyKey("a") {
		t.Fatal("key must be deterministic")
	}
	if publisher.IdempotencyKey("a") == publisher.IdempotencyKey("b") {
		t.Fatal("keys must differ per identifier")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := publisher.NewClient(publisher.Config{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
