package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kelsos/collector-sync/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.NewConfig()
	cfg.BaseURL = server.URL + "/"
	cfg.RequestTimeout = 5 * time.Second
	return NewAPIClient(cfg)
}

func TestPostSendsJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/1/tasks" {
			t.Errorf("Expected path /api/1/tasks, got %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": body["id"]})
	})

	var result map[string]string
	if err := c.Post(context.Background(), "/tasks", map[string]string{"id": "1"}, &result); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if result["echo"] != "1" {
		t.Errorf("Expected echo 1, got %v", result)
	}
}

func TestRequestReturnsHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})

	err := c.Get(context.Background(), "/tasks", nil)
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Errorf("Expected status and body in error, got %v", err)
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/1/ping" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestPingFailsOnUnhealthyAPI(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "starting", http.StatusServiceUnavailable)
	})

	err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("Expected ping to fail")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status in error, got %v", err)
	}
}
