package optimist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// =============================================================================
// App Construction Tests
// =============================================================================

func TestNewAppDefaults(t *testing.T) {
	app := New(Config{})
	defer app.Shutdown(context.Background())

	if app.Cache() == nil {
		t.Fatal("expected a cache")
	}
	if app.Hub() == nil {
		t.Fatal("expected a hub")
	}
	if app.Logger() == nil {
		t.Fatal("expected a logger")
	}
	if app.config.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %q", app.config.Addr)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Addr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Addr)
	}
	if cfg.Sync.MaxSessions != 1024 {
		t.Errorf("expected 1024 max sessions, got %d", cfg.Sync.MaxSessions)
	}
	if cfg.Sync.SendBuffer != 64 {
		t.Errorf("expected send buffer 64, got %d", cfg.Sync.SendBuffer)
	}
	if cfg.Cache.TTL != 0 {
		t.Errorf("expected no TTL by default, got %v", cfg.Cache.TTL)
	}
	if cfg.Snapshots.Every != time.Minute {
		t.Errorf("expected snapshot interval 1m, got %v", cfg.Snapshots.Every)
	}
}

// =============================================================================
// HTTP Surface Tests
// =============================================================================

func TestAppServesHealth(t *testing.T) {
	app := New(Config{})
	defer app.Shutdown(context.Background())

	srv := httptest.NewServer(app)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAppExposesStateOverREST(t *testing.T) {
	app := New(Config{})
	defer app.Shutdown(context.Background())

	srv := httptest.NewServer(app)
	defer srv.Close()

	title := NewState("", WithCache[string](app.Cache(), "idea:title"))
	title.Update(func(string) string { return "draft" })

	resp, err := http.Get(srv.URL + "/v1/keys/idea:title")
	if err != nil {
		t.Fatalf("get key failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Key     string          `json:"key"`
		Value   json.RawMessage `json:"value"`
		Version uint64          `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Key != "idea:title" {
		t.Errorf("expected key idea:title, got %q", body.Key)
	}
	if string(body.Value) != `"draft"` {
		t.Errorf("expected value %q, got %s", `"draft"`, body.Value)
	}
	if body.Version == 0 {
		t.Error("expected a non-zero version after a write")
	}
}

func TestAppMetricsDisabledByDefault(t *testing.T) {
	app := New(Config{})
	defer app.Shutdown(context.Background())

	srv := httptest.NewServer(app)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 without Metrics enabled, got %d", resp.StatusCode)
	}
}

func TestAppMetricsEnabled(t *testing.T) {
	app := New(Config{Metrics: true})
	defer app.Shutdown(context.Background())

	srv := httptest.NewServer(app)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with Metrics enabled, got %d", resp.StatusCode)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestRunStopsOnContextCancel(t *testing.T) {
	app := New(Config{Addr: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestShutdownTwice(t *testing.T) {
	app := New(Config{})
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
