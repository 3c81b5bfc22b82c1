package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sanyexieai/sevino/internal/config"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	h.ServeHTTP(rr, req)
	return rr
}

func TestServer_EndToEnd(t *testing.T) {
	srv := newTestServer(t, nil)
	h := srv.handler()

	rr := do(t, h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: status %d", rr.Code)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("health response missing X-Request-Id")
	}

	rr = do(t, h, http.MethodPost, "/api/buckets", `{"name":"b"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create bucket: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPut, "/api/buckets/b/objects/hello.txt", "Hello")
	if rr.Code != http.StatusOK {
		t.Fatalf("put: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/api/buckets/b/objects/hello.txt", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "Hello" {
		t.Fatalf("get: status %d body %q", rr.Code, rr.Body.String())
	}

	// The mutation reached the journal through the event hook.
	rr = do(t, h, http.MethodGet, "/api/stats", "")
	var stats struct {
		Data struct {
			Buckets int `json:"buckets"`
			Objects int `json:"objects"`
			Recent  []struct {
				Op string `json:"op"`
			} `json:"recent"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("stats unmarshal: %v", err)
	}
	if stats.Data.Buckets != 1 || stats.Data.Objects != 1 {
		t.Errorf("stats = %+v", stats.Data)
	}
	if len(stats.Data.Recent) != 2 {
		t.Errorf("journal recorded %d entries, want 2", len(stats.Data.Recent))
	}
}

func TestServer_MetricsRoute(t *testing.T) {
	srv := newTestServer(t, nil)
	h := srv.handler()

	rr := do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Metrics.Enabled = false
	})
	h := srv.handler()

	rr := do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("disabled metrics: status = %d, want 404", rr.Code)
	}
}

func TestServer_CORSWiring(t *testing.T) {
	srv := newTestServer(t, nil)
	h := srv.handler()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/buckets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("preflight: status %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Access-Control-Max-Age = %q", got)
	}
}

func TestServer_BodyCap(t *testing.T) {
	// The cap applies to every request body, so it must still admit the
	// small JSON used to create the bucket.
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Storage.MaxFileSize = 16
	})
	h := srv.handler()

	rr := do(t, h, http.MethodPost, "/api/buckets", `{"name":"b"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create bucket: status %d body %s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodPut, "/api/buckets/b/objects/a.txt", "this body is over the cap")
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized put: status = %d, want 413", rr.Code)
	}

	rr = do(t, h, http.MethodPut, "/api/buckets/b/objects/a.txt", "hi")
	if rr.Code != http.StatusOK {
		t.Errorf("small put: status = %d body %s", rr.Code, rr.Body.String())
	}
}

func TestServer_RateLimitWiring(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Limits.RPS = 1
		cfg.Limits.Burst = 1
	})
	h := srv.handler()

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.50:1000"
	h.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", second.Code)
	}
}
