package nodeclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ergo-indexer/internal/ierr"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig(srv.URL)
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.CacheEnabled = false
	return New(cfg, zerolog.Nop())
}

func TestClient_Info(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"fullHeight": 42, "bestFullHeaderId": "abc"}`))
	})

	info, err := c.Info(t.Context())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.FullHeight != 42 {
		t.Errorf("FullHeight = %d, want 42", info.FullHeight)
	}
	if info.BestHeaderID != "abc" {
		t.Errorf("BestHeaderID = %q, want abc", info.BestHeaderID)
	}
}

func TestClient_HeaderAt_SelectsMainChain(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blocks/at/10":
			w.Write([]byte(`["orphan", "canon"]`))
		case "/blocks/orphan/header":
			w.Write([]byte(`{"id":"orphan","height":10,"mainChain":false}`))
		case "/blocks/canon/header":
			w.Write([]byte(`{"id":"canon","height":10,"mainChain":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	h, err := c.HeaderAt(t.Context(), 10)
	if err != nil {
		t.Fatalf("HeaderAt: %v", err)
	}
	if h.ID != "canon" {
		t.Errorf("ID = %q, want canon", h.ID)
	}
}

func TestClient_NotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Header(t.Context(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ierr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_RetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"h1","height":1}`))
	})

	h, err := c.Header(t.Context(), "h1")
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if h.ID != "h1" {
		t.Errorf("ID = %q, want h1", h.ID)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestClient_UnavailableAfterExhaustion(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c.cfg.MaxAttempts = 2

	_, err := c.Header(t.Context(), "h1")
	if !errors.Is(err, ierr.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
