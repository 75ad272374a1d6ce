package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/app"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/reconcile"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/runtime"
)

// countStore satisfies the statusProvider interface.
type countStore struct {
	counts map[string]int
	err    error
}

func (c *countStore) CountByStatus(_ context.Context) (map[string]int, error) {
	return c.counts, c.err
}

type fixedPass struct {
	rep reconcile.Report
	at  time.Time
}

func (f fixedPass) Last() (reconcile.Report, time.Time) { return f.rep, f.at }

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]any
	if w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return w.Code, resp
}

func TestHealthServer_Health(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &countStore{}, nil)

	code, resp := get(t, hs, "/health")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestHealthServer_Status(t *testing.T) {
	sp := &countStore{counts: map[string]int{"running": 3, "stopped": 2}}
	at := time.Now()
	pass := fixedPass{
		rep: reconcile.Report{Checked: 5, Changed: 1, Orphans: []runtime.InstanceSummary{{ID: "x"}}},
		at:  at,
	}
	hs := app.NewHealthServer("127.0.0.1:0", sp, pass)

	code, resp := get(t, hs, "/status")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if int(resp["bot_count"].(float64)) != 5 {
		t.Errorf("expected bot_count 5, got %v", resp["bot_count"])
	}
	bots := resp["bots"].(map[string]any)
	if int(bots["running"].(float64)) != 3 {
		t.Errorf("expected 3 running, got %v", bots["running"])
	}
	rec, ok := resp["reconcile"].(map[string]any)
	if !ok {
		t.Fatalf("expected a reconcile section, got %v", resp)
	}
	if int(rec["checked"].(float64)) != 5 || int(rec["orphans"].(float64)) != 1 {
		t.Errorf("reconcile = %v", rec)
	}
}

func TestHealthServer_StatusBeforeFirstPass(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &countStore{}, fixedPass{})

	_, resp := get(t, hs, "/status")
	if _, ok := resp["reconcile"]; ok {
		t.Errorf("reconcile must be omitted before the first pass, got %v", resp["reconcile"])
	}
}

func TestHealthServer_StatusDegraded(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &countStore{err: errors.New("database is locked")}, nil)

	code, resp := get(t, hs, "/status")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["status"] != "degraded" {
		t.Errorf("expected degraded, got %v", resp["status"])
	}
}

func TestHealthServer_Handle(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", nil, nil)
	hs.Handle("GET /extra", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	if code, _ := get(t, hs, "/extra"); code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", code)
	}
	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	hs.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health: expected 405, got %d", w.Code)
	}
}
