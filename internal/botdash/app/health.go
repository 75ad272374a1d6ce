package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/version"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/reconcile"
)

// HealthServer serves liveness, a status summary and whatever else is
// mounted with Handle (/metrics). botdash runs without it when HTTPAddr is
// empty.
type HealthServer struct {
	addr      string
	store     statusProvider
	passes    passSource
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// statusProvider counts bots per status.
type statusProvider interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// passSource reports the latest reconciliation pass.
type passSource interface {
	Last() (reconcile.Report, time.Time)
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Commit     string         `json:"commit"`
	BuildTime  string         `json:"build_time"`
	StartedAt  time.Time      `json:"started_at"`
	UptimeSecs float64        `json:"uptime_seconds"`
	BotCount   int            `json:"bot_count"`
	Bots       map[string]int `json:"bots"`
	Reconcile  *passResponse  `json:"reconcile,omitempty"`
}

type passResponse struct {
	At      time.Time `json:"at"`
	Checked int       `json:"checked"`
	Changed int       `json:"changed"`
	Stale   int       `json:"stale"`
	Orphans int       `json:"orphans"`
}

// shutdownTimeout bounds how long Stop waits for in-flight requests.
const shutdownTimeout = 5 * time.Second

// NewHealthServer registers the routes on a fresh mux. Nothing listens until
// Start. passes may be nil when the reconciler is disabled.
func NewHealthServer(addr string, sp statusProvider, passes passSource) *HealthServer {
	h := &HealthServer{
		addr:      addr,
		store:     sp,
		passes:    passes,
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /status", h.handleStatus)
	return h
}

// ServeHTTP dispatches to the registered routes.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Handle mounts an extra route. It must be called before Start.
func (h *HealthServer) Handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

// Start binds addr and serves in the background until ctx is done or Stop
// is called. A bind failure is returned synchronously.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}
	h.server = srv

	slog.Info("health server listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server stopped", "err", err)
		}
	}()
	context.AfterFunc(ctx, h.Stop)
	return nil
}

// Stop drains in-flight requests and closes the listener. It is safe to call
// more than once.
func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown", "err", err)
	}
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
		Bots:       map[string]int{},
	}
	if h.store != nil {
		counts, err := h.store.CountByStatus(r.Context())
		if err != nil {
			slog.Warn("status: count bots", "err", err)
			resp.Status = "degraded"
		}
		for status, n := range counts {
			resp.Bots[status] = n
			resp.BotCount += n
		}
	}
	if h.passes != nil {
		if rep, at := h.passes.Last(); !at.IsZero() {
			resp.Reconcile = &passResponse{
				At:      at,
				Checked: rep.Checked,
				Changed: rep.Changed,
				Stale:   rep.Stale,
				Orphans: len(rep.Orphans),
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "path", "health", "err", err)
	}
}
