// Package status exposes the progress of a running batch over HTTP:
// health, a JSON progress report and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/storyview/storyview/internal/traversal"
)

// Entry is one finished traversal as reported by /status.
type Entry struct {
	Target     string    `json:"target"`
	Outcome    string    `json:"outcome"`
	Stories    int       `json:"stories"`
	Advances   int       `json:"advances"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Snapshot is the JSON body of /status.
type Snapshot struct {
	RunID   string  `json:"run_id"`
	Total   int     `json:"total"`
	Done    int     `json:"done"`
	Current string  `json:"current,omitempty"`
	Results []Entry `json:"results"`
}

// Tracker records batch progress and updates metrics. It implements the
// batch Reporter interface.
type Tracker struct {
	mu      sync.Mutex
	snap    Snapshot
	metrics *metrics
}

type metrics struct {
	traversals *prometheus.CounterVec
	stories    prometheus.Counter
	advances   prometheus.Counter
	pending    prometheus.Gauge
}

// NewTracker creates a Tracker registering its metrics on reg.
func NewTracker(reg prometheus.Registerer) *Tracker {
	f := promauto.With(reg)
	return &Tracker{
		snap: Snapshot{Results: []Entry{}},
		metrics: &metrics{
			traversals: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "storyview",
				Name:      "traversals_total",
				Help:      "Story traversals by outcome.",
			}, []string{"outcome"}),
			stories: f.NewCounter(prometheus.CounterOpts{
				Namespace: "storyview",
				Name:      "stories_viewed_total",
				Help:      "Stories counted across all traversals.",
			}),
			advances: f.NewCounter(prometheus.CounterOpts{
				Namespace: "storyview",
				Name:      "advances_total",
				Help:      "Synthetic advance keystrokes issued.",
			}),
			pending: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "storyview",
				Name:      "targets_pending",
				Help:      "Targets of the current batch not processed yet.",
			}),
		},
	}
}

// Begin resets progress for a new batch.
func (t *Tracker) Begin(runID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = Snapshot{RunID: runID, Total: total, Results: []Entry{}}
	t.metrics.pending.Set(float64(total))
}

// Started marks identifier as in progress.
func (t *Tracker) Started(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Current = identifier
}

// Finished records the result of one traversal.
func (t *Tracker) Finished(res traversal.Result) {
	e := Entry{
		Target:     res.Identifier,
		Outcome:    res.Outcome.String(),
		Stories:    res.Stories,
		Advances:   res.Advances,
		ElapsedMs:  res.Elapsed.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}

	t.mu.Lock()
	t.snap.Results = append(t.snap.Results, e)
	t.snap.Done++
	t.snap.Current = ""
	remaining := t.snap.Total - t.snap.Done
	t.mu.Unlock()

	t.metrics.traversals.WithLabelValues(e.Outcome).Inc()
	t.metrics.stories.Add(float64(res.Stories))
	t.metrics.advances.Add(float64(res.Advances))
	t.metrics.pending.Set(float64(remaining))
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.snap
	s.Results = append([]Entry(nil), t.snap.Results...)
	return s
}

// Handler routes /health, /status and /metrics.
func Handler(t *Tracker, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(headToGet)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, t.Snapshot())
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Server serves Handler on an address until Shutdown.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// Serve starts listening on addr in the background.
func Serve(addr string, h http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		srv:    &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
	go func() {
		logger.Info("status: listening", "addr", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status: server stopped", "error", err)
		}
	}()
	return s
}

// Shutdown stops the server, waiting up to 5s for in-flight requests.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("status: shutdown", "error", err)
	}
}
