// Package batch feeds target identifiers to the traversal controller one
// at a time and keeps going when a single target fails.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/storyview/idgen"
	"github.com/hazyhaar/storyview/storyview/internal/clock"
	"github.com/hazyhaar/storyview/storyview/internal/traversal"
)

// Viewer runs one identifier's traversal.
type Viewer interface {
	View(ctx context.Context, identifier string) traversal.Result
}

// Reporter observes batch progress. Implementations must not block.
type Reporter interface {
	Begin(runID string, total int)
	Started(identifier string)
	Finished(res traversal.Result)
}

// Summary aggregates the outcomes of one batch run.
type Summary struct {
	RunID     string
	Total     int
	Processed int
	Outcomes  map[traversal.Outcome]int
	Stories   int
	Started   time.Time
	Finished  time.Time
}

// Config controls a Runner.
type Config struct {
	// Delay is the pause between two identifiers. Default: 2s.
	Delay    time.Duration
	Reporter Reporter
	NewID    idgen.Generator
	Sleep    func(ctx context.Context, d time.Duration) error
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Delay <= 0 {
		c.Delay = 2 * time.Second
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("run_", idgen.Default)
	}
	if c.Sleep == nil {
		c.Sleep = clock.Real().Sleep
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Runner processes identifiers sequentially.
type Runner struct {
	cfg    Config
	viewer Viewer
}

// New creates a Runner around viewer.
func New(viewer Viewer, cfg Config) *Runner {
	cfg.defaults()
	return &Runner{cfg: cfg, viewer: viewer}
}

// Run views every identifier in order. A failed identifier is logged and
// skipped; cancellation of ctx stops the batch between identifiers.
func (r *Runner) Run(ctx context.Context, identifiers []string) Summary {
	log := r.cfg.Logger
	sum := Summary{
		RunID:    r.cfg.NewID(),
		Total:    len(identifiers),
		Outcomes: make(map[traversal.Outcome]int, 4),
		Started:  time.Now(),
	}
	if r.cfg.Reporter != nil {
		r.cfg.Reporter.Begin(sum.RunID, sum.Total)
	}
	log.Info("batch: starting", "run_id", sum.RunID, "targets", sum.Total)

	for i, id := range identifiers {
		if ctx.Err() != nil {
			log.Warn("batch: cancelled", "run_id", sum.RunID, "remaining", sum.Total-i)
			break
		}
		log.Info("batch: processing", "run_id", sum.RunID, "index", i+1, "total", sum.Total, "target", id)
		if r.cfg.Reporter != nil {
			r.cfg.Reporter.Started(id)
		}

		res := r.viewer.View(ctx, id)
		sum.Processed++
		sum.Outcomes[res.Outcome]++
		sum.Stories += res.Stories
		r.logResult(sum.RunID, res)
		if r.cfg.Reporter != nil {
			r.cfg.Reporter.Finished(res)
		}

		if i < len(identifiers)-1 {
			if err := r.cfg.Sleep(ctx, r.cfg.Delay); err != nil {
				log.Warn("batch: cancelled", "run_id", sum.RunID, "remaining", sum.Total-i-1)
				break
			}
		}
	}

	sum.Finished = time.Now()
	log.Info("batch: done",
		"run_id", sum.RunID,
		"processed", sum.Processed,
		"completed", sum.Outcomes[traversal.Completed],
		"no_content", sum.Outcomes[traversal.NoContent],
		"timed_out", sum.Outcomes[traversal.TimedOut],
		"failed", sum.Outcomes[traversal.Failed],
		"stories", sum.Stories,
		"duration", sum.Finished.Sub(sum.Started))
	return sum
}

func (r *Runner) logResult(runID string, res traversal.Result) {
	log := r.cfg.Logger
	attrs := []any{
		"run_id", runID,
		"target", res.Identifier,
		"outcome", res.Outcome.String(),
		"stories", res.Stories,
		"advances", res.Advances,
		"elapsed", res.Elapsed,
	}
	switch res.Outcome {
	case traversal.Completed:
		log.Info("batch: target finished", attrs...)
	case traversal.Failed:
		log.Error("batch: target failed", append(attrs, "error", res.Err)...)
	default:
		log.Warn("batch: target finished without stories viewed to the end", attrs...)
	}
}
