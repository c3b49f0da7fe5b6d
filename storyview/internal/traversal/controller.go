// Package traversal runs one target's story sequence to completion.
//
// The controller is a polling state machine: it never subscribes to page
// events. Each iteration it classifies the surface, checks the advance
// flag, dwells like a human would, then either presses ArrowRight or stops.
// The time bound is only checked between iterations, so a run can overrun
// MaxWait by one dwell interval.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/storyview/storyview/internal/clock"
	"github.com/hazyhaar/storyview/storyview/internal/pagectl"
)

// Signals is the advance flag kept inside the page context.
type Signals interface {
	Install(ctx context.Context) error
	ConsumeAndReset(ctx context.Context) (bool, error)
}

// Selectors locates story UI elements.
type Selectors struct {
	// Video matches the video player of a video story.
	Video string
	// Begin matches the "view story" interstitial button. Empty skips it.
	Begin string
	// Next lists signatures of the "next story" affordance; any match counts.
	Next []string
}

// Config controls the traversal loop.
type Config struct {
	BaseURL       string
	SurfaceMarker string
	MaxStories    int
	MaxWait       time.Duration
	LoadSettle    time.Duration
	VideoDwell    time.Duration
	ImageDwell    time.Duration
	AdvanceSettle time.Duration
	BeginTimeout  time.Duration
	Selectors     Selectors

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.instagram.com"
	}
	if c.SurfaceMarker == "" {
		c.SurfaceMarker = "/stories/"
	}
	if c.MaxStories <= 0 {
		c.MaxStories = 30
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 500 * time.Second
	}
	if c.LoadSettle <= 0 {
		c.LoadSettle = 5 * time.Second
	}
	if c.VideoDwell <= 0 {
		c.VideoDwell = 10 * time.Second
	}
	if c.ImageDwell <= 0 {
		c.ImageDwell = 5 * time.Second
	}
	if c.AdvanceSettle <= 0 {
		c.AdvanceSettle = time.Second
	}
	if c.BeginTimeout <= 0 {
		c.BeginTimeout = 10 * time.Second
	}
	if c.Selectors.Video == "" {
		c.Selectors.Video = "video"
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller drives one page through story sequences, one identifier at a
// time. It is not safe for concurrent use.
type Controller struct {
	cfg     Config
	page    pagectl.Controller
	signals Signals
	log     *slog.Logger
}

// New creates a Controller over page, reading manual advances from signals.
func New(page pagectl.Controller, signals Signals, cfg Config) *Controller {
	cfg.defaults()
	return &Controller{cfg: cfg, page: page, signals: signals, log: cfg.Logger}
}

// StoryURL returns the story surface URL of identifier.
func (c *Controller) StoryURL(identifier string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/stories/" + url.PathEscape(identifier) + "/"
}

// session is the per-identifier traversal state.
type session struct {
	count    int
	max      int
	advances int
	start    time.Time
}

// bump records one more story, saturating at the cap.
func (s *session) bump() {
	if s.count < s.max {
		s.count++
	}
}

// View runs the story sequence of identifier and reports how it ended.
// Driver failures end the traversal as Failed; they are never retried.
func (c *Controller) View(ctx context.Context, identifier string) Result {
	began := c.cfg.Clock.Now()
	res := Result{Identifier: identifier}
	done := func(o Outcome, s *session, err error) Result {
		res.Outcome = o
		res.Err = err
		res.Elapsed = c.cfg.Clock.Now().Sub(began)
		if s != nil {
			res.Stories = s.count
			res.Advances = s.advances
		}
		if err != nil {
			c.log.Error("traversal: story error", "target", identifier, "error", err)
		}
		return res
	}

	storyURL := c.StoryURL(identifier)
	c.log.Info("traversal: opening stories", "target", identifier, "url", storyURL)

	if err := c.page.Navigate(ctx, storyURL); err != nil {
		return done(Failed, nil, fmt.Errorf("traversal: navigate: %w", err))
	}
	if err := c.cfg.Clock.Sleep(ctx, c.cfg.LoadSettle); err != nil {
		return done(Failed, nil, err)
	}

	surface, err := c.classify(ctx)
	if err != nil {
		return done(Failed, nil, err)
	}
	if surface == Absent {
		c.log.Warn("traversal: no stories available (redirected)", "target", identifier)
		return done(NoContent, nil, nil)
	}

	if err := c.signals.Install(ctx); err != nil {
		if !errors.Is(err, pagectl.ErrScript) {
			return done(Failed, nil, err)
		}
		c.log.Warn("traversal: advance monitor not installed", "target", identifier, "error", err)
	}

	if err := c.dismissIntro(ctx); err != nil {
		return done(Failed, nil, err)
	}

	s := &session{count: 1, max: c.cfg.MaxStories, start: c.cfg.Clock.Now()}
	timedOut, err := c.loop(ctx, identifier, s)
	if err != nil {
		return done(Failed, s, err)
	}
	if timedOut {
		return done(TimedOut, s, nil)
	}
	c.log.Info("traversal: finished stories", "target", identifier, "count", s.count, "advances", s.advances)
	return done(Completed, s, nil)
}

// loop runs polling iterations until the sequence ends, the cap is reached
// or the time bound expires. It reports whether the time bound stopped it.
func (c *Controller) loop(ctx context.Context, identifier string, s *session) (bool, error) {
	for s.count < s.max {
		if elapsed := c.cfg.Clock.Now().Sub(s.start); elapsed > c.cfg.MaxWait {
			c.log.Warn("traversal: max story wait exceeded",
				"target", identifier, "elapsed", elapsed, "limit", c.cfg.MaxWait)
			return true, nil
		}

		surface, err := c.classify(ctx)
		if err != nil {
			return false, err
		}
		if surface == Absent {
			c.log.Info("traversal: left story surface", "target", identifier)
			return false, nil
		}
		dwell := c.cfg.ImageDwell
		if surface == Video {
			dwell = c.cfg.VideoDwell
		}
		c.log.Debug("traversal: story detected", "target", identifier, "kind", surface, "dwell", dwell)

		manual, err := c.signals.ConsumeAndReset(ctx)
		if err != nil {
			return false, err
		}
		if manual {
			s.bump()
			c.log.Info("traversal: manual advance observed", "target", identifier, "story", s.count)
		}

		if err := c.cfg.Clock.Sleep(ctx, dwell); err != nil {
			return false, err
		}

		next, err := c.hasNext(ctx)
		if err != nil {
			return false, err
		}
		if !next {
			c.log.Info("traversal: no next story, possibly last", "target", identifier)
			return false, nil
		}

		// Second look at the flag: catches a manual advance made during the
		// dwell. A click landing between the two checks may count twice.
		// The keystroke below is sent either way.
		again, err := c.signals.ConsumeAndReset(ctx)
		if err != nil {
			return false, err
		}
		if again {
			s.bump()
			if err := c.cfg.Clock.Sleep(ctx, c.cfg.AdvanceSettle); err != nil {
				return false, err
			}
		}
		if s.count >= s.max {
			continue
		}

		c.log.Info("traversal: viewing story", "target", identifier, "story", s.count+1)
		if err := c.page.PressKey(ctx, pagectl.KeyArrowRight); err != nil {
			return false, fmt.Errorf("traversal: advance: %w", err)
		}
		s.advances++
		s.bump()

		// Our own keystroke trips the keydown listener.
		if _, err := c.signals.ConsumeAndReset(ctx); err != nil {
			return false, err
		}
	}
	return false, nil
}

// classify inspects the page once and reports what it shows.
func (c *Controller) classify(ctx context.Context) (Surface, error) {
	current, err := c.page.CurrentURL(ctx)
	if err != nil {
		return Absent, fmt.Errorf("traversal: current url: %w", err)
	}
	if !strings.Contains(current, c.cfg.SurfaceMarker) {
		return Absent, nil
	}
	video, err := c.page.Has(ctx, c.cfg.Selectors.Video)
	if err != nil {
		return Absent, fmt.Errorf("traversal: video lookup: %w", err)
	}
	if video {
		return Video, nil
	}
	return Image, nil
}

func (c *Controller) hasNext(ctx context.Context) (bool, error) {
	for _, sel := range c.cfg.Selectors.Next {
		n, err := c.page.Count(ctx, sel)
		if err != nil {
			return false, fmt.Errorf("traversal: next lookup: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// dismissIntro clicks the "view story" interstitial when it shows up.
// Its absence means playback already started.
func (c *Controller) dismissIntro(ctx context.Context) error {
	if c.cfg.Selectors.Begin == "" {
		return nil
	}
	err := c.page.ClickWhenReady(ctx, c.cfg.Selectors.Begin, c.cfg.BeginTimeout)
	switch {
	case err == nil:
		c.log.Debug("traversal: view story button clicked")
		return nil
	case errors.Is(err, pagectl.ErrElementTimeout):
		c.log.Info("traversal: view story button not found, assuming autoplay")
		return nil
	default:
		return fmt.Errorf("traversal: view story button: %w", err)
	}
}
