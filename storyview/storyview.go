// Package storyview views the ephemeral stories of a list of accounts in a
// real browser, one account at a time, pacing itself like a person would.
//
// A Viewer owns one Chrome session and one tab. Start acquires them, Login
// authenticates, Run walks the identifiers, and Stop releases everything.
// Stop must run however the batch ends; callers defer it right after New.
package storyview

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/storyview/storyview/internal/batch"
	"github.com/hazyhaar/storyview/storyview/internal/browser"
	"github.com/hazyhaar/storyview/storyview/internal/config"
	"github.com/hazyhaar/storyview/storyview/internal/login"
	"github.com/hazyhaar/storyview/storyview/internal/monitor"
	"github.com/hazyhaar/storyview/storyview/internal/status"
	"github.com/hazyhaar/storyview/storyview/internal/traversal"
)

// Viewer is the top-level orchestrator.
type Viewer struct {
	cfg     *config.Config
	logger  *slog.Logger
	mgr     *browser.Manager
	page    *browser.Page
	tracker *status.Tracker
	status  *status.Server
}

// New creates a Viewer from configuration. Nothing is launched until Start.
func New(cfg *Config, logger *slog.Logger) *Viewer {
	if logger == nil {
		logger = slog.Default()
	}

	mute := cfg.Browser.MuteAudio == nil || *cfg.Browser.MuteAudio
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		UserDataDir:      cfg.Browser.UserDataDir,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Mode:             browser.ParseMode(cfg.Browser.Mode),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		MuteAudio:        mute,
		Logger:           logger,
	})

	return &Viewer{cfg: cfg, logger: logger, mgr: mgr}
}

// Start launches the browser, opens the working tab and, when configured,
// the status server. A failure here is fatal for the whole run.
func (v *Viewer) Start(ctx context.Context) error {
	if err := v.mgr.Start(ctx); err != nil {
		return fmt.Errorf("storyview: start browser: %w", err)
	}
	page, err := v.mgr.OpenPage(ctx)
	if err != nil {
		return fmt.Errorf("storyview: open page: %w", err)
	}
	v.page = page

	if v.cfg.StatusAddr != "" {
		reg := prometheus.NewRegistry()
		v.tracker = status.NewTracker(reg)
		v.status = status.Serve(v.cfg.StatusAddr, status.Handler(v.tracker, reg), v.logger)
	}
	return nil
}

// Login authenticates the session. It returns immediately when the browser
// profile is already logged in.
func (v *Viewer) Login(ctx context.Context, creds Credentials) error {
	if v.page == nil {
		return fmt.Errorf("storyview: login before start")
	}
	c := v.cfg
	flow := login.New(v.page, creds, login.Config{
		BaseURL:          c.BaseURL,
		SuccessMarkers:   c.Login.SuccessMarkers,
		ChallengeMarkers: c.Login.ChallengeMarkers,
		Settle:           c.Login.Settle,
		ElementTimeout:   c.Login.ElementTimeout,
		Timeout:          c.Login.Timeout,
		ChallengeTimeout: c.Login.ChallengeTimeout,
		PollInterval:     c.Login.PollInterval,
		Selectors: login.Selectors{
			CookieAccept: c.Selectors.CookieAccept,
			Avatar:       c.Selectors.Avatar,
			Username:     c.Selectors.Username,
			Password:     c.Selectors.Password,
			Submit:       c.Selectors.Submit,
		},
		Logger: v.logger,
	})
	return flow.Login(ctx)
}

// Run views the stories of every identifier in order. The session must be
// authenticated. Per-identifier failures are reported in the Summary; the
// error is non-nil only when ctx ended the batch early.
func (v *Viewer) Run(ctx context.Context, identifiers []string) (Summary, error) {
	if v.page == nil {
		return Summary{}, fmt.Errorf("storyview: run before start")
	}
	c := v.cfg
	signals := monitor.New(v.page, c.Selectors.ClickRegions, v.logger)
	ctrl := traversal.New(v.page, signals, traversal.Config{
		BaseURL:       c.BaseURL,
		SurfaceMarker: c.Traversal.SurfaceMarker,
		MaxStories:    c.Traversal.MaxStories,
		MaxWait:       c.Traversal.MaxWait,
		LoadSettle:    c.Traversal.LoadSettle,
		VideoDwell:    c.Traversal.VideoDwell,
		ImageDwell:    c.Traversal.ImageDwell,
		AdvanceSettle: c.Traversal.AdvanceSettle,
		BeginTimeout:  c.Traversal.BeginTimeout,
		Selectors: traversal.Selectors{
			Video: c.Selectors.Video,
			Begin: c.Selectors.Begin,
			Next:  c.Selectors.Next,
		},
		Logger: v.logger,
	})

	return v.runBatch(ctx, ctrl, identifiers)
}

// runBatch runs identifiers through view. The Summary is always returned;
// the error is ctx's when the batch was cut short by cancellation.
func (v *Viewer) runBatch(ctx context.Context, view batch.Viewer, identifiers []string) (Summary, error) {
	bc := batch.Config{Delay: v.cfg.Traversal.TargetDelay, Logger: v.logger}
	if v.tracker != nil {
		bc.Reporter = v.tracker
	}
	sum := batch.New(view, bc).Run(ctx, identifiers)
	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("storyview: batch interrupted after %d of %d targets: %w", sum.Processed, sum.Total, err)
	}
	return sum, nil
}

// Stop closes the tab, the browser and the status server.
func (v *Viewer) Stop() {
	if v.status != nil {
		v.status.Shutdown()
		v.status = nil
	}
	if v.page != nil {
		if err := v.page.Close(); err != nil {
			v.logger.Debug("storyview: close page", "error", err)
		}
		v.page = nil
	}
	if err := v.mgr.Close(); err != nil {
		v.logger.Warn("storyview: close browser", "error", err)
	}
}
