// Package browser manages the Chrome process used for story viewing:
// launch or attach via Rod, optional Xvfb display, stealth pages, and a
// guaranteed teardown.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// Mode controls how Chrome is displayed.
type Mode int

const (
	ModeHeadless Mode = iota // no window
	ModeHeadful              // window on an Xvfb virtual display
	ModeDesktop              // window on the current display
)

// ParseMode maps a config string onto a Mode. Unknown values fall back to
// headless.
func ParseMode(s string) Mode {
	switch s {
	case "headful":
		return ModeHeadful
	case "desktop":
		return ModeDesktop
	}
	return ModeHeadless
}

func (m Mode) String() string {
	switch m {
	case ModeHeadful:
		return "headful"
	case ModeDesktop:
		return "desktop"
	}
	return "headless"
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome binary. Empty = let the launcher find or fetch one.
	Bin string

	// UserDataDir keeps cookies between runs so the login survives.
	UserDataDir string

	// ResourceBlocking lists resource types to block (fonts, stylesheets...).
	// Blocking media or images stops stories from playing.
	ResourceBlocking []string

	Mode Mode

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	MuteAudio bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome lifecycle.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return err
	}
	m.browser = b
	return nil
}

// Browser returns the current Rod browser handle, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// Close shuts down Chrome and Xvfb. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Mode == ModeHeadful {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := m.newLauncher().Context(ctx)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

// newLauncher builds the local Chrome command line.
func (m *Manager) newLauncher() *launcher.Launcher {
	l := launcher.New()
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}

	switch m.cfg.Mode {
	case ModeHeadful:
		base, _ := l.GetFlags(flags.Env)
		l = l.Headless(false).Env(m.displayEnv(base)...)
	case ModeDesktop:
		l = l.Headless(false)
	default:
		l = l.Headless(true)
	}

	if m.cfg.UserDataDir != "" {
		l = l.UserDataDir(m.cfg.UserDataDir)
	}

	l = l.Set("disable-blink-features", "AutomationControlled").
		Set("disable-notifications").
		Set("start-maximized")
	if m.cfg.MuteAudio {
		l = l.Set("mute-audio")
	}
	return l
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Warn("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}
