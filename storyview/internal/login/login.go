// Package login brings the browser session to an authenticated state
// before any story is visited.
package login

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hazyhaar/storyview/storyview/internal/clock"
	"github.com/hazyhaar/storyview/storyview/internal/pagectl"
)

// Environment variables holding the account credentials.
const (
	EnvUsername = "STORYVIEW_USERNAME"
	EnvPassword = "STORYVIEW_PASSWORD"
)

var (
	// ErrNoCredentials is returned when the session is not authenticated
	// and no credentials were supplied.
	ErrNoCredentials = errors.New("login: no credentials")
	// ErrTimeout is returned when the post-login page never shows up.
	ErrTimeout = errors.New("login: timed out waiting for session")
)

// Credentials is an account username and password.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether either field is missing.
func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// LoadCredentials reads credentials from the environment after loading
// envFile, if it exists. Variables already set in the environment win.
func LoadCredentials(envFile string) (Credentials, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("login: load %s: %w", envFile, err)
		}
	}
	return Credentials{
		Username: os.Getenv(EnvUsername),
		Password: os.Getenv(EnvPassword),
	}, nil
}

// Selectors locates login page elements. XPath selectors start with "/".
type Selectors struct {
	CookieAccept string
	Avatar       string
	Username     string
	Password     string
	Submit       string
}

// Config controls the login flow.
type Config struct {
	BaseURL string
	// SuccessMarkers are URL fragments shown right after a login.
	SuccessMarkers []string
	// ChallengeMarkers are URL fragments of security checks the operator
	// must solve by hand in the browser window.
	ChallengeMarkers []string

	Settle           time.Duration
	ElementTimeout   time.Duration
	Timeout          time.Duration
	ChallengeTimeout time.Duration
	PollInterval     time.Duration
	Selectors        Selectors

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.instagram.com/"
	}
	if c.SuccessMarkers == nil {
		c.SuccessMarkers = []string{"/accounts/onetap/"}
	}
	if c.ChallengeMarkers == nil {
		c.ChallengeMarkers = []string{"challenge", "captcha"}
	}
	if c.Settle <= 0 {
		c.Settle = 2 * time.Second
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Minute
	}
	if c.ChallengeTimeout <= 0 {
		c.ChallengeTimeout = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Flow performs the login on one page.
type Flow struct {
	cfg   Config
	page  pagectl.Controller
	creds Credentials
	log   *slog.Logger
}

// New creates a login Flow.
func New(page pagectl.Controller, creds Credentials, cfg Config) *Flow {
	cfg.defaults()
	return &Flow{cfg: cfg, page: page, creds: creds, log: cfg.Logger}
}

// Login authenticates the session. An already authenticated session (for
// instance from a persisted browser profile) returns immediately.
func (f *Flow) Login(ctx context.Context) error {
	f.log.Info("login: opening", "url", f.cfg.BaseURL)
	if err := f.page.Navigate(ctx, f.cfg.BaseURL); err != nil {
		return fmt.Errorf("login: navigate: %w", err)
	}
	if err := f.cfg.Clock.Sleep(ctx, f.cfg.Settle); err != nil {
		return err
	}

	if err := f.acceptCookies(ctx); err != nil {
		return err
	}

	ok, err := f.authenticated(ctx)
	if err != nil {
		return err
	}
	if ok {
		f.log.Info("login: already logged in")
		return nil
	}

	if f.creds.Empty() {
		return ErrNoCredentials
	}
	if err := f.page.InputWhenReady(ctx, f.cfg.Selectors.Username, f.creds.Username, f.cfg.ElementTimeout); err != nil {
		return fmt.Errorf("login: username field: %w", err)
	}
	if err := f.page.InputWhenReady(ctx, f.cfg.Selectors.Password, f.creds.Password, f.cfg.ElementTimeout); err != nil {
		return fmt.Errorf("login: password field: %w", err)
	}
	if err := f.page.ClickWhenReady(ctx, f.cfg.Selectors.Submit, f.cfg.ElementTimeout); err != nil {
		return fmt.Errorf("login: submit: %w", err)
	}

	if err := f.awaitSession(ctx); err != nil {
		return err
	}
	f.log.Info("login: successful")
	return nil
}

func (f *Flow) acceptCookies(ctx context.Context) error {
	if f.cfg.Selectors.CookieAccept == "" {
		return nil
	}
	err := f.page.ClickWhenReady(ctx, f.cfg.Selectors.CookieAccept, f.cfg.ElementTimeout)
	switch {
	case err == nil:
		f.log.Info("login: cookies accepted")
	case errors.Is(err, pagectl.ErrElementTimeout):
		f.log.Info("login: no cookie dialog")
	default:
		return fmt.Errorf("login: cookie dialog: %w", err)
	}
	return nil
}

func (f *Flow) authenticated(ctx context.Context) (bool, error) {
	if f.cfg.Selectors.Avatar == "" {
		return false, nil
	}
	ok, err := f.page.Has(ctx, f.cfg.Selectors.Avatar)
	if err != nil {
		return false, fmt.Errorf("login: avatar lookup: %w", err)
	}
	return ok, nil
}

// awaitSession polls the URL until a post-login page shows up. Landing on a
// security challenge extends the deadline once so the operator can solve
// it by hand.
func (f *Flow) awaitSession(ctx context.Context) error {
	deadline := f.cfg.Clock.Now().Add(f.cfg.Timeout)
	challenged := false
	for {
		current, err := f.page.CurrentURL(ctx)
		if err != nil {
			return fmt.Errorf("login: current url: %w", err)
		}
		if containsAny(current, f.cfg.SuccessMarkers) {
			return nil
		}
		ok, err := f.authenticated(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !challenged && containsAny(current, f.cfg.ChallengeMarkers) {
			challenged = true
			deadline = f.cfg.Clock.Now().Add(f.cfg.ChallengeTimeout)
			f.log.Warn("login: security check required, complete it in the browser window",
				"url", current, "wait", f.cfg.ChallengeTimeout)
		}
		if f.cfg.Clock.Now().After(deadline) {
			return fmt.Errorf("%w (last url %s)", ErrTimeout, current)
		}
		if err := f.cfg.Clock.Sleep(ctx, f.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
