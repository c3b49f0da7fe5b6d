// Package config holds storyview configuration loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level storyview configuration.
type Config struct {
	BaseURL     string `yaml:"base_url"`
	TargetsFile string `yaml:"targets_file"`
	EnvFile     string `yaml:"env_file"`
	LogFile     string `yaml:"log_file"`
	StatusAddr  string `yaml:"status_addr"`

	Browser   BrowserConfig   `yaml:"browser"`
	Login     LoginConfig     `yaml:"login"`
	Traversal TraversalConfig `yaml:"traversal"`
	Selectors SelectorConfig  `yaml:"selectors"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Bin              string   `yaml:"bin"`
	Mode             string   `yaml:"mode"` // headless | headful | desktop
	XvfbDisplay      string   `yaml:"xvfb_display"`
	UserDataDir      string   `yaml:"user_data_dir"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	MuteAudio        *bool    `yaml:"mute_audio"`
}

// LoginConfig bounds the login flow.
type LoginConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	ChallengeTimeout time.Duration `yaml:"challenge_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	Settle           time.Duration `yaml:"settle"`
	ElementTimeout   time.Duration `yaml:"element_timeout"`
	SuccessMarkers   []string      `yaml:"success_markers"`
	ChallengeMarkers []string      `yaml:"challenge_markers"`
}

// TraversalConfig paces story viewing.
type TraversalConfig struct {
	MaxStories    int           `yaml:"max_stories"`
	MaxWait       time.Duration `yaml:"max_wait"`
	LoadSettle    time.Duration `yaml:"load_settle"`
	VideoDwell    time.Duration `yaml:"video_dwell"`
	ImageDwell    time.Duration `yaml:"image_dwell"`
	AdvanceSettle time.Duration `yaml:"advance_settle"`
	BeginTimeout  time.Duration `yaml:"begin_timeout"`
	TargetDelay   time.Duration `yaml:"target_delay"`
	SurfaceMarker string        `yaml:"surface_marker"`
}

// SelectorConfig lists the page signatures the viewer relies on. The class
// names are generated by the site and change over time.
type SelectorConfig struct {
	Video        string   `yaml:"video"`
	Begin        string   `yaml:"begin"`
	Next         []string `yaml:"next"`
	ClickRegions []string `yaml:"click_regions"`
	CookieAccept string   `yaml:"cookie_accept"`
	Avatar       string   `yaml:"avatar"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	Submit       string   `yaml:"submit"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the viewer cannot run with.
func (c *Config) Validate() error {
	switch c.Browser.Mode {
	case "headless", "headful", "desktop":
	default:
		return fmt.Errorf("config: browser.mode %q: want headless, headful or desktop", c.Browser.Mode)
	}
	if len(c.Selectors.Next) == 0 {
		return fmt.Errorf("config: selectors.next must not be empty")
	}
	if c.Traversal.MaxStories < 1 {
		return fmt.Errorf("config: traversal.max_stories must be positive")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.instagram.com/"
	}
	if c.TargetsFile == "" {
		c.TargetsFile = "instagramid.txt"
	}
	if c.EnvFile == "" {
		c.EnvFile = ".env"
	}

	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.MuteAudio == nil {
		mute := true
		c.Browser.MuteAudio = &mute
	}

	if c.Login.Timeout <= 0 {
		c.Login.Timeout = time.Minute
	}
	if c.Login.ChallengeTimeout <= 0 {
		c.Login.ChallengeTimeout = 5 * time.Minute
	}
	if c.Login.PollInterval <= 0 {
		c.Login.PollInterval = time.Second
	}
	if c.Login.Settle <= 0 {
		c.Login.Settle = 2 * time.Second
	}
	if c.Login.ElementTimeout <= 0 {
		c.Login.ElementTimeout = 10 * time.Second
	}
	if len(c.Login.SuccessMarkers) == 0 {
		c.Login.SuccessMarkers = []string{"/accounts/onetap/"}
	}
	if len(c.Login.ChallengeMarkers) == 0 {
		c.Login.ChallengeMarkers = []string{"challenge", "captcha"}
	}

	t := &c.Traversal
	if t.MaxStories == 0 {
		t.MaxStories = 30
	}
	if t.MaxWait <= 0 {
		t.MaxWait = 500 * time.Second
	}
	if t.LoadSettle <= 0 {
		t.LoadSettle = 5 * time.Second
	}
	if t.VideoDwell <= 0 {
		t.VideoDwell = 10 * time.Second
	}
	if t.ImageDwell <= 0 {
		t.ImageDwell = 5 * time.Second
	}
	if t.AdvanceSettle <= 0 {
		t.AdvanceSettle = time.Second
	}
	if t.BeginTimeout <= 0 {
		t.BeginTimeout = 10 * time.Second
	}
	if t.TargetDelay <= 0 {
		t.TargetDelay = 2 * time.Second
	}
	if t.SurfaceMarker == "" {
		t.SurfaceMarker = "/stories/"
	}

	s := &c.Selectors
	if s.Video == "" {
		s.Video = "video"
	}
	if s.Begin == "" {
		s.Begin = ".x1i10hfl.xdl72j9.x1q0g3np.x6s0dn4.x78zum5.x1f6kntn.xwhw2v2[role='button']"
	}
	if len(s.Next) == 0 {
		s.Next = []string{"div.xtijo5x.x1ey2m1c", "div[role='button'] svg[aria-label='Next']"}
	}
	if len(s.ClickRegions) == 0 {
		s.ClickRegions = []string{".x1i10hfl", ".x1ey2m1c"}
	}
	if s.CookieAccept == "" {
		s.CookieAccept = "//button[contains(text(),'Accept') or contains(text(),'Allow')]"
	}
	if s.Avatar == "" {
		s.Avatar = "//img[contains(@alt,'Profile')]"
	}
	if s.Username == "" {
		s.Username = "input[name='username']"
	}
	if s.Password == "" {
		s.Password = "input[name='password']"
	}
	if s.Submit == "" {
		s.Submit = "button[type='submit']"
	}
}
