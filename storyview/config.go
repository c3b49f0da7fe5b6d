package storyview

import (
	"github.com/hazyhaar/storyview/storyview/internal/batch"
	"github.com/hazyhaar/storyview/storyview/internal/config"
	"github.com/hazyhaar/storyview/storyview/internal/login"
	"github.com/hazyhaar/storyview/storyview/internal/targets"
	"github.com/hazyhaar/storyview/storyview/internal/traversal"
)

// Config is the top-level storyview configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// TraversalConfig paces story viewing.
type TraversalConfig = config.TraversalConfig

// Credentials is the account used by the login flow.
type Credentials = login.Credentials

// Result is the outcome of one identifier's traversal.
type Result = traversal.Result

// Summary aggregates a batch run.
type Summary = batch.Summary

// Outcome values of a Result.
const (
	Completed = traversal.Completed
	NoContent = traversal.NoContent
	TimedOut  = traversal.TimedOut
	Failed    = traversal.Failed
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// LoadCredentials reads STORYVIEW_USERNAME and STORYVIEW_PASSWORD after
// loading envFile when it exists.
func LoadCredentials(envFile string) (Credentials, error) {
	return login.LoadCredentials(envFile)
}

// LoadTargets reads one identifier per line from path.
func LoadTargets(path string) ([]string, error) {
	return targets.Load(path)
}
