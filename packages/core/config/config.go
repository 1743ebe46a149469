package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/interpreter"
)

// Config represents the flowspec configuration
type Config struct {
	Database        string   `json:"database,omitempty"` // sqlite:// or postgres:// connection string
	UserID          string   `json:"userId,omitempty"`
	RuntimeRoot     string   `json:"runtimeRoot,omitempty"`  // Parent of per-user snapshot directories
	ArtifactRoot    string   `json:"artifactRoot,omitempty"` // Parent of per-user result directories
	UploadDir       string   `json:"uploadDir,omitempty"`    // Base directory of relative upload paths
	Browsers        []string `json:"browsers,omitempty"`
	RunMode         string   `json:"runMode,omitempty"`         // default, serial or parallel
	ViewMode        string   `json:"viewMode,omitempty"`        // headless or headed
	Concurrency     int      `json:"concurrency,omitempty"`     // Parallel testcases per worker
	TestcaseTimeout int      `json:"testcaseTimeout,omitempty"` // milliseconds
	WaitTimeout     int      `json:"waitTimeout,omitempty"`     // milliseconds
	ActionRate      float64  `json:"actionRate,omitempty"`      // Driver calls per second, 0 = unlimited
	Bail            *bool    `json:"bail,omitempty"`
	Reporters       []string `json:"reporters,omitempty"` // console, json, junit or tap
	LogLevel        string   `json:"logLevel,omitempty"`
	LogFormat       string   `json:"logFormat,omitempty"`
	Verbose         *bool    `json:"verbose,omitempty"`
	NoColor         *bool    `json:"noColor,omitempty"`
	Notify          *Notify  `json:"notify,omitempty"`
}

// Notify configures run notifications.
type Notify struct {
	SlackWebhook string `json:"slackWebhook,omitempty"`
	SlackChannel string `json:"slackChannel,omitempty"`
	TeamsWebhook string `json:"teamsWebhook,omitempty"`
	On           string `json:"on,omitempty"` // always, failure or success
}

// BoolPtr returns a pointer to a bool value
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetBail returns the bail setting, defaulting to false
func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// TestcaseTimeoutDuration returns the per-testcase timeout.
func (c *Config) TestcaseTimeoutDuration() time.Duration {
	return time.Duration(c.TestcaseTimeout) * time.Millisecond
}

// InterpreterConfig returns interpreter settings with the configured
// overrides applied.
func (c *Config) InterpreterConfig() *interpreter.Config {
	cfg := interpreter.DefaultConfig()
	if c.WaitTimeout > 0 {
		cfg.WaitTimeout = time.Duration(c.WaitTimeout) * time.Millisecond
	}
	if c.UploadDir != "" {
		cfg.UploadDir = c.UploadDir
	}
	cfg.ActionRate = c.ActionRate
	return cfg
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".flowspec.config.json",
	"flowspec.config.json",
	".flowspecrc",
	".flowspecrc.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Database != "" {
		result.Database = other.Database
	}
	if other.UserID != "" {
		result.UserID = other.UserID
	}
	if other.RuntimeRoot != "" {
		result.RuntimeRoot = other.RuntimeRoot
	}
	if other.ArtifactRoot != "" {
		result.ArtifactRoot = other.ArtifactRoot
	}
	if other.UploadDir != "" {
		result.UploadDir = other.UploadDir
	}
	if other.RunMode != "" {
		result.RunMode = other.RunMode
	}
	if other.ViewMode != "" {
		result.ViewMode = other.ViewMode
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.TestcaseTimeout > 0 {
		result.TestcaseTimeout = other.TestcaseTimeout
	}
	if other.WaitTimeout > 0 {
		result.WaitTimeout = other.WaitTimeout
	}
	if other.ActionRate > 0 {
		result.ActionRate = other.ActionRate
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		result.LogFormat = other.LogFormat
	}

	// Boolean flags - only override if explicitly set in other config
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Browsers) > 0 {
		result.Browsers = other.Browsers
	}
	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}

	if other.Notify != nil {
		merged := Notify{}
		if result.Notify != nil {
			merged = *result.Notify
		}
		if other.Notify.SlackWebhook != "" {
			merged.SlackWebhook = other.Notify.SlackWebhook
		}
		if other.Notify.SlackChannel != "" {
			merged.SlackChannel = other.Notify.SlackChannel
		}
		if other.Notify.TeamsWebhook != "" {
			merged.TeamsWebhook = other.Notify.TeamsWebhook
		}
		if other.Notify.On != "" {
			merged.On = other.Notify.On
		}
		result.Notify = &merged
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
