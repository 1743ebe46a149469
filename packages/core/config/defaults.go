package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Database:        "sqlite://flowspec.db",
		RuntimeRoot:     "runtime",
		ArtifactRoot:    "users",
		UploadDir:       "uploadFiles",
		Browsers:        []string{"chromium"},
		RunMode:         "default",
		ViewMode:        "headless",
		Concurrency:     3,
		TestcaseTimeout: 240000, // 240 seconds
		WaitTimeout:     70000,  // 70 seconds
		Bail:            BoolPtr(false),
		Reporters:       []string{"console"},
		LogLevel:        "info",
		LogFormat:       "text",
		Verbose:         BoolPtr(false),
		NoColor:         BoolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Database == defaults.Database &&
		c.UserID == defaults.UserID &&
		c.RuntimeRoot == defaults.RuntimeRoot &&
		c.ArtifactRoot == defaults.ArtifactRoot &&
		c.UploadDir == defaults.UploadDir &&
		c.RunMode == defaults.RunMode &&
		c.ViewMode == defaults.ViewMode &&
		c.Concurrency == defaults.Concurrency &&
		c.TestcaseTimeout == defaults.TestcaseTimeout &&
		c.WaitTimeout == defaults.WaitTimeout &&
		c.ActionRate == defaults.ActionRate &&
		c.GetBail() == defaults.GetBail() &&
		c.GetVerbose() == defaults.GetVerbose() &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.Notify == nil
}
