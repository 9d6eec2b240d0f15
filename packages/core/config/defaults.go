package config

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30000,
		CaseTimeout:     120000,
		HookTimeout:     60000,
		FollowRedirects: BoolPtr(true),
		MaxRedirects:    10,
		ValidateSSL:     BoolPtr(true),
		Parallel:        BoolPtr(false),
		Concurrency:     4,
		Bail:            BoolPtr(false),
		Output:          "console",
		NoColor:         BoolPtr(false),
		LogLevel:        "warn",
	}
}
