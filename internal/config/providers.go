package config

import "time"

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`

	// Rate-limit detection beyond the standard 429: error codes matched
	// against the JSON error body, and message substrings matched
	// against the raw body. Both augment the default detector chain.
	RateLimitCodes    []string `yaml:"rate_limit_codes,omitempty"`
	RateLimitPatterns []string `yaml:"rate_limit_patterns,omitempty"`
}
