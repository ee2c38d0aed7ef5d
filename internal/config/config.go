package config

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Policy    PolicyConfig    `yaml:"policy"`
	Budget    BudgetConfig    `yaml:"budget"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	s := ""
	for i > 0 {
		s = string(rune('0'+i%10)) + s
		i /= 10
	}
	return s
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// PipelineConfig tunes the decision pipeline itself.
type PipelineConfig struct {
	// CallTimeout bounds every outbound backend call.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// MaxAttempts is the bounded local retry count for transient
	// transport failures, counting the first attempt.
	MaxAttempts int `yaml:"max_attempts"`
	// RetryBackoffBase is the first backoff delay; it doubles per retry.
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
	// ProbeTimeout bounds each individual capability probe call.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// ToolReliabilityThreshold is the minimum discovered tool-calling
	// reliability before the connector sends tool schemas at all.
	ToolReliabilityThreshold float64 `yaml:"tool_reliability_threshold"`
	// Temperature and MaxTokens apply to every decision call.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// SinkBuffer is the exchange-log channel depth; records are dropped
	// once it fills rather than blocking the pipeline.
	SinkBuffer int `yaml:"sink_buffer"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

// BudgetConfig caps estimated daily spend across the whole village.
// A zero limit disables the check.
type BudgetConfig struct {
	DailyLimitUSD float64 `yaml:"daily_limit_usd"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "village",
			User:            "village",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			DB:       0,
			PoolSize: 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Pipeline: PipelineConfig{
			CallTimeout:              60 * time.Second,
			MaxAttempts:              3,
			RetryBackoffBase:         500 * time.Millisecond,
			ProbeTimeout:             15 * time.Second,
			ToolReliabilityThreshold: 0.5,
			Temperature:              0.7,
			MaxTokens:                600,
			SinkBuffer:               256,
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "configs/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
	}
}
