// Package config loads promptchain configuration from files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (PROMPTCHAIN_BATCH_MODE, ...).
const EnvPrefix = "PROMPTCHAIN"

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Lock     LockConfig     `mapstructure:"lock"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `mapstructure:"-"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path is the database file. Empty means the default data dir.
	Path string `mapstructure:"path"`
}

// AgentConfig selects and configures the conversational agent adapter.
type AgentConfig struct {
	// Adapter is one of chat, tmux, pty, echo.
	Adapter string `mapstructure:"adapter"`

	// BaseURL is the OpenAI-compatible API root for the chat adapter.
	BaseURL string `mapstructure:"base_url"`

	// Model is the chat model name.
	Model string `mapstructure:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `mapstructure:"api_key_env"`

	// Command is the agent CLI started by the pty adapter.
	Command []string `mapstructure:"command"`

	// TmuxPane is the tmux target for the tmux adapter.
	TmuxPane string `mapstructure:"tmux_pane"`

	// PromptRegex marks the agent as ready for input (tmux and pty adapters).
	PromptRegex string `mapstructure:"prompt_regex"`

	// ResponseTimeout is the overall wait for one reply.
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
}

// BatchConfig controls the batch controller.
type BatchConfig struct {
	// Mode is auto-remove or positional.
	Mode string `mapstructure:"mode"`

	// ItemWait elapses between queue items.
	ItemWait time.Duration `mapstructure:"item_wait"`

	// StepWait elapses between chain steps.
	StepWait time.Duration `mapstructure:"step_wait"`

	// SubItemWait elapses between template step sub-items.
	SubItemWait time.Duration `mapstructure:"sub_item_wait"`

	// FailurePolicy is abort or continue.
	FailurePolicy string `mapstructure:"failure_policy"`
}

// LockConfig controls the cross-process run lock.
type LockConfig struct {
	// Backend is sqlite, redis, memory or none.
	Backend string `mapstructure:"backend"`

	// Name is the lock key.
	Name string `mapstructure:"name"`

	// TTL is how long a record stays valid without a heartbeat.
	TTL time.Duration `mapstructure:"ttl"`

	// RenewInterval is the heartbeat period. Must be shorter than TTL.
	RenewInterval time.Duration `mapstructure:"renew_interval"`

	// RedisURL is used by the redis backend.
	RedisURL string `mapstructure:"redis_url"`
}

// HTTPConfig controls the http step client.
type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DaemonConfig controls serve mode.
type DaemonConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// HTTPAddr serves health, metrics and the queue API.
	HTTPAddr string `mapstructure:"http_addr"`

	// Queue is the persisted queue consumed in serve mode.
	Queue string `mapstructure:"queue"`

	// Chain is the chain run for each batch in serve mode.
	Chain string `mapstructure:"chain"`

	// PollInterval is how often the queue is checked.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// RateLimit is the allowed gRPC requests per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: filepath.Join(DataDir(), "promptchain.db")},
		Agent: AgentConfig{
			Adapter:         "chat",
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
			PromptRegex:     `(?m)^\s*[>›$]\s*$`,
			ResponseTimeout: 5 * time.Minute,
		},
		Batch: BatchConfig{
			Mode:          "auto-remove",
			ItemWait:      2 * time.Second,
			StepWait:      time.Second,
			SubItemWait:   time.Second,
			FailurePolicy: "abort",
		},
		Lock: LockConfig{
			Backend:       "sqlite",
			Name:          "promptchain.run",
			TTL:           15 * time.Second,
			RenewInterval: 5 * time.Second,
			RedisURL:      "redis://127.0.0.1:6379/0",
		},
		HTTP: HTTPConfig{
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			Backoff:     500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Daemon: DaemonConfig{
			Host:         "127.0.0.1",
			Port:         7090,
			HTTPAddr:     "127.0.0.1:7091",
			Queue:        "default",
			PollInterval: 2 * time.Second,
			RateLimit:    20,
			RateBurst:    40,
		},
	}
}

// DataDir returns the directory for runtime data.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "promptchain")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", "promptchain")
	}
	return ".promptchain"
}

// ConfigDir returns the user configuration directory.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "promptchain")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config", "promptchain")
	}
	return ".promptchain"
}

// Load reads configuration. An explicit path must exist; otherwise the search
// paths are tried and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".promptchain")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("agent.adapter", d.Agent.Adapter)
	v.SetDefault("agent.base_url", d.Agent.BaseURL)
	v.SetDefault("agent.model", d.Agent.Model)
	v.SetDefault("agent.api_key_env", d.Agent.APIKeyEnv)
	v.SetDefault("agent.command", d.Agent.Command)
	v.SetDefault("agent.tmux_pane", d.Agent.TmuxPane)
	v.SetDefault("agent.prompt_regex", d.Agent.PromptRegex)
	v.SetDefault("agent.response_timeout", d.Agent.ResponseTimeout)

	v.SetDefault("batch.mode", d.Batch.Mode)
	v.SetDefault("batch.item_wait", d.Batch.ItemWait)
	v.SetDefault("batch.step_wait", d.Batch.StepWait)
	v.SetDefault("batch.sub_item_wait", d.Batch.SubItemWait)
	v.SetDefault("batch.failure_policy", d.Batch.FailurePolicy)

	v.SetDefault("lock.backend", d.Lock.Backend)
	v.SetDefault("lock.name", d.Lock.Name)
	v.SetDefault("lock.ttl", d.Lock.TTL)
	v.SetDefault("lock.renew_interval", d.Lock.RenewInterval)
	v.SetDefault("lock.redis_url", d.Lock.RedisURL)

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.max_attempts", d.HTTP.MaxAttempts)
	v.SetDefault("http.backoff", d.HTTP.Backoff)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("daemon.host", d.Daemon.Host)
	v.SetDefault("daemon.port", d.Daemon.Port)
	v.SetDefault("daemon.http_addr", d.Daemon.HTTPAddr)
	v.SetDefault("daemon.queue", d.Daemon.Queue)
	v.SetDefault("daemon.chain", d.Daemon.Chain)
	v.SetDefault("daemon.poll_interval", d.Daemon.PollInterval)
	v.SetDefault("daemon.rate_limit", d.Daemon.RateLimit)
	v.SetDefault("daemon.rate_burst", d.Daemon.RateBurst)
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Agent.Adapter {
	case "chat", "tmux", "pty", "echo":
	default:
		problems = append(problems, fmt.Sprintf("agent.adapter: unknown adapter %q", c.Agent.Adapter))
	}
	switch c.Batch.Mode {
	case "auto-remove", "positional":
	default:
		problems = append(problems, fmt.Sprintf("batch.mode: must be auto-remove or positional, got %q", c.Batch.Mode))
	}
	switch c.Batch.FailurePolicy {
	case "abort", "continue":
	default:
		problems = append(problems, fmt.Sprintf("batch.failure_policy: must be abort or continue, got %q", c.Batch.FailurePolicy))
	}
	if c.Batch.ItemWait < 0 || c.Batch.StepWait < 0 || c.Batch.SubItemWait < 0 {
		problems = append(problems, "batch: waits must not be negative")
	}
	switch c.Lock.Backend {
	case "sqlite", "redis", "memory", "none":
	default:
		problems = append(problems, fmt.Sprintf("lock.backend: unknown backend %q", c.Lock.Backend))
	}
	if c.Lock.Backend != "none" {
		if c.Lock.TTL <= 0 {
			problems = append(problems, "lock.ttl: must be positive")
		}
		if c.Lock.RenewInterval <= 0 || c.Lock.RenewInterval >= c.Lock.TTL {
			problems = append(problems, "lock.renew_interval: must be positive and shorter than lock.ttl")
		}
	}
	if c.HTTP.MaxAttempts < 1 {
		problems = append(problems, "http.max_attempts: must be at least 1")
	}
	if c.HTTP.Timeout <= 0 {
		problems = append(problems, "http.timeout: must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
