package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
)

// Config is the process-wide configuration. It is built once at start-up and
// passed by value or pointer to the components that need it; pipeline stages
// never look it up globally.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Compiler CompilerConfig `yaml:"compiler"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	History  HistoryConfig  `yaml:"history"`
	Events   EventsConfig   `yaml:"events"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig configures the Bot API transport.
type TelegramConfig struct {
	Token            string      `yaml:"token"`
	ProxyURL         string      `yaml:"proxy_url,omitempty"`
	APIEndpoint      string      `yaml:"api_endpoint,omitempty"`
	PollTimeout      string      `yaml:"poll_timeout,omitempty"`
	AllowedChats     []int64     `yaml:"allowed_chats,omitempty"`
	MaxDownloadBytes int64       `yaml:"max_download_bytes,omitempty"`
	Retry            RetryConfig `yaml:"retry"`
}

// RetryConfig describes the backoff applied to Bot API calls.
type RetryConfig struct {
	Backoff      RetryBackoffMode `yaml:"backoff,omitempty"`
	InitialDelay string           `yaml:"initial_delay,omitempty"`
	MaxDelay     string           `yaml:"max_delay,omitempty"`
	MaxRetries   int              `yaml:"max_retries"`
}

// CompilerConfig holds the global compiler defaults and process controls.
type CompilerConfig struct {
	Latex       string            `yaml:"latex"`
	Bibtex      string            `yaml:"bibtex"`
	ShellEscape *bool             `yaml:"shell_escape,omitempty"`
	Timeout     string            `yaml:"timeout,omitempty"`
	Sandbox     []string          `yaml:"sandbox,omitempty"`
	Binaries    map[string]string `yaml:"binaries,omitempty"`
}

// PipelineConfig bounds the request workers and their inputs.
type PipelineConfig struct {
	Workers           int    `yaml:"workers"`
	QueueSize         int    `yaml:"queue_size"`
	RequestTimeout    string `yaml:"request_timeout,omitempty"`
	WorkDir           string `yaml:"work_dir,omitempty"`
	MaxEntries        int    `yaml:"max_entries"`
	MaxExtractedBytes int64  `yaml:"max_extracted_bytes"`
}

// HistoryConfig configures the SQLite request ledger.
type HistoryConfig struct {
	Database      string `yaml:"database,omitempty"`
	Retention     string `yaml:"retention,omitempty"`
	PruneInterval string `yaml:"prune_interval,omitempty"`
}

// EventsConfig configures NATS publishing of request lifecycle events.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Stream  string `yaml:"stream,omitempty"`
}

// AdminConfig configures the health/metrics HTTP listener.
type AdminConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// Load reads, defaults and validates the configuration at configPath.
// Files ending in .ini are read in the legacy bot.ini layout; everything else is YAML.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, tberrors.ConfigNotFound(configPath)
	}

	var (
		cfg *Config
		err error
	)
	if strings.EqualFold(filepath.Ext(configPath), ".ini") {
		cfg, err = loadINI(configPath)
	} else {
		cfg, err = loadYAML(configPath)
	}
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML bytes into a defaulted, validated Config (no env file, no env overrides).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, tberrors.Wrap(err, tberrors.CategoryConfig, tberrors.SeverityFatal, "failed to unmarshal config")
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, tberrors.Wrap(err, tberrors.CategoryConfig, tberrors.SeverityFatal, "failed to read config file")
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, tberrors.Wrap(err, tberrors.CategoryConfig, tberrors.SeverityFatal, "failed to unmarshal config")
	}
	return &cfg, nil
}

// applyEnvOverrides lets the token come from the environment so it stays out of files.
func applyEnvOverrides(cfg *Config) {
	if tok := os.Getenv("TEXBOT_TOKEN"); tok != "" {
		cfg.Telegram.Token = tok
	}
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	shellEscape := true
	example := Config{
		Telegram: TelegramConfig{
			Token:       "${TEXBOT_TOKEN}",
			ProxyURL:    "socks5://localhost:9050/",
			PollTimeout: "60s",
			Retry:       RetryConfig{Backoff: RetryBackoffExponential, InitialDelay: "1s", MaxDelay: "15s", MaxRetries: 3},
		},
		Compiler: CompilerConfig{
			Latex:       "pdflatex",
			Bibtex:      "bibtex",
			ShellEscape: &shellEscape,
			Timeout:     "2m",
		},
		Pipeline: PipelineConfig{
			Workers:        2,
			QueueSize:      32,
			RequestTimeout: "10m",
		},
		History: HistoryConfig{
			Database:      "texbot-history.db",
			Retention:     "720h",
			PruneInterval: "1h",
		},
		Admin:   AdminConfig{Listen: ":9090"},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
