package config

import (
	"time"

	"git.home.luguber.info/inful/texbot/internal/compiler"
)

// Default values applied by applyDefaults.
const (
	DefaultPollTimeout       = 60 * time.Second
	DefaultMaxDownloadBytes  = 20 << 20 // Bot API getFile limit
	DefaultCompilerTimeout   = 2 * time.Minute
	DefaultWorkers           = 2
	DefaultQueueSize         = 32
	DefaultRequestTimeout    = 10 * time.Minute
	DefaultMaxEntries        = 10000
	DefaultMaxExtractedBytes = 512 << 20
	DefaultRetention         = 30 * 24 * time.Hour
	DefaultPruneInterval     = time.Hour
	DefaultEventsSubject     = "texbot.requests"
	DefaultEventsStream      = "TEXBOT"
)

func applyDefaults(cfg *Config) {
	if cfg.Telegram.PollTimeout == "" {
		cfg.Telegram.PollTimeout = DefaultPollTimeout.String()
	}
	if cfg.Telegram.MaxDownloadBytes <= 0 {
		cfg.Telegram.MaxDownloadBytes = DefaultMaxDownloadBytes
	}
	if cfg.Telegram.Retry.Backoff == "" {
		cfg.Telegram.Retry.Backoff = RetryBackoffExponential
	} else {
		cfg.Telegram.Retry.Backoff = NormalizeRetryBackoff(string(cfg.Telegram.Retry.Backoff))
	}
	if cfg.Telegram.Retry.InitialDelay == "" {
		cfg.Telegram.Retry.InitialDelay = "1s"
	}
	if cfg.Telegram.Retry.MaxDelay == "" {
		cfg.Telegram.Retry.MaxDelay = "15s"
	}

	choice := compiler.Choice{Engine: cfg.Compiler.Latex, Bibliography: cfg.Compiler.Bibtex}.WithDefaults()
	cfg.Compiler.Latex = choice.Engine
	cfg.Compiler.Bibtex = choice.Bibliography
	if cfg.Compiler.ShellEscape == nil {
		enabled := true
		cfg.Compiler.ShellEscape = &enabled
	}
	if cfg.Compiler.Timeout == "" {
		cfg.Compiler.Timeout = DefaultCompilerTimeout.String()
	}

	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = DefaultWorkers
	}
	if cfg.Pipeline.QueueSize <= 0 {
		cfg.Pipeline.QueueSize = DefaultQueueSize
	}
	if cfg.Pipeline.RequestTimeout == "" {
		cfg.Pipeline.RequestTimeout = DefaultRequestTimeout.String()
	}
	if cfg.Pipeline.MaxEntries <= 0 {
		cfg.Pipeline.MaxEntries = DefaultMaxEntries
	}
	if cfg.Pipeline.MaxExtractedBytes <= 0 {
		cfg.Pipeline.MaxExtractedBytes = DefaultMaxExtractedBytes
	}

	if cfg.History.Retention == "" {
		cfg.History.Retention = DefaultRetention.String()
	}
	if cfg.History.PruneInterval == "" {
		cfg.History.PruneInterval = DefaultPruneInterval.String()
	}

	if cfg.Events.Subject == "" {
		cfg.Events.Subject = DefaultEventsSubject
	}
	if cfg.Events.Stream == "" {
		cfg.Events.Stream = DefaultEventsStream
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
}

// Defaults returns a configuration with every default applied and no token.
// It is used by the local build command, which needs no transport.
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
