package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/texbot/internal/compiler"
	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
)

// Validate checks the defaulted configuration. Global compiler defaults outside the
// allow-lists are rejected here, unlike per-project overrides which are silently dropped.
func Validate(cfg *Config) error {
	if cfg == nil {
		return tberrors.ConfigRequired("config")
	}

	if !compiler.IsAllowedEngine(cfg.Compiler.Latex) {
		return tberrors.ValidationFailed("compiler.latex",
			fmt.Sprintf("%q is not one of %s", cfg.Compiler.Latex, strings.Join(compiler.Engines(), ", ")))
	}
	if !compiler.IsAllowedBibliography(cfg.Compiler.Bibtex) {
		return tberrors.ValidationFailed("compiler.bibtex",
			fmt.Sprintf("%q is not one of %s", cfg.Compiler.Bibtex, strings.Join(compiler.Bibliographies(), ", ")))
	}
	for engine, bin := range cfg.Compiler.Binaries {
		if !compiler.IsAllowedEngine(engine) && !compiler.IsAllowedBibliography(engine) {
			return tberrors.ValidationFailed("compiler.binaries", fmt.Sprintf("unknown program %q", engine))
		}
		if strings.TrimSpace(bin) == "" {
			return tberrors.ValidationFailed("compiler.binaries", fmt.Sprintf("empty path for %q", engine))
		}
	}
	for i, arg := range cfg.Compiler.Sandbox {
		if strings.TrimSpace(arg) == "" {
			return tberrors.ValidationFailed("compiler.sandbox", fmt.Sprintf("argument %d is empty", i))
		}
	}

	durations := []struct {
		field string
		value string
	}{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"telegram.retry.initial_delay", cfg.Telegram.Retry.InitialDelay},
		{"telegram.retry.max_delay", cfg.Telegram.Retry.MaxDelay},
		{"compiler.timeout", cfg.Compiler.Timeout},
		{"pipeline.request_timeout", cfg.Pipeline.RequestTimeout},
		{"history.retention", cfg.History.Retention},
		{"history.prune_interval", cfg.History.PruneInterval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return tberrors.ValidationFailed(d.field, fmt.Sprintf("invalid duration %q", d.value))
		}
		if parsed <= 0 {
			return tberrors.ValidationFailed(d.field, "must be positive")
		}
	}

	if cfg.Telegram.Retry.Backoff == "" {
		return tberrors.ValidationFailed("telegram.retry.backoff", "must be fixed, linear or exponential")
	}
	if cfg.Telegram.Retry.MaxRetries < 0 {
		return tberrors.ValidationFailed("telegram.retry.max_retries", "cannot be negative")
	}

	if cfg.Telegram.ProxyURL != "" {
		u, err := url.Parse(cfg.Telegram.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return tberrors.ValidationFailed("telegram.proxy_url", fmt.Sprintf("invalid URL %q", cfg.Telegram.ProxyURL))
		}
		switch u.Scheme {
		case "socks5", "socks5h", "http", "https":
		default:
			return tberrors.ValidationFailed("telegram.proxy_url", fmt.Sprintf("unsupported scheme %q", u.Scheme))
		}
	}

	if cfg.Telegram.APIEndpoint != "" && strings.Count(cfg.Telegram.APIEndpoint, "%s") != 2 {
		return tberrors.ValidationFailed("telegram.api_endpoint", "must contain two %s placeholders (token, method)")
	}

	return nil
}

// RequireToken reports a config error when no Bot API token is configured.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.Telegram.Token) == "" || strings.HasPrefix(c.Telegram.Token, "${") {
		return tberrors.ConfigRequired("telegram.token").
			WithUserMessage("telegram.token is not set (use TEXBOT_TOKEN or the config file)")
	}
	return nil
}

// mustDuration parses a duration that Validate has already accepted.
func mustDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// PollTimeoutDuration returns telegram.poll_timeout.
func (t TelegramConfig) PollTimeoutDuration() time.Duration {
	return mustDuration(t.PollTimeout, DefaultPollTimeout)
}

// InitialDelayDuration returns the first retry delay.
func (r RetryConfig) InitialDelayDuration() time.Duration {
	return mustDuration(r.InitialDelay, time.Second)
}

// MaxDelayDuration returns the retry delay cap.
func (r RetryConfig) MaxDelayDuration() time.Duration {
	return mustDuration(r.MaxDelay, 15*time.Second)
}

// TimeoutDuration returns the per-invocation compiler timeout.
func (c CompilerConfig) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout, DefaultCompilerTimeout)
}

// ShellEscapeEnabled reports whether the LaTeX engine gets -shell-escape.
func (c CompilerConfig) ShellEscapeEnabled() bool {
	return c.ShellEscape == nil || *c.ShellEscape
}

// Choice returns the global compiler defaults.
func (c CompilerConfig) Choice() compiler.Choice {
	return compiler.Choice{Engine: c.Latex, Bibliography: c.Bibtex}.WithDefaults()
}

// RequestTimeoutDuration returns the whole-request deadline.
func (p PipelineConfig) RequestTimeoutDuration() time.Duration {
	return mustDuration(p.RequestTimeout, DefaultRequestTimeout)
}

// RetentionDuration returns how long ledger events are kept.
func (h HistoryConfig) RetentionDuration() time.Duration {
	return mustDuration(h.Retention, DefaultRetention)
}

// PruneIntervalDuration returns how often the ledger is pruned.
func (h HistoryConfig) PruneIntervalDuration() time.Duration {
	return mustDuration(h.PruneInterval, DefaultPruneInterval)
}
