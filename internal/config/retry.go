package config

import "strings"

// RetryBackoffMode selects how the delay between Bot API retries grows.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var backoffModes = map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"constant":    RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
	"exp":         RetryBackoffExponential,
}

// NormalizeRetryBackoff maps telegram.retry.backoff onto a mode. Unknown
// values yield "", which Validate rejects.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return backoffModes[strings.ToLower(strings.TrimSpace(raw))]
}
