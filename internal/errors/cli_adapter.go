package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	out     io.Writer
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
		out:     os.Stderr,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if tbe, ok := As(err); ok {
		return a.exitCodeFromTexBot(tbe)
	}

	return 1
}

// exitCodeFromTexBot maps TexBotError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromTexBot(err *TexBotError) int {
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryArchive, CategoryProject:
		return 3 // Rejected input
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryTransport:
		return 8 // External system error
	case CategoryInternal:
		return 10 // Internal error
	case CategoryBuild, CategoryTimeout, CategoryPackaging:
		return 11 // Build error
	case CategoryStorage:
		return 12 // Runtime error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if tbe, ok := As(err); ok {
		return a.formatTexBot(tbe)
	}

	return fmt.Sprintf("Error: %v", err)
}

func (a *CLIErrorAdapter) formatTexBot(err *TexBotError) string {
	if a.verbose {
		return err.Error()
	}
	if err.UserMessage != "" {
		return err.UserMessage
	}

	switch err.Category {
	case CategoryConfig, CategoryValidation:
		field, ok := err.Context["field"]
		if !ok {
			return err.Message
		}
		if reason, ok := err.Context["reason"]; ok {
			return fmt.Sprintf("%s: %v: %v", err.Message, field, reason)
		}
		return fmt.Sprintf("%s: %v", err.Message, field)
	default:
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	}
}

// Report logs (when appropriate) and prints err, returning the exit code to use.
func (a *CLIErrorAdapter) Report(err error) int {
	if err == nil {
		return 0
	}
	if a.shouldLog(err) {
		a.logError(err)
	}
	_, _ = fmt.Fprintf(a.out, "%s\n", a.FormatError(err))
	return a.ExitCodeFor(err)
}

func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if tbe, ok := As(err); ok {
		return tbe.Category == CategoryInternal ||
			tbe.Category == CategoryStorage ||
			tbe.Severity == SeverityFatal
	}

	return true
}

func (a *CLIErrorAdapter) logError(err error) {
	if tbe, ok := As(err); ok {
		attrs := []slog.Attr{
			slog.String("category", string(tbe.Category)),
		}
		if tbe.Retryable {
			attrs = append(attrs, slog.Bool("retryable", true))
		}
		if tbe.Cause != nil {
			attrs = append(attrs, slog.String("cause", tbe.Cause.Error()))
		}

		a.logger.LogAttrs(context.Background(), levelFromSeverity(tbe.Severity), tbe.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

func levelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
