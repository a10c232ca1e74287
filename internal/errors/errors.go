// Package errors provides the structured error type (TexBotError) used across the
// request pipeline. Every error carries a category for classification and an optional
// user-facing message that the transport may forward to the requester verbatim.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a texbot error for classification.
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Pipeline stage errors
	CategoryArchive   ErrorCategory = "archive"
	CategoryProject   ErrorCategory = "project"
	CategoryBuild     ErrorCategory = "build"
	CategoryTimeout   ErrorCategory = "timeout"
	CategoryPackaging ErrorCategory = "packaging"

	// External system and infrastructure errors
	CategoryTransport ErrorCategory = "transport"
	CategoryStorage   ErrorCategory = "storage"
	CategoryNotFound  ErrorCategory = "not_found"
	CategoryInternal  ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// GenericUserMessage is sent when an error carries no user-facing text.
const GenericUserMessage = "Something went wrong while processing your archive."

// TexBotError is a structured error with category, retryability, and context.
type TexBotError struct {
	Category    ErrorCategory `json:"category"`
	Severity    ErrorSeverity `json:"severity"`
	Message     string        `json:"message"`
	UserMessage string        `json:"user_message,omitempty"`
	Cause       error         `json:"cause,omitempty"`
	Retryable   bool          `json:"retryable"`
	Context     ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for TexBotError.
type ContextFields map[string]any

// Error implements the error interface.
func (e *TexBotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping.
func (e *TexBotError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *TexBotError) WithContext(key string, value any) *TexBotError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets the text shown to the requester.
func (e *TexBotError) WithUserMessage(msg string) *TexBotError {
	e.UserMessage = msg
	return e
}

// New creates a new TexBotError.
func New(category ErrorCategory, severity ErrorSeverity, message string) *TexBotError {
	return &TexBotError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new TexBotError that wraps an existing error.
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *TexBotError {
	return &TexBotError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable TexBotError that wraps an existing error.
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *TexBotError {
	return &TexBotError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As returns the first TexBotError in err's chain.
func As(err error) (*TexBotError, bool) {
	var tbe *TexBotError
	if stdErrors.As(err, &tbe) {
		return tbe, true
	}
	return nil, false
}

// IsCategory checks if an error (or anything it wraps) belongs to a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	if tbe, ok := As(err); ok {
		return tbe.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if tbe, ok := As(err); ok {
		return tbe.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a TexBotError.
func GetCategory(err error) ErrorCategory {
	if tbe, ok := As(err); ok {
		return tbe.Category
	}
	return CategoryInternal
}

// UserMessage returns the text to show the requester for err.
// Errors without a user message map to GenericUserMessage so that internal
// paths and causes never reach the chat.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if tbe, ok := As(err); ok && tbe.UserMessage != "" {
		return tbe.UserMessage
	}
	return GenericUserMessage
}
