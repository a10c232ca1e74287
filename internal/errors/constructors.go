package errors

import (
	"fmt"
	"time"
)

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *TexBotError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *TexBotError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *TexBotError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Pipeline errors

// ExtractionFailed reports an archive that could not be unpacked. detail
// describes the submitter's input and must not carry local paths; an empty
// detail leaves the user with the bare message.
func ExtractionFailed(cause error, detail string) *TexBotError {
	msg := "Cannot unpack the archive."
	if detail != "" {
		msg = "Cannot unpack the archive: " + detail
	}
	return Wrap(cause, CategoryArchive, SeverityWarning, "archive extraction failed").
		WithUserMessage(msg)
}

// AmbiguousProject reports a project folder without exactly one primary source.
func AmbiguousProject(count int) *TexBotError {
	return New(CategoryProject, SeverityWarning, "primary source is ambiguous").
		WithContext("tex_files", count).
		WithUserMessage(fmt.Sprintf("In the archive, I see %d TeX files. I do not know what to compile.", count))
}

// ProjectLayoutInvalid reports that extraction did not yield exactly one project folder.
func ProjectLayoutInvalid(entries int) *TexBotError {
	return New(CategoryInternal, SeverityFatal, "extraction did not produce exactly one project folder").
		WithContext("entries", entries).
		WithUserMessage("Internal error while preparing the project.")
}

// BuildTimedOut reports a compiler invocation that exceeded its time bound.
func BuildTimedOut(engine string, timeout time.Duration) *TexBotError {
	return New(CategoryTimeout, SeverityError, "compiler invocation timed out").
		WithContext("engine", engine).
		WithContext("timeout", timeout.String()).
		WithUserMessage(fmt.Sprintf("The build timed out after %s.", timeout))
}

// BuildFailed reports a compiler that could not be started at all.
func BuildFailed(engine string, cause error) *TexBotError {
	return Wrap(cause, CategoryBuild, SeverityError, "compiler invocation failed").
		WithContext("engine", engine).
		WithUserMessage(fmt.Sprintf("Could not run %s on the server.", engine))
}

func PackagingFailed(cause error) *TexBotError {
	return Wrap(cause, CategoryPackaging, SeverityError, "result packaging failed").
		WithUserMessage("Failed to compress the result")
}

func WorkspaceError(operation string, cause error) *TexBotError {
	return Wrap(cause, CategoryInternal, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation).
		WithUserMessage("Internal error while preparing the project.")
}

// Transport errors

func TransportError(operation string, cause error) *TexBotError {
	return WrapRetryable(cause, CategoryTransport, SeverityWarning, "chat transport error").
		WithContext("operation", operation)
}

// Storage errors

func StorageError(operation string, cause error) *TexBotError {
	return Wrap(cause, CategoryStorage, SeverityError, "storage operation failed").
		WithContext("operation", operation)
}

// NotFound reports an unknown resource looked up by id.
func NotFound(resource, id string) *TexBotError {
	return New(CategoryNotFound, SeverityInfo, resource+" not found").
		WithContext("id", id)
}

// Internal errors

func InternalError(message string, cause error) *TexBotError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message).
		WithUserMessage("Internal error while preparing the project.")
}
