package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRequestID  = "request_id"
	KeyChatID     = "chat_id"
	KeyUserID     = "user_id"
	KeyFile       = "file"
	KeyPath       = "path"
	KeyProject    = "project"
	KeyStage      = "stage"
	KeyEngine     = "engine"
	KeyPass       = "pass"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyWorker     = "worker"
	KeyOutcome    = "outcome"
	KeyBytes      = "bytes"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func ChatID(id int64) slog.Attr       { return slog.Int64(KeyChatID, id) }
func UserID(id int64) slog.Attr       { return slog.Int64(KeyUserID, id) }
func File(name string) slog.Attr      { return slog.String(KeyFile, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Project(name string) slog.Attr   { return slog.String(KeyProject, name) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Engine(name string) slog.Attr    { return slog.String(KeyEngine, name) }
func Pass(n int) slog.Attr            { return slog.Int(KeyPass, n) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Worker(w string) slog.Attr       { return slog.String(KeyWorker, w) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
