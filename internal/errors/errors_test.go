package errors

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTexBotError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TexBotError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("zip: not a valid zip file"), CategoryArchive, SeverityWarning, "archive extraction failed"),
			expected: "archive (warning): archive extraction failed: zip: not a valid zip file",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.err.Error(); got != test.expected {
				t.Errorf("Error() = %q, want %q", got, test.expected)
			}
		})
	}
}

func TestTexBotError_WithContext(t *testing.T) {
	err := New(CategoryBuild, SeverityWarning, "pass failed").
		WithContext("engine", "pdflatex").
		WithContext("pass", 2)

	if err.Context["engine"] != "pdflatex" {
		t.Errorf("Context[engine] = %v, want pdflatex", err.Context["engine"])
	}
	if err.Context["pass"] != 2 {
		t.Errorf("Context[pass] = %v, want 2", err.Context["pass"])
	}
}

func TestIsCategory_FollowsWrapChain(t *testing.T) {
	inner := AmbiguousProject(2)
	wrapped := fmt.Errorf("locate: %w", inner)

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		expected bool
	}{
		{"direct match", inner, CategoryProject, true},
		{"wrapped match", wrapped, CategoryProject, true},
		{"other category", wrapped, CategoryArchive, false},
		{"standard error", fmt.Errorf("plain"), CategoryProject, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsCategory(test.err, test.category); got != test.expected {
				t.Errorf("IsCategory() = %v, want %v", got, test.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(TransportError("send", fmt.Errorf("reset"))) {
		t.Error("transport errors should be retryable")
	}
	if IsRetryable(PackagingFailed(fmt.Errorf("disk full"))) {
		t.Error("packaging errors should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("standard errors should not be retryable")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"ambiguous project", AmbiguousProject(2), "In the archive, I see 2 TeX files. I do not know what to compile."},
		{"no sources", AmbiguousProject(0), "In the archive, I see 0 TeX files. I do not know what to compile."},
		{"extraction keeps detail", ExtractionFailed(fmt.Errorf("zip: not a valid zip file"), "zip: not a valid zip file"), "Cannot unpack the archive: zip: not a valid zip file"},
		{"extraction without detail", ExtractionFailed(fmt.Errorf("mkdir /tmp/x: no space left on device"), ""), "Cannot unpack the archive."},
		{"packaging", PackagingFailed(fmt.Errorf("no space left on device")), "Failed to compress the result"},
		{"timeout", BuildTimedOut("pdflatex", 2*time.Minute), "The build timed out after 2m0s."},
		{"layout hides details", ProjectLayoutInvalid(3), "Internal error while preparing the project."},
		{"wrapped", fmt.Errorf("stage: %w", PackagingFailed(nil)), "Failed to compress the result"},
		{"unclassified", fmt.Errorf("open /tmp/texbot-1/x: permission denied"), GenericUserMessage},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := UserMessage(test.err); got != test.want {
				t.Errorf("UserMessage() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestGetCategory(t *testing.T) {
	if got := GetCategory(BuildTimedOut("lualatex", time.Second)); got != CategoryTimeout {
		t.Errorf("GetCategory() = %v, want %v", got, CategoryTimeout)
	}
	if got := GetCategory(fmt.Errorf("plain")); got != CategoryInternal {
		t.Errorf("GetCategory() = %v, want %v", got, CategoryInternal)
	}
}

func TestCLIErrorAdapter_ExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)

	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{fmt.Errorf("plain"), 1},
		{ValidationFailed("compiler.latex", "not allowed"), 2},
		{AmbiguousProject(0), 3},
		{ExtractionFailed(fmt.Errorf("bad"), "bad"), 3},
		{ConfigNotFound("texbot.yaml"), 7},
		{ProjectLayoutInvalid(2), 10},
		{BuildTimedOut("pdflatex", time.Second), 11},
		{PackagingFailed(fmt.Errorf("x")), 11},
	}

	for _, test := range tests {
		if got := a.ExitCodeFor(test.err); got != test.want {
			t.Errorf("ExitCodeFor(%v) = %d, want %d", test.err, got, test.want)
		}
	}
}

func TestCLIErrorAdapter_Report(t *testing.T) {
	var logBuf, outBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	a := NewCLIErrorAdapter(false, logger)
	a.out = &outBuf

	code := a.Report(AmbiguousProject(2))

	if code != 3 {
		t.Errorf("Report() code = %d, want 3", code)
	}
	if got := outBuf.String(); got != "In the archive, I see 2 TeX files. I do not know what to compile.\n" {
		t.Errorf("unexpected output %q", got)
	}
	if logBuf.Len() != 0 {
		t.Errorf("warning-level input errors should not be logged, got %q", logBuf.String())
	}
}

func TestHTTPErrorAdapterStatusCodes(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ValidationFailed("limit", "must be positive"), http.StatusBadRequest},
		{NotFound("request", "abc"), http.StatusNotFound},
		{StorageError("query", stdErrors.New("disk")), http.StatusServiceUnavailable},
		{TransportError("send", stdErrors.New("reset")), http.StatusBadGateway},
		{stdErrors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := a.StatusCodeFor(tt.err); got != tt.want {
			t.Errorf("StatusCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHTTPErrorAdapterWritesJSON(t *testing.T) {
	a := NewHTTPErrorAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/requests/abc", nil)

	a.WriteErrorResponse(rec, req, NotFound("request", "abc"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body HTTPErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != string(CategoryNotFound) || body.Details["id"] != "abc" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestCLIErrorAdapterFormatsFieldContext(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	got := a.FormatError(ValidationFailed("compiler.latex", `"tectonic" is not allowed`))
	want := `validation failed: compiler.latex: "tectonic" is not allowed`
	if got != want {
		t.Fatalf("FormatError = %q, want %q", got, want)
	}
	if got := a.FormatError(ConfigRequired("telegram.token")); got != "required configuration missing: telegram.token" {
		t.Fatalf("FormatError = %q", got)
	}
}
