// Package pipeline turns one uploaded archive into one reply: extract, locate the
// primary source, resolve the compiler, build, package, deliver. The first failing
// stage ends the request with a user-facing text.
package pipeline

import (
	"context"
	"time"

	"git.home.luguber.info/inful/texbot/internal/compiler"
	"git.home.luguber.info/inful/texbot/internal/latex"
)

// Request is one submitted archive.
type Request struct {
	ID         string
	ChatID     int64
	UserID     int64
	FileName   string
	Data       []byte
	ReceivedAt time.Time
}

// ChatAction is a transient status shown to the user.
type ChatAction string

const (
	ActionTyping         ChatAction = "typing"
	ActionUploadDocument ChatAction = "upload_document"
)

// Responder delivers replies for one request. The document at path only
// exists until Handle returns.
type Responder interface {
	ChatAction(ctx context.Context, action ChatAction) error
	SendText(ctx context.Context, text string) error
	SendDocument(ctx context.Context, path, caption string) error
}

// OutcomeKind classifies how a request ended.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeExtractionError OutcomeKind = "extraction_error"
	OutcomeLocateError     OutcomeKind = "locate_error"
	OutcomeInternalError   OutcomeKind = "internal_error"
	OutcomeBuildTimeout    OutcomeKind = "build_timeout"
	OutcomeBuildError      OutcomeKind = "build_error"
	OutcomePackagingError  OutcomeKind = "packaging_error"
	OutcomeDeliveryError   OutcomeKind = "delivery_error"
	OutcomeCanceled        OutcomeKind = "canceled"
)

// Stage names used in logs, metrics and ledger entries.
const (
	StageExtract = "extract"
	StageLocate  = "locate"
	StageResolve = "resolve"
	StageBuild   = "build"
	StagePackage = "package"
	StageDeliver = "deliver"
)

// Outcome describes a finished request.
type Outcome struct {
	RequestID      string
	Kind           OutcomeKind
	Stage          string // failing stage, empty on success
	UserText       string // text sent instead of a document
	Caption        string
	Project        string
	Choice         compiler.Choice
	Pages          int
	CompilerErrors bool
	PDFProduced    bool
	ArchiveBytes   int64
	Passes         []latex.Pass
	Stages         map[string]time.Duration
	Duration       time.Duration
	Err            error
}

// Succeeded reports whether a document was delivered.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Kind == OutcomeSuccess
}
