// Package eventstore keeps a SQLite ledger of request lifecycle events and
// derives per-request summaries from it.
package eventstore

import (
	"context"
	"time"
)

const (
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// RequestSummary is the read model of one request.
type RequestSummary struct {
	RequestID      string       `json:"request_id"`
	Status         string       `json:"status"` // running|completed|failed
	ChatID         int64        `json:"chat_id,omitempty"`
	FileName       string       `json:"file_name,omitempty"`
	ReceivedAt     time.Time    `json:"received_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
	Outcome        string       `json:"outcome,omitempty"`
	Project        string       `json:"project,omitempty"`
	Engine         string       `json:"engine,omitempty"`
	Bibliography   string       `json:"bibliography,omitempty"`
	Pages          int          `json:"pages,omitempty"`
	CompilerErrors bool         `json:"compiler_errors,omitempty"`
	Passes         []PassRecord `json:"passes,omitempty"`
	ErrorStage     string       `json:"error_stage,omitempty"`
	ErrorCategory  string       `json:"error_category,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	DurationMS     int64        `json:"duration_ms,omitempty"`
}

// Summarize folds the events of one request, oldest first, into a summary.
// Events it cannot decode are skipped.
func Summarize(requestID string, events []Event) *RequestSummary {
	s := &RequestSummary{RequestID: requestID, Status: statusRunning}
	for i, e := range events {
		if i == 0 {
			s.ReceivedAt = e.Timestamp()
		}
		payload, err := Decode(e)
		if err != nil {
			continue
		}
		ts := e.Timestamp()
		switch v := payload.(type) {
		case RequestReceived:
			s.ChatID = v.ChatID
			s.FileName = v.FileName
			s.ReceivedAt = ts
		case RequestCompleted:
			s.Status = statusCompleted
			s.Outcome = "success"
			s.FinishedAt = &ts
			s.Project = v.Project
			s.Engine = v.Engine
			s.Bibliography = v.Bibliography
			s.Pages = v.Pages
			s.CompilerErrors = v.CompilerErrors
			s.Passes = v.Passes
			s.DurationMS = v.DurationMS
		case RequestFailed:
			s.Status = statusFailed
			s.Outcome = v.Outcome
			s.FinishedAt = &ts
			s.ErrorStage = v.Stage
			s.ErrorCategory = v.Category
			s.ErrorMessage = v.Message
			s.DurationMS = v.DurationMS
		}
	}
	return s
}

// GetRequest returns the summary of one request, or nil when the ledger has no events for it.
func GetRequest(ctx context.Context, store Store, requestID string) (*RequestSummary, error) {
	events, err := store.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return Summarize(requestID, events), nil
}

// ListRequests returns summaries of the most recent requests, newest first.
func ListRequests(ctx context.Context, store Store, limit int) ([]*RequestSummary, error) {
	ids, err := store.RecentRequestIDs(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*RequestSummary, 0, len(ids))
	for _, id := range ids {
		s, err := GetRequest(ctx, store, id)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}
