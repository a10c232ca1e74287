package eventstore

import (
	"encoding/json"
	"time"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
)

// Event type names, also used as NATS subject suffixes.
const (
	TypeRequestReceived  = "request.received"
	TypeRequestCompleted = "request.completed"
	TypeRequestFailed    = "request.failed"
)

// RequestReceived is recorded when an archive has been downloaded.
type RequestReceived struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id,omitempty"`
	FileName string `json:"file_name"`
	Bytes    int    `json:"bytes"`
}

// PassRecord mirrors one compiler invocation.
type PassRecord struct {
	Program  string `json:"program"`
	ExitCode int    `json:"exit_code"`
	Millis   int64  `json:"duration_ms"`
}

// RequestCompleted is recorded when a result archive was produced and sent.
type RequestCompleted struct {
	Project        string       `json:"project"`
	Engine         string       `json:"engine"`
	Bibliography   string       `json:"bibliography"`
	Pages          int          `json:"pages"`
	CompilerErrors bool         `json:"compiler_errors"`
	ArchiveBytes   int64        `json:"archive_bytes"`
	Passes         []PassRecord `json:"passes"`
	DurationMS     int64        `json:"duration_ms"`
}

// RequestFailed is recorded when a stage aborted the request.
type RequestFailed struct {
	Outcome    string `json:"outcome"`
	Stage      string `json:"stage"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	DurationMS int64  `json:"duration_ms"`
}

// Typed couples a lifecycle payload with its type name.
type Typed interface {
	EventType() string
}

func (RequestReceived) EventType() string  { return TypeRequestReceived }
func (RequestCompleted) EventType() string { return TypeRequestCompleted }
func (RequestFailed) EventType() string    { return TypeRequestFailed }

// NewEvent encodes a typed payload into a BaseEvent for requestID.
func NewEvent(requestID string, payload Typed) (*BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, tberrors.StorageError("encode", err).
			WithContext("request_id", requestID).
			WithContext("event_type", payload.EventType())
	}
	return &BaseEvent{
		EventRequestID: requestID,
		EventType:      payload.EventType(),
		EventTimestamp: time.Now(),
		EventPayload:   data,
	}, nil
}

// Decode unmarshals an event payload into the matching typed struct.
func Decode(e Event) (Typed, error) {
	var (
		out Typed
		err error
	)
	switch e.Type() {
	case TypeRequestReceived:
		var v RequestReceived
		err = json.Unmarshal(e.Payload(), &v)
		out = v
	case TypeRequestCompleted:
		var v RequestCompleted
		err = json.Unmarshal(e.Payload(), &v)
		out = v
	case TypeRequestFailed:
		var v RequestFailed
		err = json.Unmarshal(e.Payload(), &v)
		out = v
	default:
		return nil, tberrors.StorageError("decode", nil).WithContext("event_type", e.Type())
	}
	if err != nil {
		return nil, tberrors.StorageError("decode", err).WithContext("event_type", e.Type())
	}
	return out, nil
}
