package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, requestID, eventType string, payload []byte, metadata map[string]string) error

	// GetByRequestID retrieves all events for a specific request, oldest first.
	GetByRequestID(ctx context.Context, requestID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// RecentRequestIDs returns up to limit request IDs, most recently active first.
	RecentRequestIDs(ctx context.Context, limit int) ([]string, error)

	// PruneBefore deletes events older than cutoff and returns how many were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}
