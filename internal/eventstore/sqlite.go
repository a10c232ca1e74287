package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-based event store.
// Use ":memory:" for in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, tberrors.StorageError("open", fmt.Errorf("open sqlite database: %w", err))
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, tberrors.StorageError("initialize", fmt.Errorf("initialize schema: %w", err))
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_request_id ON events(request_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_event_type ON events(event_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new event to the store.
func (s *SQLiteStore) Append(ctx context.Context, requestID, eventType string, payload []byte, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return tberrors.StorageError("append", fmt.Errorf("marshal metadata: %w", err))
		}
	}
	if payload == nil {
		payload = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (request_id, event_type, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?)",
		requestID, eventType, s.now().UnixMilli(), payload, metadataJSON,
	)
	if err != nil {
		return tberrors.StorageError("append", fmt.Errorf("insert event: %w", err))
	}

	return nil
}

// GetByRequestID retrieves all events for a specific request.
func (s *SQLiteStore) GetByRequestID(ctx context.Context, requestID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, request_id, event_type, timestamp, payload, metadata FROM events WHERE request_id = ? ORDER BY id",
		requestID,
	)
	if err != nil {
		return nil, tberrors.StorageError("query", fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// GetRange retrieves events within a time range.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, request_id, event_type, timestamp, payload, metadata FROM events WHERE timestamp >= ? AND timestamp <= ? ORDER BY id",
		start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, tberrors.StorageError("query", fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// RecentRequestIDs returns up to limit request IDs ordered by their latest event.
func (s *SQLiteStore) RecentRequestIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT request_id FROM events GROUP BY request_id ORDER BY MAX(id) DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, tberrors.StorageError("query", fmt.Errorf("query request ids: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, tberrors.StorageError("scan", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, tberrors.StorageError("scan", err)
	}
	return ids, nil
}

// PruneBefore deletes events older than cutoff.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, tberrors.StorageError("prune", fmt.Errorf("delete events: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, tberrors.StorageError("prune", err)
	}
	return n, nil
}

func (s *SQLiteStore) scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e BaseEvent
		var timestampMillis int64
		var metadataJSON []byte

		err := rows.Scan(&e.EventID, &e.EventRequestID, &e.EventType, &timestampMillis, &e.EventPayload, &metadataJSON)
		if err != nil {
			return nil, tberrors.StorageError("scan", fmt.Errorf("scan event: %w", err))
		}

		e.EventTimestamp = time.UnixMilli(timestampMillis)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.EventMetadata); err != nil {
				return nil, tberrors.StorageError("scan", fmt.Errorf("unmarshal metadata: %w", err))
			}
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, tberrors.StorageError("scan", fmt.Errorf("iterate rows: %w", err))
	}

	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
