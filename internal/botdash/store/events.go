package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Event levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event is one entry in a bot's lifecycle log.
type Event struct {
	ID        int64     `json:"id"`
	BotID     string    `json:"bot_id"`
	Level     string    `json:"level"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendEvent writes a lifecycle event for botID.
func (s *Store) AppendEvent(ctx context.Context, botID, level, action, message, traceID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_events (bot_id, level, action, message, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, botID, level, action, message, nullable(traceID), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns the newest limit events for botID. limit <= 0 means
// 100.
func (s *Store) ListEvents(ctx context.Context, botID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_id, level, action, message, trace_id, created_at
		FROM bot_events
		WHERE bot_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		var traceID sql.NullString
		if err := rows.Scan(&e.ID, &e.BotID, &e.Level, &e.Action, &e.Message, &traceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.TraceID = traceID.String
		out = append(out, e)
	}
	return out, rows.Err()
}
