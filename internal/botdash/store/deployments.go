package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Deployment outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Deployment is one deploy attempt.
type Deployment struct {
	ID          string    `json:"id"`
	BotID       string    `json:"bot_id"`
	TriggeredBy string    `json:"triggered_by"`
	Outcome     string    `json:"outcome"`
	Message     string    `json:"message"`
	InstanceID  string    `json:"instance_id,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// AppendDeployment records d, assigning its ID and timestamp.
func (s *Store) AppendDeployment(ctx context.Context, d *Deployment) error {
	if d.Outcome != OutcomeSuccess && d.Outcome != OutcomeFailed {
		return fmt.Errorf("append deployment: unknown outcome %q", d.Outcome)
	}
	d.ID = uuid.NewString()
	d.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_deployments (id, bot_id, triggered_by, outcome, message, instance_id, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.BotID, d.TriggeredBy, d.Outcome, d.Message, nullable(d.InstanceID), nullable(d.TraceID), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("append deployment: %w", err)
	}
	return nil
}

// ListDeployments returns the newest limit attempts for botID. limit <= 0
// means 50.
func (s *Store) ListDeployments(ctx context.Context, botID string, limit int) ([]*Deployment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_id, triggered_by, outcome, message, instance_id, trace_id, created_at
		FROM bot_deployments
		WHERE bot_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []*Deployment
	for rows.Next() {
		d := &Deployment{}
		var instanceID, traceID sql.NullString
		if err := rows.Scan(&d.ID, &d.BotID, &d.TriggeredBy, &d.Outcome, &d.Message,
			&instanceID, &traceID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		d.InstanceID = instanceID.String
		d.TraceID = traceID.String
		out = append(out, d)
	}
	return out, rows.Err()
}
