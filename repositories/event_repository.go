package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/courtmix/session-engine/models"
)

type EventRepository interface {
	// Append inserts one audit row. Callers treat failures as
	// best-effort: logged, never surfaced.
	Append(ctx context.Context, event *models.Event) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.Event, error)
}

// postgresEventRepository writes through a SQLExecutor so the audit
// insert can ride inside a caller-owned transaction when needed.
type postgresEventRepository struct {
	db SQLExecutor
}

func NewPostgresEventRepository(db *sql.DB) EventRepository {
	return &postgresEventRepository{db: db}
}

func (r *postgresEventRepository) Append(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO session_events (session_id, type, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, event.SessionID, event.Type, []byte(event.Payload)).
		Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append event for session %s: %w", event.SessionID, err)
	}
	return nil
}

func (r *postgresEventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, session_id, type, payload, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	events := make([]*models.Event, 0)
	for rows.Next() {
		var event models.Event
		if scanErr := rows.Scan(&event.ID, &event.SessionID, &event.Type, &event.Payload, &event.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", scanErr)
		}
		events = append(events, &event)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during event rows iteration: %w", err)
	}
	return events, nil
}
