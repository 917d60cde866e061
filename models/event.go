package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventScoreCommitted EventType = "score_committed"
	EventRoundGenerated EventType = "round_generated"
	EventSyncReplayed   EventType = "sync_replayed"
)

// Event is one row of the append-only audit log. Inserts are best-effort
// and never block or fail a commit.
type Event struct {
	ID        int64           `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
