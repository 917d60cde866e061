package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OperationKind string

const (
	OperationGenerateRound OperationKind = "GENERATE_ROUND"
	OperationUpdateScore   OperationKind = "UPDATE_SCORE"
	OperationFinishSession OperationKind = "FINISH_SESSION"
)

// PendingOperation is a durable, offline-queued write. Replay is
// at-least-once, so the server-side apply must stay idempotent per
// (session, round index, match index).
type PendingOperation struct {
	ID        int64           `json:"id"`
	Kind      OperationKind   `json:"kind"`
	SessionID uuid.UUID       `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
}

// UpdateScorePayload is the payload for OperationUpdateScore.
type UpdateScorePayload struct {
	RoundIndex int         `json:"round_index"`
	MatchIndex int         `json:"match_index"`
	Team1Score int         `json:"team1_score"`
	Team2Score int         `json:"team2_score"`
	GameScores []GameScore `json:"game_scores,omitempty"`
}

// FinishSessionPayload is the payload for OperationFinishSession.
type FinishSessionPayload struct {
	Status SessionStatus `json:"status"`
}

// GenerateRoundPayload is the payload for OperationGenerateRound. It
// carries the full generated round so replay does not re-run pairing.
type GenerateRoundPayload struct {
	RoundIndex int    `json:"round_index"`
	Round      *Round `json:"round"`
}
