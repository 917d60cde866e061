package pairing

import (
	"context"
	"errors"

	"github.com/courtmix/session-engine/models"
)

var (
	// ErrInsufficientPlayers: a doubles round needs at least four
	// eligible players.
	ErrInsufficientPlayers = errors.New("not enough eligible players to generate a round")
	ErrInvalidCourtCount   = errors.New("session must have at least one court")
)

// Engine computes which players face which opponents and maintains skill
// ratings. The session core consumes it as a black box: GenerateRound
// when advancing, UpdateRatings (best-effort) after every scored match.
type Engine interface {
	GenerateRound(ctx context.Context, session *models.Session, roundNumber int) (*models.Round, error)
	UpdateRatings(session *models.Session, match *models.Match)
}
