package services

import (
	"errors"
	"fmt"

	"github.com/courtmix/session-engine/models"
)

// Shared service-level errors, mapped to HTTP statuses in handlers.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionCompleted = errors.New("session is already completed")
	ErrRoundNotFound    = errors.New("round not found")
	ErrMatchNotFound    = errors.New("match not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrInvalidTeam      = errors.New("team must be 1 or 2")

	// ErrNoPendingPair: a commit was requested for a match with nothing
	// to commit (no drafts, no confirmed pair).
	ErrNoPendingPair = errors.New("no score pair entered for this match")

	// ErrLockContention: the locked server write kept failing on lock
	// contention for the whole retry budget.
	ErrLockContention = errors.New("another user is editing this match, please retry")

	// ErrSaveFailed: a save failure while the device is believed online.
	// It does not flip the online signal; that belongs to the network
	// status provider.
	ErrSaveFailed = errors.New("failed to save score")

	// ErrFlushFailed: the advancement guard could not settle all pending
	// commits; no round was generated.
	ErrFlushFailed = errors.New("failed to save scores, try again")

	ErrSessionInvalidName    = errors.New("session name is required")
	ErrSessionInvalidCourts  = errors.New("session must have at least one court")
	ErrSessionInvalidPlayers = errors.New("session needs at least four players")
)

// IncompleteRoundError blocks round advancement and names the exact
// numeric target the active scoring mode requires.
type IncompleteRoundError struct {
	Mode    models.ScoringMode
	Target  int
	Missing []int // match indexes with no valid pair
}

func (e *IncompleteRoundError) Error() string {
	switch e.Mode {
	case models.ScoringFirstTo:
		return fmt.Sprintf("round incomplete: one team must reach %d points in every match", e.Target)
	case models.ScoringSetGames:
		return fmt.Sprintf("round incomplete: one team must reach %d games in every match", e.Target)
	case models.ScoringTotalGames:
		return fmt.Sprintf("round incomplete: each match must total %d games", e.Target)
	default:
		return fmt.Sprintf("round incomplete: each match must total %d points", e.Target)
	}
}
