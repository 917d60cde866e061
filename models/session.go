package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionFormat string

const (
	// FormatSequential: all courts share one round cursor.
	FormatSequential SessionFormat = "sequential"
	// FormatParallel: each court may display a different round
	// independently (court-paced play).
	FormatParallel SessionFormat = "parallel"
)

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// Session is a single Mexicano/Americano evening: a fixed player pool, a
// scoring rule and an append-only list of generated rounds.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Format    SessionFormat `json:"format"`
	Courts    int           `json:"courts"`
	Scoring   ScoringConfig `json:"scoring"`
	Status    SessionStatus `json:"status"`
	Players   []*Player     `json:"players"`
	Rounds    []*Round      `json:"rounds"`
	CreatedAt time.Time     `json:"created_at"`
}

// Clone returns an independent deep copy, safe to read or marshal
// without holding the lock that guards the live session.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Players = ClonePlayers(s.Players)
	cp.Rounds = make([]*Round, len(s.Rounds))
	for i, r := range s.Rounds {
		cp.Rounds[i] = r.Clone()
	}
	return &cp
}

// Player returns the session player with the given ID, or nil.
func (s *Session) Player(id int) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// EligiblePlayers returns the players currently available for pairing.
func (s *Session) EligiblePlayers() []*Player {
	out := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		if p.Eligible() {
			out = append(out, p)
		}
	}
	return out
}
