package models

type PlayerStatus string

const (
	PlayerStatusActive   PlayerStatus = "active"
	PlayerStatusLate     PlayerStatus = "late"
	PlayerStatusNoShow   PlayerStatus = "no_show"
	PlayerStatusDeparted PlayerStatus = "departed"
)

// Player belongs to exactly one session. Participation counters are
// maintained by the pairing engine after every generated round.
type Player struct {
	ID               int          `json:"id"`
	Name             string       `json:"name"`
	Rating           float64      `json:"rating"`
	PlayCount        int          `json:"play_count"`
	SitCount         int          `json:"sit_count"`
	ConsecutiveSits  int          `json:"consecutive_sits"`
	ConsecutivePlays int          `json:"consecutive_plays"`
	Status           PlayerStatus `json:"status"`
}

// Eligible reports whether the player can be assigned to a match.
func (p *Player) Eligible() bool {
	return p.Status == PlayerStatusActive || p.Status == PlayerStatusLate
}

// Clone returns an independent copy of the player.
func (p *Player) Clone() *Player {
	cp := *p
	return &cp
}

// ClonePlayers deep-copies a player list.
func ClonePlayers(players []*Player) []*Player {
	out := make([]*Player, len(players))
	for i, p := range players {
		out[i] = p.Clone()
	}
	return out
}
