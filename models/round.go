package models

// GameScore is a per-game sub-score for set based scoring modes.
type GameScore struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

// Match is created by the pairing engine when a round is generated.
// Scores are mutated only through the score commit pipeline.
type Match struct {
	Court      int         `json:"court"`
	Team1      [2]int      `json:"team1"` // player IDs
	Team2      [2]int      `json:"team2"`
	Team1Score *int        `json:"team1_score,omitempty"`
	Team2Score *int        `json:"team2_score,omitempty"`
	GameScores []GameScore `json:"game_scores,omitempty"`
}

// Scored reports whether both sides of the match have a committed score.
func (m *Match) Scored() bool {
	return m.Team1Score != nil && m.Team2Score != nil
}

// HasPlayer reports whether the given player takes part in the match.
func (m *Match) HasPlayer(playerID int) bool {
	return m.Team1[0] == playerID || m.Team1[1] == playerID ||
		m.Team2[0] == playerID || m.Team2[1] == playerID
}

// Clone returns an independent copy of the match.
func (m *Match) Clone() Match {
	cp := *m
	if m.Team1Score != nil {
		v := *m.Team1Score
		cp.Team1Score = &v
	}
	if m.Team2Score != nil {
		v := *m.Team2Score
		cp.Team2Score = &v
	}
	if m.GameScores != nil {
		cp.GameScores = append([]GameScore(nil), m.GameScores...)
	}
	return cp
}

// CourtAssignment lets each court browse its own round independently in
// parallel mode while matches are still generated globally.
type CourtAssignment struct {
	Court         int     `json:"court"`
	PlayerIDs     []int   `json:"player_ids"`
	AverageRating float64 `json:"average_rating"`
}

// Round is append-only: once created it is never deleted, only its
// matches' scores are updated.
type Round struct {
	Number      int               `json:"number"` // 1-based sequence
	Matches     []Match           `json:"matches"`
	SittingOut  []int             `json:"sitting_out"` // player IDs
	Assignments []CourtAssignment `json:"assignments,omitempty"`
}

// Clone returns an independent deep copy of the round.
func (r *Round) Clone() *Round {
	cp := &Round{Number: r.Number}
	cp.Matches = make([]Match, len(r.Matches))
	for i := range r.Matches {
		cp.Matches[i] = r.Matches[i].Clone()
	}
	cp.SittingOut = append([]int(nil), r.SittingOut...)
	if r.Assignments != nil {
		cp.Assignments = make([]CourtAssignment, len(r.Assignments))
		for i, a := range r.Assignments {
			a.PlayerIDs = append([]int(nil), a.PlayerIDs...)
			cp.Assignments[i] = a
		}
	}
	return cp
}
