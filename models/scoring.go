package models

// ScoringMode selects the validity rule applied to every match score in
// a session. Session scoped and immutable for the session's lifetime.
type ScoringMode string

const (
	// ScoringFixedPoints: both scores must sum to exactly the target
	// (classic Mexicano, e.g. 24 points per match).
	ScoringFixedPoints ScoringMode = "fixed"
	// ScoringFirstTo: one side must reach exactly the target, the other
	// must stay strictly below it.
	ScoringFirstTo ScoringMode = "first_to"
	// ScoringTotalGames: like fixed, but the unit is games, not points.
	ScoringTotalGames ScoringMode = "total_games"
	// ScoringSetGames: per-game variant for set play, first to the
	// target number of games; matches may carry per-game sub-scores.
	ScoringSetGames ScoringMode = "set_games"
)

// ScoringConfig is the session's scoring rule. Target is mode dependent:
// points per match (fixed), points to win (first_to), total games
// (total_games) or games to win a set (set_games).
type ScoringConfig struct {
	Mode   ScoringMode `json:"mode"`
	Target int         `json:"target"`
}
