package scoring

import (
	"errors"
	"fmt"

	"github.com/courtmix/session-engine/models"
)

var (
	ErrUnknownMode = errors.New("unknown scoring mode")
	ErrBadTarget   = errors.New("scoring target must be positive")

	// Validation failures. Never retried, never touch the network.
	ErrScoreIncomplete    = errors.New("both team scores are required")
	ErrScoreNegative      = errors.New("score cannot be negative")
	ErrScoreExceedsTarget = errors.New("score exceeds the target")
	ErrScoreSumMismatch   = errors.New("scores must sum to the target")
	ErrTargetNotReached   = errors.New("one team must reach the target exactly")
	ErrBothReachedTarget  = errors.New("only one team may reach the target")
)

// Policy is the scoring rule for one session, selected once from the
// session's ScoringConfig and used for every validation afterwards.
type Policy interface {
	Mode() models.ScoringMode
	Target() int

	// Validate checks a full candidate pair. A nil side means the score
	// has not been entered yet and fails with ErrScoreIncomplete.
	Validate(team1, team2 *int) error

	// AutoFill derives the missing side from the known one, clamped to
	// zero. The second return is false for modes where both scores must
	// be entered explicitly (first_to, set_games).
	AutoFill(known int) (int, bool)
}

// ForConfig builds the policy for a session's scoring config.
func ForConfig(cfg models.ScoringConfig) (Policy, error) {
	if cfg.Target <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadTarget, cfg.Target)
	}
	switch cfg.Mode {
	case models.ScoringFixedPoints, models.ScoringTotalGames:
		return sumPolicy{mode: cfg.Mode, target: cfg.Target}, nil
	case models.ScoringFirstTo, models.ScoringSetGames:
		return raceToPolicy{mode: cfg.Mode, target: cfg.Target}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// sumPolicy covers fixed and total_games: both sides present, in range,
// and summing exactly to the target.
type sumPolicy struct {
	mode   models.ScoringMode
	target int
}

func (p sumPolicy) Mode() models.ScoringMode { return p.mode }
func (p sumPolicy) Target() int              { return p.target }

func (p sumPolicy) Validate(team1, team2 *int) error {
	if team1 == nil || team2 == nil {
		return ErrScoreIncomplete
	}
	if err := checkRange(*team1, p.target); err != nil {
		return err
	}
	if err := checkRange(*team2, p.target); err != nil {
		return err
	}
	if *team1+*team2 != p.target {
		return fmt.Errorf("%w: each match must total %d", ErrScoreSumMismatch, p.target)
	}
	return nil
}

func (p sumPolicy) AutoFill(known int) (int, bool) {
	rest := p.target - known
	if rest < 0 {
		rest = 0
	}
	return rest, true
}

// raceToPolicy covers first_to and set_games: exactly one side reaches
// the target, the other stays strictly below. No auto-fill.
type raceToPolicy struct {
	mode   models.ScoringMode
	target int
}

func (p raceToPolicy) Mode() models.ScoringMode { return p.mode }
func (p raceToPolicy) Target() int              { return p.target }

func (p raceToPolicy) Validate(team1, team2 *int) error {
	if team1 == nil || team2 == nil {
		return ErrScoreIncomplete
	}
	if err := checkRange(*team1, p.target); err != nil {
		return err
	}
	if err := checkRange(*team2, p.target); err != nil {
		return err
	}
	hi, lo := *team1, *team2
	if lo > hi {
		hi, lo = lo, hi
	}
	if hi != p.target {
		return fmt.Errorf("%w: first to %d", ErrTargetNotReached, p.target)
	}
	if lo == p.target {
		return fmt.Errorf("%w: first to %d", ErrBothReachedTarget, p.target)
	}
	return nil
}

func (p raceToPolicy) AutoFill(int) (int, bool) { return 0, false }

func checkRange(score, target int) error {
	if score < 0 {
		return ErrScoreNegative
	}
	if score > target {
		return fmt.Errorf("%w: %d > %d", ErrScoreExceedsTarget, score, target)
	}
	return nil
}

// IsValidationError reports whether err is a scoring validation failure,
// as opposed to an infrastructure error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrScoreIncomplete) ||
		errors.Is(err, ErrScoreNegative) ||
		errors.Is(err, ErrScoreExceedsTarget) ||
		errors.Is(err, ErrScoreSumMismatch) ||
		errors.Is(err, ErrTargetNotReached) ||
		errors.Is(err, ErrBothReachedTarget)
}
