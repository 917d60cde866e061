package scoring

import (
	"errors"
	"testing"

	"github.com/courtmix/session-engine/models"
)

func intPtr(v int) *int { return &v }

func mustPolicy(t *testing.T, mode models.ScoringMode, target int) Policy {
	t.Helper()
	p, err := ForConfig(models.ScoringConfig{Mode: mode, Target: target})
	if err != nil {
		t.Fatalf("ForConfig(%s, %d): %v", mode, target, err)
	}
	return p
}

func TestForConfigRejectsBadInput(t *testing.T) {
	if _, err := ForConfig(models.ScoringConfig{Mode: models.ScoringFixedPoints, Target: 0}); !errors.Is(err, ErrBadTarget) {
		t.Errorf("expected ErrBadTarget for target 0, got %v", err)
	}
	if _, err := ForConfig(models.ScoringConfig{Mode: "golden_point", Target: 24}); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}
}

func TestFixedPointsValidate(t *testing.T) {
	p := mustPolicy(t, models.ScoringFixedPoints, 24)

	tests := []struct {
		name    string
		team1   *int
		team2   *int
		wantErr error
	}{
		{"valid split", intPtr(14), intPtr(10), nil},
		{"shutout", intPtr(24), intPtr(0), nil},
		{"sum one over", intPtr(14), intPtr(11), ErrScoreSumMismatch},
		{"sum under", intPtr(10), intPtr(10), ErrScoreSumMismatch},
		{"negative", intPtr(-1), intPtr(25), ErrScoreNegative},
		{"above target", intPtr(30), intPtr(-6), ErrScoreExceedsTarget},
		{"missing side", intPtr(14), nil, ErrScoreIncomplete},
		{"both missing", nil, nil, ErrScoreIncomplete},
	}
	for _, tt := range tests {
		err := p.Validate(tt.team1, tt.team2)
		if tt.wantErr == nil && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestFixedPointsAutoFill(t *testing.T) {
	p := mustPolicy(t, models.ScoringFixedPoints, 24)

	fill, ok := p.AutoFill(14)
	if !ok || fill != 10 {
		t.Errorf("AutoFill(14) = %d, %v; want 10, true", fill, ok)
	}

	// Above-target input clamps to zero rather than going negative.
	fill, ok = p.AutoFill(30)
	if !ok || fill != 0 {
		t.Errorf("AutoFill(30) = %d, %v; want 0, true", fill, ok)
	}
}

func TestFirstToValidate(t *testing.T) {
	p := mustPolicy(t, models.ScoringFirstTo, 21)

	tests := []struct {
		name    string
		team1   *int
		team2   *int
		wantErr error
	}{
		{"winner first", intPtr(21), intPtr(19), nil},
		{"winner second", intPtr(19), intPtr(21), nil},
		{"shutout", intPtr(21), intPtr(0), nil},
		{"both at target", intPtr(21), intPtr(21), ErrBothReachedTarget},
		{"nobody at target", intPtr(19), intPtr(18), ErrTargetNotReached},
		{"over target", intPtr(22), intPtr(10), ErrScoreExceedsTarget},
		{"missing side", nil, intPtr(21), ErrScoreIncomplete},
	}
	for _, tt := range tests {
		err := p.Validate(tt.team1, tt.team2)
		if tt.wantErr == nil && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestFirstToHasNoAutoFill(t *testing.T) {
	p := mustPolicy(t, models.ScoringSetGames, 6)
	if _, ok := p.AutoFill(6); ok {
		t.Error("race-to modes must not offer auto-fill")
	}
}

func TestTotalGamesSharesSumSemantics(t *testing.T) {
	p := mustPolicy(t, models.ScoringTotalGames, 8)
	if err := p.Validate(intPtr(5), intPtr(3)); err != nil {
		t.Errorf("5+3=8 should validate, got %v", err)
	}
	if err := p.Validate(intPtr(5), intPtr(4)); !errors.Is(err, ErrScoreSumMismatch) {
		t.Errorf("5+4 != 8 should fail with sum mismatch, got %v", err)
	}
}

func TestIsValidationError(t *testing.T) {
	p := mustPolicy(t, models.ScoringFixedPoints, 24)
	err := p.Validate(intPtr(14), intPtr(11))
	if !IsValidationError(err) {
		t.Errorf("sum mismatch should classify as validation error: %v", err)
	}
	if IsValidationError(errors.New("connection refused")) {
		t.Error("infrastructure errors must not classify as validation errors")
	}
}
