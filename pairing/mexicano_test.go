package pairing

import (
	"context"
	"errors"
	"testing"

	"github.com/courtmix/session-engine/models"
)

func testSession(courts int, ratings ...float64) *models.Session {
	s := &models.Session{Courts: courts}
	for i, r := range ratings {
		s.Players = append(s.Players, &models.Player{
			ID:     i + 1,
			Name:   string(rune('A' + i)),
			Rating: r,
			Status: models.PlayerStatusActive,
		})
	}
	return s
}

func TestGenerateRoundRequiresFourPlayers(t *testing.T) {
	m := NewMexicano()
	s := testSession(1, 1000, 1000, 1000)

	if _, err := m.GenerateRound(context.Background(), s, 1); !errors.Is(err, ErrInsufficientPlayers) {
		t.Errorf("got %v, want ErrInsufficientPlayers", err)
	}
}

func TestGenerateRoundPairsOneAndFourVsTwoAndThree(t *testing.T) {
	m := NewMexicano()
	s := testSession(1, 1200, 1100, 1000, 900)

	round, err := m.GenerateRound(context.Background(), s, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(round.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(round.Matches))
	}

	match := round.Matches[0]
	if match.Team1 != [2]int{1, 4} {
		t.Errorf("team 1 = %v, want best and worst [1 4]", match.Team1)
	}
	if match.Team2 != [2]int{2, 3} {
		t.Errorf("team 2 = %v, want middle pair [2 3]", match.Team2)
	}
}

func TestGenerateRoundFillsCourtsBestToWorst(t *testing.T) {
	m := NewMexicano()
	s := testSession(2, 1300, 1250, 1200, 1150, 1100, 1050, 1000, 950)

	round, err := m.GenerateRound(context.Background(), s, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(round.Matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(round.Matches))
	}

	if round.Assignments[0].AverageRating <= round.Assignments[1].AverageRating {
		t.Errorf("court 1 average %.0f should beat court 2 average %.0f",
			round.Assignments[0].AverageRating, round.Assignments[1].AverageRating)
	}
}

func TestGenerateRoundRotatesSitOuts(t *testing.T) {
	m := NewMexicano()
	// Five players, one court: one sits per round.
	s := testSession(1, 1200, 1100, 1000, 900, 800)

	first, err := m.GenerateRound(context.Background(), s, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.SittingOut) != 1 {
		t.Fatalf("round 1 has %d sit-outs, want 1", len(first.SittingOut))
	}
	satFirst := first.SittingOut[0]

	second, err := m.GenerateRound(context.Background(), s, 2)
	if err != nil {
		t.Fatal(err)
	}
	if second.SittingOut[0] == satFirst {
		t.Errorf("player %d sat out twice in a row", satFirst)
	}
}

func TestGenerateRoundSkipsIneligiblePlayers(t *testing.T) {
	m := NewMexicano()
	s := testSession(2, 1200, 1100, 1000, 900, 800)
	s.Players[4].Status = models.PlayerStatusDeparted

	round, err := m.GenerateRound(context.Background(), s, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range round.SittingOut {
		if id == 5 {
			t.Error("departed players are not sit-outs, they are gone")
		}
	}
	for _, match := range round.Matches {
		if match.HasPlayer(5) {
			t.Error("departed player was scheduled")
		}
	}
}

func TestUpdateRatingsMovesWinnersUp(t *testing.T) {
	m := NewMexicano()
	s := testSession(1, 1000, 1000, 1000, 1000)

	score1, score2 := 20, 4
	match := &models.Match{
		Team1:      [2]int{1, 4},
		Team2:      [2]int{2, 3},
		Team1Score: &score1,
		Team2Score: &score2,
	}
	m.UpdateRatings(s, match)

	if s.Players[0].Rating <= 1000 {
		t.Errorf("winner rating %f should have risen", s.Players[0].Rating)
	}
	if s.Players[1].Rating >= 1000 {
		t.Errorf("loser rating %f should have fallen", s.Players[1].Rating)
	}
}

func TestUpdateRatingsIgnoresUnscoredMatch(t *testing.T) {
	m := NewMexicano()
	s := testSession(1, 1000, 1000, 1000, 1000)

	match := &models.Match{Team1: [2]int{1, 4}, Team2: [2]int{2, 3}}
	m.UpdateRatings(s, match)

	for _, p := range s.Players {
		if p.Rating != 1000 {
			t.Fatalf("rating moved without a score: %f", p.Rating)
		}
	}
}
