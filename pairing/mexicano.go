package pairing

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/courtmix/session-engine/models"
)

const playersPerCourt = 4

// Mexicano is the default pairing engine: rating-sorted court grouping
// with 1&4 vs 2&3 partnering inside each court, sit-outs rotated by
// participation counters, and an Elo-style team rating update.
type Mexicano struct {
	// KFactor scales rating movement per match. 32 is the usual default.
	KFactor float64
}

func NewMexicano() *Mexicano {
	return &Mexicano{KFactor: 32}
}

func (m *Mexicano) GenerateRound(ctx context.Context, session *models.Session, roundNumber int) (*models.Round, error) {
	if session.Courts < 1 {
		return nil, ErrInvalidCourtCount
	}
	eligible := session.EligiblePlayers()
	if len(eligible) < playersPerCourt {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientPlayers, len(eligible), playersPerCourt)
	}

	courts := len(eligible) / playersPerCourt
	if courts > session.Courts {
		courts = session.Courts
	}
	playing := courts * playersPerCourt

	// Players who sat the longest play first; ties break toward fewer
	// total plays, then higher rating so top courts stay competitive.
	ranked := make([]*models.Player, len(eligible))
	copy(ranked, eligible)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.ConsecutiveSits != b.ConsecutiveSits {
			return a.ConsecutiveSits > b.ConsecutiveSits
		}
		if a.PlayCount != b.PlayCount {
			return a.PlayCount < b.PlayCount
		}
		return a.Rating > b.Rating
	})

	active := ranked[:playing]
	sitting := ranked[playing:]

	// Courts are filled best to worst by rating.
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Rating > active[j].Rating
	})

	round := &models.Round{Number: roundNumber}
	for c := 0; c < courts; c++ {
		group := active[c*playersPerCourt : (c+1)*playersPerCourt]
		round.Matches = append(round.Matches, models.Match{
			Court: c + 1,
			Team1: [2]int{group[0].ID, group[3].ID},
			Team2: [2]int{group[1].ID, group[2].ID},
		})
		round.Assignments = append(round.Assignments, models.CourtAssignment{
			Court:         c + 1,
			PlayerIDs:     []int{group[0].ID, group[1].ID, group[2].ID, group[3].ID},
			AverageRating: groupAverage(group),
		})
	}
	for _, p := range sitting {
		round.SittingOut = append(round.SittingOut, p.ID)
	}

	applyParticipation(session, round)
	return round, nil
}

// UpdateRatings applies an Elo-style update per player against the
// opposing team's average, using the score share as the actual result.
// Called best-effort after a score commit; a missing score is a no-op.
func (m *Mexicano) UpdateRatings(session *models.Session, match *models.Match) {
	if !match.Scored() {
		return
	}
	total := *match.Team1Score + *match.Team2Score
	if total <= 0 {
		return
	}
	share1 := float64(*match.Team1Score) / float64(total)

	t1 := []*models.Player{session.Player(match.Team1[0]), session.Player(match.Team1[1])}
	t2 := []*models.Player{session.Player(match.Team2[0]), session.Player(match.Team2[1])}
	for _, p := range append(t1, t2...) {
		if p == nil {
			return
		}
	}

	avg1 := (t1[0].Rating + t1[1].Rating) / 2
	avg2 := (t2[0].Rating + t2[1].Rating) / 2

	k := m.KFactor
	if k == 0 {
		k = 32
	}
	for _, p := range t1 {
		expected := 1 / (1 + math.Pow(10, (avg2-p.Rating)/400))
		p.Rating += math.Round(k * (share1 - expected))
	}
	for _, p := range t2 {
		expected := 1 / (1 + math.Pow(10, (avg1-p.Rating)/400))
		p.Rating += math.Round(k * ((1 - share1) - expected))
	}
}

func applyParticipation(session *models.Session, round *models.Round) {
	played := make(map[int]bool)
	for _, match := range round.Matches {
		for _, id := range []int{match.Team1[0], match.Team1[1], match.Team2[0], match.Team2[1]} {
			played[id] = true
		}
	}
	for _, p := range session.Players {
		if played[p.ID] {
			p.PlayCount++
			p.ConsecutivePlays++
			p.ConsecutiveSits = 0
		} else if p.Eligible() {
			p.SitCount++
			p.ConsecutiveSits++
			p.ConsecutivePlays = 0
		}
	}
}

func groupAverage(players []*models.Player) float64 {
	var sum float64
	for _, p := range players {
		sum += p.Rating
	}
	return sum / float64(len(players))
}
