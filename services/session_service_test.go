package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/courtmix/session-engine/engine"
	"github.com/courtmix/session-engine/models"
	"github.com/courtmix/session-engine/repositories"
)

func scoreMatch(match *models.Match, team1, team2 int) {
	match.Team1Score = &team1
	match.Team2Score = &team2
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	base := CreateSessionInput{
		Name:    "thursday night",
		Courts:  1,
		Scoring: models.ScoringConfig{Mode: models.ScoringFixedPoints, Target: 24},
		Players: []string{"A", "B", "C", "D"},
	}

	noName := base
	noName.Name = ""
	if _, err := env.sessions.Create(ctx, noName); !errors.Is(err, ErrSessionInvalidName) {
		t.Errorf("got %v, want ErrSessionInvalidName", err)
	}

	noCourts := base
	noCourts.Courts = 0
	if _, err := env.sessions.Create(ctx, noCourts); !errors.Is(err, ErrSessionInvalidCourts) {
		t.Errorf("got %v, want ErrSessionInvalidCourts", err)
	}

	fewPlayers := base
	fewPlayers.Players = []string{"A", "B", "C"}
	if _, err := env.sessions.Create(ctx, fewPlayers); !errors.Is(err, ErrSessionInvalidPlayers) {
		t.Errorf("got %v, want ErrSessionInvalidPlayers", err)
	}
}

func TestCreateSessionGeneratesOpeningRound(t *testing.T) {
	env := newTestEnv(t, true)

	session, err := env.sessions.Create(context.Background(), CreateSessionInput{
		Name:    "thursday night",
		Courts:  2,
		Scoring: models.ScoringConfig{Mode: models.ScoringFixedPoints, Target: 24},
		Players: []string{"A", "B", "C", "D", "E", "F", "G", "H"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(session.Rounds) != 1 {
		t.Fatalf("new session has %d rounds, want 1", len(session.Rounds))
	}
	if len(session.Rounds[0].Matches) != 2 {
		t.Errorf("opening round has %d matches, want 2", len(session.Rounds[0].Matches))
	}
	if env.sessionRepo.createCalls != 1 {
		t.Error("session was not persisted")
	}
	if len(env.roundRepo.appendedRounds()) != 1 {
		t.Error("opening round was not persisted")
	}
	if session.Format != models.FormatSequential {
		t.Errorf("default format = %s, want sequential", session.Format)
	}
}

func TestAdvanceBlockedWhenRoundIncomplete(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 2, 8)

	// Only the first of two matches has a result.
	scoreMatch(&session.Rounds[0].Matches[0], 14, 10)

	_, err := env.sessions.Advance(context.Background(), session.ID)
	var incomplete *IncompleteRoundError
	if !errors.As(err, &incomplete) {
		t.Fatalf("got %v, want IncompleteRoundError", err)
	}
	if len(incomplete.Missing) != 1 || incomplete.Missing[0] != 1 {
		t.Errorf("missing = %v, want [1]", incomplete.Missing)
	}
	if !strings.Contains(incomplete.Error(), "24") {
		t.Errorf("message %q must name the numeric target", incomplete.Error())
	}
	if len(session.Rounds) != 1 {
		t.Error("no round may be generated while incomplete")
	}
}

func TestAdvanceGeneratesNextRound(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 2, 8)

	scoreMatch(&session.Rounds[0].Matches[0], 14, 10)
	scoreMatch(&session.Rounds[0].Matches[1], 20, 4)

	round, err := env.sessions.Advance(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if round.Number != 2 {
		t.Errorf("round number = %d, want 2", round.Number)
	}
	if len(session.Rounds) != 2 {
		t.Fatalf("session has %d rounds, want 2", len(session.Rounds))
	}

	appended := env.roundRepo.appendedRounds()
	if len(appended) != 1 || appended[0].RoundIndex != 1 {
		t.Errorf("appended rounds %+v, want one at index 1", appended)
	}

	rt := env.runtime(t, session.ID)
	if rt.state.Cursor() != 1 {
		t.Errorf("cursor = %d, want the new round", rt.state.Cursor())
	}
}

func TestAdvanceFlushesCachedPairs(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 2, 8)
	rt := env.runtime(t, session.ID)

	// Valid pairs typed but never committed: blur never fired.
	rt.state.SetDraft(engine.MatchKey{Round: 0, Match: 0}, 1, "14")
	rt.state.SetDraft(engine.MatchKey{Round: 0, Match: 0}, 2, "10")
	rt.state.SetDraft(engine.MatchKey{Round: 0, Match: 1}, 1, "20")
	rt.state.SetDraft(engine.MatchKey{Round: 0, Match: 1}, 2, "4")

	if _, err := env.sessions.Advance(context.Background(), session.ID); err != nil {
		t.Fatal(err)
	}

	writes := env.roundRepo.scoreWrites()
	if len(writes) != 2 {
		t.Fatalf("flush produced %d writes, want 2", len(writes))
	}
	if len(session.Rounds) != 2 {
		t.Error("round must be generated after a clean flush")
	}
}

func TestAdvanceFlushFailureBlocksGeneration(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 1, 4)
	rt := env.runtime(t, session.ID)

	rt.state.SetDraft(engine.MatchKey{Round: 0, Match: 0}, 1, "14")
	rt.state.SetDraft(engine.MatchKey{Round: 0, Match: 0}, 2, "10")

	env.roundRepo.mu.Lock()
	env.roundRepo.failScoreWrites = -1
	env.roundRepo.scoreErr = repositories.ErrScoreLockBusy
	env.roundRepo.mu.Unlock()

	_, err := env.sessions.Advance(context.Background(), session.ID)
	if !errors.Is(err, ErrFlushFailed) {
		t.Fatalf("got %v, want ErrFlushFailed", err)
	}
	if len(session.Rounds) != 1 {
		t.Error("partial advancement: round generated despite failed flush")
	}
}

func TestAdvanceOfflineQueuesGeneratedRound(t *testing.T) {
	env := newTestEnv(t, false)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 1, 4)

	scoreMatch(&session.Rounds[0].Matches[0], 14, 10)

	round, err := env.sessions.Advance(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if round == nil || len(session.Rounds) != 2 {
		t.Fatal("round must be generated locally while offline")
	}

	if len(env.roundRepo.appendedRounds()) != 0 {
		t.Error("offline advance must not hit the store")
	}
	if env.queue.Len() != 1 {
		t.Fatalf("queue holds %d operations, want 1", env.queue.Len())
	}
	if env.queue.Pending()[0].Kind != models.OperationGenerateRound {
		t.Error("queued operation should be a round generation")
	}
}

func TestAdvanceRefusesCompletedSession(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 1, 4)
	session.Status = models.SessionStatusCompleted

	if _, err := env.sessions.Advance(context.Background(), session.ID); !errors.Is(err, ErrSessionCompleted) {
		t.Errorf("got %v, want ErrSessionCompleted", err)
	}
}

func TestNavigatePastEndSignalsAdvance(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 1, 4)

	result, err := env.sessions.Navigate(context.Background(), session.ID, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.AtEnd {
		t.Error("paging past the only round must report AtEnd")
	}
	if result.RoundIndex != 0 {
		t.Errorf("cursor moved to %d, must stay at 0", result.RoundIndex)
	}
}

func TestNavigatePerCourtInParallelFormat(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 2, 8)
	session.Format = models.FormatParallel
	session.Rounds = append(session.Rounds, &models.Round{Number: 2})
	rt := env.runtime(t, session.ID)
	rt.state.SetCursor(1, 1)

	court := 1
	result, err := env.sessions.Navigate(context.Background(), session.ID, -1, &court)
	if err != nil {
		t.Fatal(err)
	}
	if result.RoundIndex != 0 {
		t.Errorf("court 1 cursor = %d, want 0", result.RoundIndex)
	}
	// The other court keeps viewing the current round.
	if got := rt.state.CourtCursor(2); got != 1 {
		t.Errorf("court 2 cursor = %d, want 1", got)
	}
}

func TestStateReportsRoundCompleteness(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 2, 8)

	state, err := env.sessions.State(context.Background(), session.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if state.RoundComplete {
		t.Error("fresh round cannot be complete")
	}
	if len(state.Matches) != 2 {
		t.Fatalf("state has %d matches, want 2", len(state.Matches))
	}

	scoreMatch(&session.Rounds[0].Matches[0], 14, 10)
	scoreMatch(&session.Rounds[0].Matches[1], 12, 12)

	state, err = env.sessions.State(context.Background(), session.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !state.RoundComplete {
		t.Error("round with all valid scores must report complete")
	}
	if state.Matches[0].Team1Status != "saved" {
		t.Errorf("team1 status = %s, want saved", state.Matches[0].Team1Status)
	}
}

func TestStandingsAggregateAndSort(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 1, 4)

	match := &session.Rounds[0].Matches[0]
	scoreMatch(match, 20, 4)

	standings, err := env.sessions.Standings(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(standings) != 4 {
		t.Fatalf("got %d standings rows, want 4", len(standings))
	}
	if standings[0].PointsFor != 20 {
		t.Errorf("leader has %d points, want 20", standings[0].PointsFor)
	}
	if standings[0].Wins != 1 || standings[0].Played != 1 {
		t.Errorf("leader W/P = %d/%d, want 1/1", standings[0].Wins, standings[0].Played)
	}
	if !match.HasPlayer(standings[0].PlayerID) {
		t.Error("leader did not play the scored match")
	}
	if standings[3].PointsFor != 4 {
		t.Errorf("last place has %d points, want 4", standings[3].PointsFor)
	}
}

func TestFinishCompletesAndArchives(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 1, 4)

	finished, err := env.sessions.Finish(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if finished.Status != models.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", finished.Status)
	}
	if env.sessionRepo.updateStatusCalls != 1 {
		t.Error("completion was not persisted")
	}

	env.archiver.mu.Lock()
	uploads := len(env.archiver.uploads)
	env.archiver.mu.Unlock()
	if uploads != 1 {
		t.Errorf("got %d archive uploads, want 1", uploads)
	}
}

func TestGetReturnsDetachedSnapshot(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 1, 4)

	snapshot, err := env.sessions.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}

	// A commit landing after the read must not show up in the snapshot
	// the caller is still marshalling.
	if _, err := env.scores.SetDraft(context.Background(), session.ID, 0, 0, 1, "14"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.scores.SetDraft(context.Background(), session.ID, 0, 0, 2, "10"); err != nil {
		t.Fatal(err)
	}
	if snapshot.Rounds[0].Matches[0].Team1Score != nil {
		t.Error("snapshot must be detached from the live model")
	}

	// And writes to the snapshot must not leak back.
	snapshot.Players[0].Rating = -1
	if session.Players[0].Rating == -1 {
		t.Error("snapshot shares player state with the live model")
	}
}

func TestFinishOfflineQueuesCompletion(t *testing.T) {
	env := newTestEnv(t, false)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 1, 4)

	finished, err := env.sessions.Finish(context.Background(), session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if finished.Status != models.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", finished.Status)
	}
	if env.sessionRepo.updateStatusCalls != 0 {
		t.Error("offline finish must not hit the store")
	}

	// The completion must survive a restart before reconnect.
	if env.queue.Len() != 1 {
		t.Fatalf("queue holds %d operations, want 1", env.queue.Len())
	}
	if got := env.queue.Pending()[0].Kind; got != models.OperationFinishSession {
		t.Errorf("queued op kind = %s, want %s", got, models.OperationFinishSession)
	}
}

func TestUpdatePlayerStatus(t *testing.T) {
	env := newTestEnv(t, true)
	session := env.startSession(t, models.ScoringFixedPoints, 24, 1, 5)

	if err := env.sessions.UpdatePlayerStatus(context.Background(), session.ID, 5, models.PlayerStatusDeparted); err != nil {
		t.Fatal(err)
	}
	if session.Player(5).Status != models.PlayerStatusDeparted {
		t.Error("status not applied")
	}
	if err := env.sessions.UpdatePlayerStatus(context.Background(), session.ID, 99, models.PlayerStatusLate); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("got %v, want ErrPlayerNotFound", err)
	}
}
