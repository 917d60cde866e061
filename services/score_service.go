package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/courtmix/session-engine/engine"
	"github.com/courtmix/session-engine/live"
	"github.com/courtmix/session-engine/models"
	"github.com/courtmix/session-engine/netstatus"
	"github.com/courtmix/session-engine/offline"
	"github.com/courtmix/session-engine/pairing"
	"github.com/courtmix/session-engine/repositories"
	"github.com/courtmix/session-engine/retry"
	"github.com/courtmix/session-engine/scoring"
)

// DraftView is what the UI needs after a keystroke: validity of both
// fields, an auto-fill suggestion for the untouched side, and the commit
// outcome when the edit completed a valid pair.
type DraftView struct {
	Team1Status scoring.EntryStatus `json:"team1_status"`
	Team2Status scoring.EntryStatus `json:"team2_status"`
	AutoFill    *int                `json:"auto_fill,omitempty"`
	Committed   bool                `json:"committed"`
	Commit      *CommitResult       `json:"commit,omitempty"`
}

// CommitResult reports a settled commit attempt.
type CommitResult struct {
	Team1  int  `json:"team1_score"`
	Team2  int  `json:"team2_score"`
	Queued bool `json:"queued"` // true when saved to the offline queue
}

type ScoreService interface {
	// SetDraft records field text. Following the canonical commit-timing
	// rule, the pair is committed as soon as both sides are valid.
	SetDraft(ctx context.Context, sessionID uuid.UUID, roundIndex, matchIndex, team int, text string) (*DraftView, error)
	// Commit commits the locally edited pair for one match (blur
	// trigger). Fails with ErrNoPendingPair when nothing is cached.
	Commit(ctx context.Context, sessionID uuid.UUID, roundIndex, matchIndex int) (*CommitResult, error)
}

type scoreService struct {
	runtimes    *Runtimes
	roundRepo   repositories.RoundRepository
	sessionRepo repositories.SessionRepository
	eventRepo   repositories.EventRepository
	queue       *offline.Queue
	net         netstatus.Provider
	pairing     pairing.Engine
	hub         *live.Hub
	lockRetry   retry.Policy
	logger      *slog.Logger
}

func NewScoreService(
	runtimes *Runtimes,
	roundRepo repositories.RoundRepository,
	sessionRepo repositories.SessionRepository,
	eventRepo repositories.EventRepository,
	queue *offline.Queue,
	net netstatus.Provider,
	pairingEngine pairing.Engine,
	hub *live.Hub,
	logger *slog.Logger,
) ScoreService {
	return &scoreService{
		runtimes:    runtimes,
		roundRepo:   roundRepo,
		sessionRepo: sessionRepo,
		eventRepo:   eventRepo,
		queue:       queue,
		net:         net,
		pairing:     pairingEngine,
		hub:         hub,
		lockRetry: retry.New(4, 100*time.Millisecond, 2*time.Second, func(err error) bool {
			return errors.Is(err, repositories.ErrScoreLockBusy)
		}),
		logger: logger,
	}
}

func (s *scoreService) SetDraft(ctx context.Context, sessionID uuid.UUID, roundIndex, matchIndex, team int, text string) (*DraftView, error) {
	if team != 1 && team != 2 {
		return nil, ErrInvalidTeam
	}
	rt, err := s.runtimes.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	round := rt.round(roundIndex)
	rt.mu.Unlock()
	if round == nil {
		return nil, ErrRoundNotFound
	}
	if matchIndex < 0 || matchIndex >= len(round.Matches) {
		return nil, ErrMatchNotFound
	}

	key := engine.MatchKey{Round: roundIndex, Match: matchIndex}
	rt.state.SetDraft(key, team, text)

	view := s.draftView(rt, key, roundIndex, matchIndex, team)

	// Commit as soon as both sides hold a valid pair.
	if a, b, ok := s.pendingPair(rt, key, roundIndex, matchIndex); ok {
		if rt.policy.Validate(&a, &b) == nil {
			result, commitErr := s.commitPair(ctx, rt, sessionID, key, a, b, nil)
			if commitErr != nil {
				return nil, commitErr
			}
			view.Committed = true
			view.Commit = result
			view.Team1Status = scoring.EntrySaved
			view.Team2Status = scoring.EntrySaved
		}
	}
	return view, nil
}

func (s *scoreService) Commit(ctx context.Context, sessionID uuid.UUID, roundIndex, matchIndex int) (*CommitResult, error) {
	rt, err := s.runtimes.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	round := rt.round(roundIndex)
	rt.mu.Unlock()
	if round == nil {
		return nil, ErrRoundNotFound
	}
	if matchIndex < 0 || matchIndex >= len(round.Matches) {
		return nil, ErrMatchNotFound
	}

	key := engine.MatchKey{Round: roundIndex, Match: matchIndex}
	a, b, ok := s.pendingPair(rt, key, roundIndex, matchIndex)
	if !ok {
		return nil, ErrNoPendingPair
	}
	return s.commitPair(ctx, rt, sessionID, key, a, b, nil)
}

// pendingPair resolves the candidate pair for a commit: local drafts
// first, then the confirmed pair, then the last persisted score. ok is
// false when neither side has any local input.
func (s *scoreService) pendingPair(rt *sessionRuntime, key engine.MatchKey, roundIndex, matchIndex int) (int, int, bool) {
	entry := rt.state.Read(key)
	if entry == nil {
		return 0, 0, false
	}

	rt.mu.Lock()
	match := &rt.round(roundIndex).Matches[matchIndex]
	saved1, saved2 := match.Team1Score, match.Team2Score
	rt.mu.Unlock()

	resolve := func(draft *string, confirmed, saved *int) (int, bool) {
		if draft != nil {
			v, ok := scoring.ParseScore(*draft)
			return v, ok
		}
		if confirmed != nil {
			return *confirmed, true
		}
		if saved != nil {
			return *saved, true
		}
		return 0, false
	}

	a, okA := resolve(entry.Draft1, entry.Confirmed1, saved1)
	b, okB := resolve(entry.Draft2, entry.Confirmed2, saved2)
	if !okA || !okB {
		return 0, 0, false
	}
	// At least one side must come from local edits, otherwise there is
	// nothing new to commit.
	if entry.Draft1 == nil && entry.Draft2 == nil && entry.Confirmed1 == nil && entry.Confirmed2 == nil {
		return 0, 0, false
	}
	return a, b, true
}

// commitPair runs one attempt of the commit state machine:
// Validating -> {Rejected | Committing} -> {Committed | Queued | Failed}.
func (s *scoreService) commitPair(ctx context.Context, rt *sessionRuntime, sessionID uuid.UUID, key engine.MatchKey, team1, team2 int, gameScores []models.GameScore) (*CommitResult, error) {
	if err := rt.policy.Validate(&team1, &team2); err != nil {
		// Rejected: the key's editor state is dropped, nothing mutated.
		rt.state.ClearEntry(key)
		return nil, err
	}

	rt.state.Confirm(key, team1, team2)
	rt.state.MarkCommitting(key)

	if !s.net.Online() {
		// Offline path: no network round-trip, exactly one durable
		// queued operation per commit.
		_, err := s.queue.Enqueue(models.OperationUpdateScore, sessionID, models.UpdateScorePayload{
			RoundIndex: key.Round,
			MatchIndex: key.Match,
			Team1Score: team1,
			Team2Score: team2,
			GameScores: gameScores,
		})
		if err != nil {
			rt.state.MarkFailed(key)
			return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
		}
		s.applyScore(rt, sessionID, key, team1, team2, gameScores)
		rt.state.MarkCommitted(key, team1, team2, true)
		return &CommitResult{Team1: team1, Team2: team2, Queued: true}, nil
	}

	// Online path: locked write with bounded retry. Each attempt opens
	// and closes its own transaction, so the row lock is never held
	// across a backoff sleep.
	err := s.lockRetry.Do(ctx, func(ctx context.Context) error {
		return s.roundRepo.UpdateScoreWithLock(ctx, sessionID, key.Round, key.Match, team1, team2, gameScores)
	})
	if err != nil {
		rt.state.MarkFailed(key)
		if errors.Is(err, repositories.ErrScoreLockBusy) {
			return nil, ErrLockContention
		}
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	s.applyScore(rt, sessionID, key, team1, team2, gameScores)
	s.persistPlayers(ctx, rt, sessionID)
	rt.state.MarkCommitted(key, team1, team2, false)
	return &CommitResult{Team1: team1, Team2: team2, Queued: false}, nil
}

// applyScore mutates the in-memory round and runs the best-effort side
// effects: rating update, audit record, live broadcast. None of them can
// fail the commit.
func (s *scoreService) applyScore(rt *sessionRuntime, sessionID uuid.UUID, key engine.MatchKey, team1, team2 int, gameScores []models.GameScore) {
	rt.mu.Lock()
	match := &rt.round(key.Round).Matches[key.Match]
	match.Team1Score = &team1
	match.Team2Score = &team2
	if gameScores != nil {
		match.GameScores = gameScores
	}
	matchCopy := *match
	rt.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("pairing engine panicked during rating update", slog.Any("panic", r))
			}
		}()
		rt.mu.Lock()
		defer rt.mu.Unlock()
		s.pairing.UpdateRatings(rt.model, match)
	}()

	s.appendEvent(sessionID, models.EventScoreCommitted, models.UpdateScorePayload{
		RoundIndex: key.Round,
		MatchIndex: key.Match,
		Team1Score: team1,
		Team2Score: team2,
		GameScores: gameScores,
	})

	s.hub.Broadcast(live.Update{
		Type:      "MATCH_UPDATED",
		SessionID: sessionID.String(),
		Payload: map[string]interface{}{
			"round_index": key.Round,
			"match_index": key.Match,
			"match":       matchCopy,
		},
	})
}

// persistPlayers writes the updated ratings/counters through, best
// effort, while online.
func (s *scoreService) persistPlayers(ctx context.Context, rt *sessionRuntime, sessionID uuid.UUID) {
	rt.mu.Lock()
	players := models.ClonePlayers(rt.model.Players)
	rt.mu.Unlock()
	if err := s.sessionRepo.UpdatePlayers(ctx, sessionID, players); err != nil {
		s.logger.Warn("failed to persist player ratings", slog.String("session", sessionID.String()), slog.Any("error", err))
	}
}

func (s *scoreService) appendEvent(sessionID uuid.UUID, eventType models.EventType, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal audit payload", slog.Any("error", err))
		return
	}
	// Detached context: the audit insert must not block or outlive-fail
	// the request that triggered it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.eventRepo.Append(ctx, &models.Event{
		SessionID: sessionID,
		Type:      eventType,
		Payload:   raw,
	}); err != nil {
		s.logger.Warn("failed to append audit event", slog.String("session", sessionID.String()), slog.Any("error", err))
	}
}

func (s *scoreService) draftView(rt *sessionRuntime, key engine.MatchKey, roundIndex, matchIndex, editedTeam int) *DraftView {
	entry := rt.state.Read(key)

	rt.mu.Lock()
	match := &rt.round(roundIndex).Matches[matchIndex]
	saved1, saved2 := match.Team1Score, match.Team2Score
	rt.mu.Unlock()

	var draft1, draft2 *string
	if entry != nil {
		draft1, draft2 = entry.Draft1, entry.Draft2
	}
	view := &DraftView{
		Team1Status: scoring.Classify(rt.policy, draft1, saved1),
		Team2Status: scoring.Classify(rt.policy, draft2, saved2),
	}

	// Auto-fill suggestion for the side the operator has not touched.
	edited := draft1
	other := draft2
	if editedTeam == 2 {
		edited, other = draft2, draft1
	}
	if other == nil && edited != nil {
		if known, ok := scoring.ParseScore(*edited); ok {
			if fill, can := rt.policy.AutoFill(known); can {
				view.AutoFill = &fill
			}
		}
	}
	return view
}
