package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/courtmix/session-engine/engine"
	"github.com/courtmix/session-engine/live"
	"github.com/courtmix/session-engine/models"
	"github.com/courtmix/session-engine/netstatus"
	"github.com/courtmix/session-engine/offline"
	"github.com/courtmix/session-engine/pairing"
	"github.com/courtmix/session-engine/repositories"
	"github.com/courtmix/session-engine/scoring"
	"github.com/courtmix/session-engine/storage"
)

type CreateSessionInput struct {
	Name    string               `json:"name"`
	Format  models.SessionFormat `json:"format"`
	Courts  int                  `json:"courts"`
	Scoring models.ScoringConfig `json:"scoring"`
	Players []string             `json:"players"` // display names
	Ratings []float64            `json:"ratings,omitempty"`
}

// NavigationResult reports where a navigation landed.
type NavigationResult struct {
	RoundIndex int  `json:"round_index"`
	AtEnd      bool `json:"at_end"` // the caller tried to page past the last round
}

// MatchView is the per-match slice of the state surface the UI renders:
// field validity, commit status, the transient saved marker.
type MatchView struct {
	MatchIndex  int                 `json:"match_index"`
	Court       int                 `json:"court"`
	Team1Status scoring.EntryStatus `json:"team1_status"`
	Team2Status scoring.EntryStatus `json:"team2_status"`
	Commit      engine.CommitStatus `json:"commit_status"`
	SavedMarker bool                `json:"saved_marker"`
	Valid       bool                `json:"valid"`
}

// StateView is the whole per-round state surface for one device.
type StateView struct {
	RoundIndex    int         `json:"round_index"`
	RoundNumber   int         `json:"round_number"`
	RoundComplete bool        `json:"round_complete"`
	Matches       []MatchView `json:"matches"`
}

type Standing struct {
	PlayerID      int     `json:"player_id"`
	Name          string  `json:"name"`
	Rating        float64 `json:"rating"`
	PointsFor     int     `json:"points_for"`
	PointsAgainst int     `json:"points_against"`
	Wins          int     `json:"wins"`
	Played        int     `json:"played"`
}

type SessionService interface {
	Create(ctx context.Context, input CreateSessionInput) (*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	List(ctx context.Context) ([]*models.Session, error)
	UpdatePlayerStatus(ctx context.Context, id uuid.UUID, playerID int, status models.PlayerStatus) error
	// Navigate moves the shared cursor (court == nil) or one court's
	// cursor (parallel mode). Paging past the last round reports AtEnd
	// instead of navigating; the caller then invokes Advance.
	Navigate(ctx context.Context, id uuid.UUID, delta int, court *int) (*NavigationResult, error)
	// Advance is the round advancement guard: verify completeness, flush
	// unsaved-but-valid local edits, then generate the next round.
	Advance(ctx context.Context, id uuid.UUID) (*models.Round, error)
	State(ctx context.Context, id uuid.UUID, court *int) (*StateView, error)
	Standings(ctx context.Context, id uuid.UUID) ([]Standing, error)
	// Events returns the most recent audit rows for the session.
	Events(ctx context.Context, id uuid.UUID, limit int) ([]*models.Event, error)
	Finish(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

type sessionService struct {
	runtimes    *Runtimes
	sessionRepo repositories.SessionRepository
	roundRepo   repositories.RoundRepository
	eventRepo   repositories.EventRepository
	scores      ScoreService
	queue       *offline.Queue
	net         netstatus.Provider
	pairing     pairing.Engine
	hub         *live.Hub
	archiver    storage.ResultsArchiver // optional
	logger      *slog.Logger
}

func NewSessionService(
	runtimes *Runtimes,
	sessionRepo repositories.SessionRepository,
	roundRepo repositories.RoundRepository,
	eventRepo repositories.EventRepository,
	scores ScoreService,
	queue *offline.Queue,
	net netstatus.Provider,
	pairingEngine pairing.Engine,
	hub *live.Hub,
	archiver storage.ResultsArchiver,
	logger *slog.Logger,
) SessionService {
	return &sessionService{
		runtimes:    runtimes,
		sessionRepo: sessionRepo,
		roundRepo:   roundRepo,
		eventRepo:   eventRepo,
		scores:      scores,
		queue:       queue,
		net:         net,
		pairing:     pairingEngine,
		hub:         hub,
		archiver:    archiver,
		logger:      logger,
	}
}

func (s *sessionService) Create(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	if input.Name == "" {
		return nil, ErrSessionInvalidName
	}
	if input.Courts < 1 {
		return nil, ErrSessionInvalidCourts
	}
	if len(input.Players) < 4 {
		return nil, ErrSessionInvalidPlayers
	}
	policy, err := scoring.ForConfig(input.Scoring)
	if err != nil {
		return nil, err
	}
	if input.Format == "" {
		input.Format = models.FormatSequential
	}

	session := &models.Session{
		ID:        uuid.New(),
		Name:      input.Name,
		Format:    input.Format,
		Courts:    input.Courts,
		Scoring:   input.Scoring,
		Status:    models.SessionStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	for i, name := range input.Players {
		rating := 1000.0
		if i < len(input.Ratings) {
			rating = input.Ratings[i]
		}
		session.Players = append(session.Players, &models.Player{
			ID:     i + 1,
			Name:   name,
			Rating: rating,
			Status: models.PlayerStatusActive,
		})
	}

	// The first round is generated up front so the session opens on a
	// playable board.
	firstRound, err := s.pairing.GenerateRound(ctx, session, 1)
	if err != nil {
		return nil, err
	}
	session.Rounds = []*models.Round{firstRound}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := s.roundRepo.AppendRound(ctx, session.ID, 0, firstRound); err != nil {
		return nil, fmt.Errorf("failed to persist opening round: %w", err)
	}

	s.runtimes.add(session, policy)
	return session.Clone(), nil
}

// Get returns a deep-copied snapshot. Handlers marshal the result after
// the runtime lock is released, while commits keep mutating the live
// model, so the live pointer must never leave the lock.
func (s *sessionService) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	rt, err := s.runtimes.get(ctx, id)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.model.Clone(), nil
}

func (s *sessionService) List(ctx context.Context) ([]*models.Session, error) {
	return s.sessionRepo.List(ctx)
}

func (s *sessionService) UpdatePlayerStatus(ctx context.Context, id uuid.UUID, playerID int, status models.PlayerStatus) error {
	rt, err := s.runtimes.get(ctx, id)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	player := rt.model.Player(playerID)
	if player == nil {
		rt.mu.Unlock()
		return ErrPlayerNotFound
	}
	player.Status = status
	players := models.ClonePlayers(rt.model.Players)
	rt.mu.Unlock()

	if s.net.Online() {
		if err := s.sessionRepo.UpdatePlayers(ctx, id, players); err != nil {
			s.logger.Warn("failed to persist player status", slog.String("session", id.String()), slog.Any("error", err))
		}
	}
	return nil
}

func (s *sessionService) Navigate(ctx context.Context, id uuid.UUID, delta int, court *int) (*NavigationResult, error) {
	rt, err := s.runtimes.get(ctx, id)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	maxIndex := len(rt.model.Rounds) - 1
	format := rt.model.Format
	rt.mu.Unlock()

	if court != nil && format == models.FormatParallel {
		index, atEnd := rt.state.StepCourt(*court, delta, maxIndex)
		return &NavigationResult{RoundIndex: index, AtEnd: atEnd}, nil
	}
	index, atEnd := rt.state.Step(delta, maxIndex)
	return &NavigationResult{RoundIndex: index, AtEnd: atEnd}, nil
}

func (s *sessionService) Advance(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	rt, err := s.runtimes.get(ctx, id)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	if rt.model.Status != models.SessionStatusActive {
		rt.mu.Unlock()
		return nil, ErrSessionCompleted
	}
	roundIndex := len(rt.model.Rounds) - 1
	if roundIndex < 0 {
		rt.mu.Unlock()
		return nil, ErrRoundNotFound
	}
	round := rt.model.Rounds[roundIndex]
	matchCount := len(round.Matches)
	rt.mu.Unlock()

	// Step 1-2: completeness over the displayed round, local pending
	// values counting as provisional truth.
	var missing []int
	var unflushed []int
	for i := 0; i < matchCount; i++ {
		key := engine.MatchKey{Round: roundIndex, Match: i}
		a, b, fromCache := s.effectivePair(rt, key, roundIndex, i)
		if a == nil || b == nil || rt.policy.Validate(a, b) != nil {
			missing = append(missing, i)
			continue
		}
		if fromCache {
			unflushed = append(unflushed, i)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteRoundError{
			Mode:    rt.policy.Mode(),
			Target:  rt.policy.Target(),
			Missing: missing,
		}
	}

	// Step 3: flush every valid pair that lives only in the edit cache
	// and wait for all of those commits to settle.
	if len(unflushed) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, matchIndex := range unflushed {
			matchIndex := matchIndex
			g.Go(func() error {
				_, commitErr := s.scores.Commit(gctx, id, roundIndex, matchIndex)
				return commitErr
			})
		}
		if err := g.Wait(); err != nil {
			// No partial advancement: the round is not generated.
			return nil, fmt.Errorf("%w: %v", ErrFlushFailed, err)
		}
	}

	// Step 4: delegate to the pairing engine and append the new round.
	rt.mu.Lock()
	nextNumber := len(rt.model.Rounds) + 1
	newRound, err := s.pairing.GenerateRound(ctx, rt.model, nextNumber)
	if err != nil {
		rt.mu.Unlock()
		return nil, err
	}
	rt.model.Rounds = append(rt.model.Rounds, newRound)
	newIndex := len(rt.model.Rounds) - 1
	players := models.ClonePlayers(rt.model.Players)
	// Everything past the lock works on a snapshot; scoring on the new
	// round may start before the persist settles.
	roundCopy := newRound.Clone()
	rt.mu.Unlock()

	if s.net.Online() {
		if err := s.roundRepo.AppendRound(ctx, id, newIndex, roundCopy); err != nil {
			s.logger.Error("failed to persist generated round, queueing for replay",
				slog.String("session", id.String()), slog.Any("error", err))
			s.enqueueRound(id, newIndex, roundCopy)
		} else if err := s.sessionRepo.UpdatePlayers(ctx, id, players); err != nil {
			s.logger.Warn("failed to persist participation counters", slog.Any("error", err))
		}
	} else {
		s.enqueueRound(id, newIndex, roundCopy)
	}

	s.appendEvent(id, models.EventRoundGenerated, models.GenerateRoundPayload{RoundIndex: newIndex, Round: roundCopy})
	rt.state.SetCursor(newIndex, newIndex)
	s.hub.Broadcast(live.Update{
		Type:      "ROUND_GENERATED",
		SessionID: id.String(),
		Payload:   map[string]interface{}{"round_index": newIndex, "round": roundCopy},
	})
	return roundCopy, nil
}

// effectivePair resolves the provisional truth for one match: cache
// confirmed pair, else parseable drafts, else the committed score.
// fromCache reports that the pair exists only in the local edit cache.
func (s *sessionService) effectivePair(rt *sessionRuntime, key engine.MatchKey, roundIndex, matchIndex int) (*int, *int, bool) {
	rt.mu.Lock()
	match := &rt.round(roundIndex).Matches[matchIndex]
	saved1, saved2 := match.Team1Score, match.Team2Score
	rt.mu.Unlock()

	entry := rt.state.Read(key)
	if entry == nil {
		return saved1, saved2, false
	}

	side := func(draft *string, confirmed, saved *int) (*int, bool) {
		if draft != nil {
			if v, ok := scoring.ParseScore(*draft); ok {
				return &v, true
			}
			return nil, true
		}
		if confirmed != nil {
			return confirmed, true
		}
		return saved, false
	}

	a, localA := side(entry.Draft1, entry.Confirmed1, saved1)
	b, localB := side(entry.Draft2, entry.Confirmed2, saved2)
	local := localA || localB
	if entry.Status == engine.StatusCommitted || entry.Status == engine.StatusQueued {
		local = false
	}
	return a, b, local
}

func (s *sessionService) enqueueRound(id uuid.UUID, index int, round *models.Round) {
	if _, err := s.queue.Enqueue(models.OperationGenerateRound, id, models.GenerateRoundPayload{
		RoundIndex: index,
		Round:      round,
	}); err != nil {
		s.logger.Error("failed to enqueue generated round", slog.String("session", id.String()), slog.Any("error", err))
	}
}

func (s *sessionService) State(ctx context.Context, id uuid.UUID, court *int) (*StateView, error) {
	rt, err := s.runtimes.get(ctx, id)
	if err != nil {
		return nil, err
	}

	roundIndex := rt.state.Cursor()
	if court != nil {
		roundIndex = rt.state.CourtCursor(*court)
	}

	rt.mu.Lock()
	round := rt.round(roundIndex)
	rt.mu.Unlock()
	if round == nil {
		return nil, ErrRoundNotFound
	}

	view := &StateView{
		RoundIndex:    roundIndex,
		RoundNumber:   round.Number,
		RoundComplete: true,
	}
	for i := range round.Matches {
		key := engine.MatchKey{Round: roundIndex, Match: i}
		entry := rt.state.Read(key)

		rt.mu.Lock()
		match := &rt.round(roundIndex).Matches[i]
		saved1, saved2 := match.Team1Score, match.Team2Score
		courtNo := match.Court
		rt.mu.Unlock()

		var draft1, draft2 *string
		commit := engine.StatusIdle
		if entry != nil {
			draft1, draft2 = entry.Draft1, entry.Draft2
			commit = entry.Status
		}
		savedMarker := rt.state.SavedMarker(key)

		a, b, _ := s.effectivePair(rt, key, roundIndex, i)
		valid := a != nil && b != nil && rt.policy.Validate(a, b) == nil
		if !valid {
			view.RoundComplete = false
		}

		view.Matches = append(view.Matches, MatchView{
			MatchIndex:  i,
			Court:       courtNo,
			Team1Status: scoring.Classify(rt.policy, draft1, saved1),
			Team2Status: scoring.Classify(rt.policy, draft2, saved2),
			Commit:      commit,
			SavedMarker: savedMarker,
			Valid:       valid,
		})
	}
	return view, nil
}

func (s *sessionService) Standings(ctx context.Context, id uuid.UUID) ([]Standing, error) {
	rt, err := s.runtimes.get(ctx, id)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	table := make(map[int]*Standing)
	for _, p := range rt.model.Players {
		table[p.ID] = &Standing{PlayerID: p.ID, Name: p.Name, Rating: p.Rating}
	}
	for _, round := range rt.model.Rounds {
		for i := range round.Matches {
			match := &round.Matches[i]
			if !match.Scored() {
				continue
			}
			s1, s2 := *match.Team1Score, *match.Team2Score
			credit(table, match.Team1[:], s1, s2)
			credit(table, match.Team2[:], s2, s1)
		}
	}

	standings := make([]Standing, 0, len(table))
	for _, st := range table {
		standings = append(standings, *st)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].PointsFor != standings[j].PointsFor {
			return standings[i].PointsFor > standings[j].PointsFor
		}
		return standings[i].PlayerID < standings[j].PlayerID
	})
	return standings, nil
}

func credit(table map[int]*Standing, playerIDs []int, pointsFor, pointsAgainst int) {
	for _, id := range playerIDs {
		st, ok := table[id]
		if !ok {
			continue
		}
		st.PointsFor += pointsFor
		st.PointsAgainst += pointsAgainst
		st.Played++
		if pointsFor > pointsAgainst {
			st.Wins++
		}
	}
}

func (s *sessionService) Events(ctx context.Context, id uuid.UUID, limit int) ([]*models.Event, error) {
	if _, err := s.runtimes.get(ctx, id); err != nil {
		return nil, err
	}
	return s.eventRepo.ListBySession(ctx, id, limit)
}

func (s *sessionService) Finish(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	rt, err := s.runtimes.get(ctx, id)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	if rt.model.Status == models.SessionStatusCompleted {
		snapshot := rt.model.Clone()
		rt.mu.Unlock()
		return snapshot, nil
	}
	rt.model.Status = models.SessionStatusCompleted
	rt.mu.Unlock()

	// Completion must survive a restart even while the store is
	// unreachable, so the offline path queues it like any other write.
	if s.net.Online() {
		if err := s.sessionRepo.UpdateStatus(ctx, id, models.SessionStatusCompleted); err != nil {
			s.logger.Warn("failed to persist session completion, queueing for replay", slog.Any("error", err))
			s.enqueueFinish(id)
		}
	} else {
		s.enqueueFinish(id)
	}

	s.archiveResults(ctx, rt, id)

	rt.mu.Lock()
	snapshot := rt.model.Clone()
	rt.mu.Unlock()
	s.runtimes.remove(id)
	return snapshot, nil
}

func (s *sessionService) enqueueFinish(id uuid.UUID) {
	if _, err := s.queue.Enqueue(models.OperationFinishSession, id, models.FinishSessionPayload{
		Status: models.SessionStatusCompleted,
	}); err != nil {
		s.logger.Error("failed to enqueue session completion", slog.String("session", id.String()), slog.Any("error", err))
	}
}

// archiveResults uploads the final standings snapshot, best-effort.
func (s *sessionService) archiveResults(ctx context.Context, rt *sessionRuntime, id uuid.UUID) {
	if s.archiver == nil {
		return
	}
	standings, err := s.Standings(ctx, id)
	if err != nil {
		s.logger.Warn("failed to compute standings for archive", slog.Any("error", err))
		return
	}

	rt.mu.Lock()
	snapshot := struct {
		Session   *models.Session `json:"session"`
		Standings []Standing      `json:"standings"`
	}{rt.model, standings}
	data, err := json.Marshal(snapshot)
	rt.mu.Unlock()
	if err != nil {
		s.logger.Warn("failed to marshal results snapshot", slog.Any("error", err))
		return
	}

	key := fmt.Sprintf("sessions/%s/results.json", id)
	result, err := s.archiver.UploadSnapshot(ctx, key, data)
	if err != nil {
		s.logger.Warn("failed to archive session results", slog.String("session", id.String()), slog.Any("error", err))
		return
	}
	s.logger.Info("session results archived", slog.String("session", id.String()), slog.String("location", result.Location))
}

func (s *sessionService) appendEvent(sessionID uuid.UUID, eventType models.EventType, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal audit payload", slog.Any("error", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.eventRepo.Append(ctx, &models.Event{
		SessionID: sessionID,
		Type:      eventType,
		Payload:   raw,
	}); err != nil {
		s.logger.Warn("failed to append audit event", slog.Any("error", err))
	}
}
