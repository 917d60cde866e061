package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/courtmix/session-engine/live"
	"github.com/courtmix/session-engine/models"
	"github.com/courtmix/session-engine/netstatus"
	"github.com/courtmix/session-engine/offline"
	"github.com/courtmix/session-engine/pairing"
	"github.com/courtmix/session-engine/scoring"
	"github.com/courtmix/session-engine/storage"
)

// Fakes for the store layer. Behaviour is scripted per test through the
// err fields; all methods are safe for concurrent use because the
// advancement guard flushes commits in parallel.

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session

	createCalls        int
	updatePlayersCalls int
	updateStatusCalls  int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*models.Session)}
}

func (f *fakeSessionRepo) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

func (f *fakeSessionRepo) List(ctx context.Context) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSessionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateStatusCalls++
	return nil
}

func (f *fakeSessionRepo) UpdatePlayers(ctx context.Context, id uuid.UUID, players []*models.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatePlayersCalls++
	return nil
}

type scoreWrite struct {
	RoundIndex int
	MatchIndex int
	Team1      int
	Team2      int
}

type roundWrite struct {
	RoundIndex int
	Round      *models.Round
}

type fakeRoundRepo struct {
	mu     sync.Mutex
	writes []scoreWrite
	rounds []roundWrite

	// failScoreWrites makes the next N score writes fail with scoreErr.
	// Negative means fail forever.
	failScoreWrites int
	scoreErr        error
	appendErr       error
}

func (f *fakeRoundRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Round, error) {
	return nil, nil
}

func (f *fakeRoundRepo) AppendRound(ctx context.Context, sessionID uuid.UUID, roundIndex int, round *models.Round) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rounds = append(f.rounds, roundWrite{RoundIndex: roundIndex, Round: round})
	return nil
}

func (f *fakeRoundRepo) UpdateScoreWithLock(ctx context.Context, sessionID uuid.UUID, roundIndex, matchIndex, team1Score, team2Score int, gameScores []models.GameScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failScoreWrites != 0 {
		if f.failScoreWrites > 0 {
			f.failScoreWrites--
		}
		return f.scoreErr
	}
	f.writes = append(f.writes, scoreWrite{RoundIndex: roundIndex, MatchIndex: matchIndex, Team1: team1Score, Team2: team2Score})
	return nil
}

func (f *fakeRoundRepo) scoreWrites() []scoreWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]scoreWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeRoundRepo) appendedRounds() []roundWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]roundWrite, len(f.rounds))
	copy(out, f.rounds)
	return out
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*models.Event
}

func (f *fakeEventRepo) Append(ctx context.Context, event *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventRepo) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events, nil
}

type fakeArchiver struct {
	mu      sync.Mutex
	uploads []string
}

func (f *fakeArchiver) UploadSnapshot(ctx context.Context, key string, snapshot []byte) (*storage.ArchiveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, key)
	return &storage.ArchiveResult{Key: key, Location: "https://cdn.example.com/" + key}, nil
}

func (f *fakeArchiver) PublicURL(key string) string { return "https://cdn.example.com/" + key }

// testEnv wires the full service stack against fakes and a real
// file-backed queue.
type testEnv struct {
	sessionRepo *fakeSessionRepo
	roundRepo   *fakeRoundRepo
	eventRepo   *fakeEventRepo
	archiver    *fakeArchiver
	queue       *offline.Queue
	monitor     *netstatus.Monitor
	runtimes    *Runtimes

	scores   ScoreService
	sessions SessionService
	sync     SyncService
}

func newTestEnv(t *testing.T, online bool) *testEnv {
	t.Helper()

	queue, err := offline.Open(filepath.Join(t.TempDir(), "queue.json"))
	if err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		sessionRepo: newFakeSessionRepo(),
		roundRepo:   &fakeRoundRepo{},
		eventRepo:   &fakeEventRepo{},
		archiver:    &fakeArchiver{},
		queue:       queue,
		monitor:     netstatus.NewMonitor(online),
	}
	env.runtimes = NewRuntimes(env.sessionRepo, env.roundRepo)

	hub := live.NewHub(logger)
	pairingEngine := pairing.NewMexicano()

	env.scores = NewScoreService(
		env.runtimes, env.roundRepo, env.sessionRepo, env.eventRepo,
		env.queue, env.monitor, pairingEngine, hub, logger,
	)
	env.sessions = NewSessionService(
		env.runtimes, env.sessionRepo, env.roundRepo, env.eventRepo,
		env.scores, env.queue, env.monitor, pairingEngine, hub,
		env.archiver, logger,
	)
	env.sync = NewSyncService(env.queue, env.sessionRepo, env.roundRepo, env.eventRepo, env.monitor, hub, logger)
	return env
}

// startSession registers a ready-to-score session with one generated
// round directly in the runtime map.
func (env *testEnv) startSession(t *testing.T, mode models.ScoringMode, target, courts, players int) *models.Session {
	t.Helper()

	session := &models.Session{
		ID:      uuid.New(),
		Name:    "thursday night",
		Format:  models.FormatSequential,
		Courts:  courts,
		Scoring: models.ScoringConfig{Mode: mode, Target: target},
		Status:  models.SessionStatusActive,
	}
	for i := 0; i < players; i++ {
		session.Players = append(session.Players, &models.Player{
			ID:     i + 1,
			Name:   string(rune('A' + i)),
			Rating: 1000 + float64(players-i)*10,
			Status: models.PlayerStatusActive,
		})
	}

	policy, err := scoring.ForConfig(session.Scoring)
	if err != nil {
		t.Fatal(err)
	}
	round, err := pairing.NewMexicano().GenerateRound(context.Background(), session, 1)
	if err != nil {
		t.Fatal(err)
	}
	session.Rounds = []*models.Round{round}

	env.sessionRepo.sessions[session.ID] = session
	env.runtimes.add(session, policy)
	return session
}

func (env *testEnv) runtime(t *testing.T, id uuid.UUID) *sessionRuntime {
	t.Helper()
	rt, err := env.runtimes.get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return rt
}
