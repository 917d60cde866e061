package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/courtmix/session-engine/engine"
	"github.com/courtmix/session-engine/models"
	"github.com/courtmix/session-engine/repositories"
	"github.com/courtmix/session-engine/scoring"
)

// sessionRuntime is the in-memory authority for one live session: the
// loaded model, the session's scoring policy and the per-view editor
// state. The model is what the UI reads; the database is what survives.
type sessionRuntime struct {
	mu     sync.Mutex // guards model mutations (scores, rounds, ratings)
	model  *models.Session
	state  *engine.SessionState
	policy scoring.Policy
}

// Runtimes loads sessions on first use and keeps them resident for the
// rest of the process lifetime. While the store is unreachable, resident
// runtimes keep serving reads and absorbing queued writes.
type Runtimes struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionRuntime

	sessionRepo repositories.SessionRepository
	roundRepo   repositories.RoundRepository
}

func NewRuntimes(sessionRepo repositories.SessionRepository, roundRepo repositories.RoundRepository) *Runtimes {
	return &Runtimes{
		sessions:    make(map[uuid.UUID]*sessionRuntime),
		sessionRepo: sessionRepo,
		roundRepo:   roundRepo,
	}
}

func (r *Runtimes) get(ctx context.Context, id uuid.UUID) (*sessionRuntime, error) {
	r.mu.Lock()
	if rt, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return rt, nil
	}
	r.mu.Unlock()

	session, err := r.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	rounds, err := r.roundRepo.ListBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load rounds for session %s: %w", id, err)
	}
	session.Rounds = rounds

	policy, err := scoring.ForConfig(session.Scoring)
	if err != nil {
		return nil, fmt.Errorf("session %s has an invalid scoring config: %w", id, err)
	}

	rt := &sessionRuntime{
		model:  session,
		state:  engine.NewSessionState(),
		policy: policy,
	}
	if len(rounds) > 0 {
		rt.state.SetCursor(len(rounds)-1, len(rounds)-1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		// Lost the load race; keep the resident runtime.
		return existing, nil
	}
	r.sessions[id] = rt
	return rt, nil
}

// add registers a freshly created session.
func (r *Runtimes) add(session *models.Session, policy scoring.Policy) *sessionRuntime {
	rt := &sessionRuntime{
		model:  session,
		state:  engine.NewSessionState(),
		policy: policy,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = rt
	return rt
}

// remove tears a runtime down, dropping all of its editor state.
func (r *Runtimes) remove(id uuid.UUID) {
	r.mu.Lock()
	rt, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		rt.state.ClearAll()
	}
}

// round returns the round at index, or nil.
func (rt *sessionRuntime) round(index int) *models.Round {
	if index < 0 || index >= len(rt.model.Rounds) {
		return nil
	}
	return rt.model.Rounds[index]
}
