package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/courtmix/session-engine/live"
	"github.com/courtmix/session-engine/models"
	"github.com/courtmix/session-engine/netstatus"
	"github.com/courtmix/session-engine/offline"
	"github.com/courtmix/session-engine/repositories"
	"github.com/courtmix/session-engine/retry"
)

// SyncService replays the offline queue against the store whenever
// connectivity returns. Replay is strictly FIFO: a persistently failing
// operation stops the pass so later writes never overtake earlier ones.
type SyncService interface {
	// Run blocks, replaying on every offline-to-online transition, until
	// ctx is cancelled.
	Run(ctx context.Context)
	// Replay drains the queue once. Safe to call concurrently; passes are
	// serialized.
	Replay(ctx context.Context) error
}

// replayRecheckInterval bounds how long a backlog can sit unreplayed
// while online. Transition notifications are coalesced, so a
// connectivity flap during a running pass, or a pass halted by a failing
// operation, can leave the queue non-empty with no further notification
// coming.
const replayRecheckInterval = 10 * time.Second

type syncService struct {
	queue       *offline.Queue
	sessionRepo repositories.SessionRepository
	roundRepo   repositories.RoundRepository
	eventRepo   repositories.EventRepository
	net         netstatus.Provider
	hub         *live.Hub
	logger      *slog.Logger
	replayRetry retry.Policy
	recheck     time.Duration

	replaying chan struct{} // capacity 1, serializes passes
}

func NewSyncService(
	queue *offline.Queue,
	sessionRepo repositories.SessionRepository,
	roundRepo repositories.RoundRepository,
	eventRepo repositories.EventRepository,
	net netstatus.Provider,
	hub *live.Hub,
	logger *slog.Logger,
) SyncService {
	return &syncService{
		queue:       queue,
		sessionRepo: sessionRepo,
		roundRepo:   roundRepo,
		eventRepo:   eventRepo,
		net:         net,
		hub:         hub,
		logger:      logger,
		replayRetry: retry.New(3, 200*time.Millisecond, 3*time.Second, func(err error) bool {
			return errors.Is(err, repositories.ErrScoreLockBusy)
		}),
		recheck:   replayRecheckInterval,
		replaying: make(chan struct{}, 1),
	}
}

func (s *syncService) Run(ctx context.Context) {
	transitions := s.net.Subscribe()

	// Anything left over from a previous process run is replayed as soon
	// as the service starts, if the store is reachable.
	if s.net.Online() && s.queue.Len() > 0 {
		if err := s.Replay(ctx); err != nil {
			s.logger.Warn("startup replay incomplete", slog.Any("error", err))
		}
	}

	// The recheck ticker catches what the subscription cannot: a
	// reconnect swallowed because a pass was already running, and
	// backlogs left behind by a halted pass.
	ticker := time.NewTicker(s.recheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case online := <-transitions:
			if !online {
				continue
			}
			if err := s.Replay(ctx); err != nil {
				s.logger.Warn("sync replay incomplete", slog.Any("error", err))
			}
		case <-ticker.C:
			if !s.net.Online() || s.queue.Len() == 0 {
				continue
			}
			if err := s.Replay(ctx); err != nil {
				s.logger.Warn("sync replay incomplete", slog.Any("error", err))
			}
		}
	}
}

func (s *syncService) Replay(ctx context.Context) error {
	select {
	case s.replaying <- struct{}{}:
	default:
		return nil // a pass is already running
	}
	defer func() { <-s.replaying }()

	replayed := make(map[uuid.UUID]int)
	total := 0
	for _, op := range s.queue.Pending() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.net.Online() {
			break
		}

		s.queue.RecordAttempt(op.ID)
		if err := s.apply(ctx, op); err != nil {
			// Stop here: acking later operations first would reorder
			// writes for the same match.
			s.logger.Warn("queued operation failed, halting replay",
				slog.Int64("op", op.ID),
				slog.String("kind", string(op.Kind)),
				slog.Int("attempts", op.Attempts+1),
				slog.Any("error", err))
			s.announceAll(replayed)
			return fmt.Errorf("operation %d (%s): %w", op.ID, op.Kind, err)
		}
		if err := s.queue.Ack(op.ID); err != nil {
			return fmt.Errorf("failed to ack operation %d: %w", op.ID, err)
		}
		replayed[op.SessionID]++
		total++
	}

	if total > 0 {
		s.logger.Info("offline queue replayed",
			slog.Int("operations", total),
			slog.Int("remaining", s.queue.Len()))
		s.announceAll(replayed)
	}
	return nil
}

// apply performs one queued write. Both paths are idempotent on the
// server side, so a crash between apply and ack only costs a harmless
// re-apply.
func (s *syncService) apply(ctx context.Context, op *models.PendingOperation) error {
	switch op.Kind {
	case models.OperationUpdateScore:
		var payload models.UpdateScorePayload
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return fmt.Errorf("failed to parse score payload: %w", err)
		}
		return s.replayRetry.Do(ctx, func(ctx context.Context) error {
			return s.roundRepo.UpdateScoreWithLock(ctx, op.SessionID,
				payload.RoundIndex, payload.MatchIndex,
				payload.Team1Score, payload.Team2Score, payload.GameScores)
		})
	case models.OperationGenerateRound:
		var payload models.GenerateRoundPayload
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return fmt.Errorf("failed to parse round payload: %w", err)
		}
		if payload.Round == nil {
			return errors.New("round payload is empty")
		}
		return s.roundRepo.AppendRound(ctx, op.SessionID, payload.RoundIndex, payload.Round)
	case models.OperationFinishSession:
		var payload models.FinishSessionPayload
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return fmt.Errorf("failed to parse finish payload: %w", err)
		}
		if payload.Status == "" {
			payload.Status = models.SessionStatusCompleted
		}
		return s.sessionRepo.UpdateStatus(ctx, op.SessionID, payload.Status)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (s *syncService) announceAll(replayed map[uuid.UUID]int) {
	for sessionID, count := range replayed {
		payload, err := json.Marshal(map[string]int{"replayed": count})
		if err != nil {
			continue
		}
		evCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.eventRepo.Append(evCtx, &models.Event{
			SessionID: sessionID,
			Type:      models.EventSyncReplayed,
			Payload:   payload,
		}); err != nil {
			s.logger.Warn("failed to record replay event", slog.Any("error", err))
		}
		cancel()
		s.hub.Broadcast(live.Update{
			Type:      "SYNC_REPLAYED",
			SessionID: sessionID.String(),
			Payload:   map[string]int{"replayed": count},
		})
	}
}
