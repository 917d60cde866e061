package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/courtmix/session-engine/models"
)

var (
	ErrRoundNotFound = errors.New("round not found")
	ErrMatchNotFound = errors.New("match not found")
	// ErrScoreLockBusy: another writer currently holds the row lock for
	// the same match, or the locked write timed out. Retryable.
	ErrScoreLockBusy = errors.New("match row is locked by another update")
)

type RoundRepository interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Round, error)
	// AppendRound persists one generated round with its matches. Safe to
	// replay: an already-present (session, round index) is a no-op.
	AppendRound(ctx context.Context, sessionID uuid.UUID, roundIndex int, round *models.Round) error
	// UpdateScoreWithLock is the locked, idempotent score write. The row
	// lock is scoped to a single (session, round, match) and held only
	// for the duration of this one call, never across retry sleeps.
	UpdateScoreWithLock(ctx context.Context, sessionID uuid.UUID, roundIndex, matchIndex int, team1Score, team2Score int, gameScores []models.GameScore) error
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

func (r *postgresRoundRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Round, error) {
	roundsQuery := `
		SELECT round_index, number, sitting_out, assignments
		FROM session_rounds
		WHERE session_id = $1
		ORDER BY round_index ASC`

	rows, err := r.db.QueryContext(ctx, roundsQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	rounds := make([]*models.Round, 0)
	for rows.Next() {
		var (
			round           models.Round
			index           int
			sittingJSON     []byte
			assignmentsJSON []byte
		)
		if scanErr := rows.Scan(&index, &round.Number, &sittingJSON, &assignmentsJSON); scanErr != nil {
			return nil, fmt.Errorf("failed to scan round row: %w", scanErr)
		}
		if len(sittingJSON) > 0 {
			if err := json.Unmarshal(sittingJSON, &round.SittingOut); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sitting_out: %w", err)
			}
		}
		if len(assignmentsJSON) > 0 {
			if err := json.Unmarshal(assignmentsJSON, &round.Assignments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal assignments: %w", err)
			}
		}
		rounds = append(rounds, &round)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during round rows iteration: %w", err)
	}

	matchesQuery := `
		SELECT round_index, match_index, court, team1, team2, team1_score, team2_score, game_scores
		FROM session_matches
		WHERE session_id = $1
		ORDER BY round_index ASC, match_index ASC`

	matchRows, err := r.db.QueryContext(ctx, matchesQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for session %s: %w", sessionID, err)
	}
	defer matchRows.Close()

	for matchRows.Next() {
		var (
			roundIndex, matchIndex int
			match                  models.Match
			team1JSON, team2JSON   []byte
			gamesJSON              []byte
		)
		if scanErr := matchRows.Scan(
			&roundIndex,
			&matchIndex,
			&match.Court,
			&team1JSON,
			&team2JSON,
			&match.Team1Score,
			&match.Team2Score,
			&gamesJSON,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		if err := json.Unmarshal(team1JSON, &match.Team1); err != nil {
			return nil, fmt.Errorf("failed to unmarshal team1: %w", err)
		}
		if err := json.Unmarshal(team2JSON, &match.Team2); err != nil {
			return nil, fmt.Errorf("failed to unmarshal team2: %w", err)
		}
		if len(gamesJSON) > 0 {
			if err := json.Unmarshal(gamesJSON, &match.GameScores); err != nil {
				return nil, fmt.Errorf("failed to unmarshal game_scores: %w", err)
			}
		}
		if roundIndex < 0 || roundIndex >= len(rounds) {
			return nil, fmt.Errorf("match row references unknown round index %d", roundIndex)
		}
		rounds[roundIndex].Matches = append(rounds[roundIndex].Matches, match)
	}
	if err = matchRows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return rounds, nil
}

func (r *postgresRoundRepository) AppendRound(ctx context.Context, sessionID uuid.UUID, roundIndex int, round *models.Round) error {
	sittingJSON, err := json.Marshal(round.SittingOut)
	if err != nil {
		return fmt.Errorf("failed to marshal sitting_out: %w", err)
	}
	assignmentsJSON, err := json.Marshal(round.Assignments)
	if err != nil {
		return fmt.Errorf("failed to marshal assignments: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin round append transaction: %w", err)
	}
	defer tx.Rollback()

	// ON CONFLICT DO NOTHING keeps offline replay idempotent: replaying
	// the same GENERATE_ROUND never duplicates a round.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_rounds (session_id, round_index, number, sitting_out, assignments)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, round_index) DO NOTHING`,
		sessionID, roundIndex, round.Number, sittingJSON, assignmentsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert round %d for session %s: %w", roundIndex, sessionID, err)
	}

	for i, match := range round.Matches {
		team1JSON, mErr := json.Marshal(match.Team1)
		if mErr != nil {
			return fmt.Errorf("failed to marshal team1: %w", mErr)
		}
		team2JSON, mErr := json.Marshal(match.Team2)
		if mErr != nil {
			return fmt.Errorf("failed to marshal team2: %w", mErr)
		}
		var gamesJSON []byte
		if match.GameScores != nil {
			if gamesJSON, mErr = json.Marshal(match.GameScores); mErr != nil {
				return fmt.Errorf("failed to marshal game_scores: %w", mErr)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_matches
				(session_id, round_index, match_index, court, team1, team2, team1_score, team2_score, game_scores)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (session_id, round_index, match_index) DO NOTHING`,
			sessionID, roundIndex, i, match.Court, team1JSON, team2JSON,
			match.Team1Score, match.Team2Score, gamesJSON)
		if err != nil {
			return fmt.Errorf("failed to insert match %d of round %d: %w", i, roundIndex, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit round append: %w", err)
	}
	return nil
}

func (r *postgresRoundRepository) UpdateScoreWithLock(ctx context.Context, sessionID uuid.UUID, roundIndex, matchIndex int, team1Score, team2Score int, gameScores []models.GameScore) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin score update transaction: %w", err)
	}
	defer tx.Rollback()

	// NOWAIT turns lock contention into an immediate, retryable error
	// instead of queueing behind the other writer.
	var one int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM session_matches
		WHERE session_id = $1 AND round_index = $2 AND match_index = $3
		FOR UPDATE NOWAIT`,
		sessionID, roundIndex, matchIndex).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMatchNotFound
		}
		return r.classifyLockError(err)
	}

	var gamesJSON []byte
	if gameScores != nil {
		if gamesJSON, err = json.Marshal(gameScores); err != nil {
			return fmt.Errorf("failed to marshal game_scores: %w", err)
		}
	}

	// Last-write-wins on the (session, round, match) key, which keeps
	// at-least-once replay of the same operation safe.
	_, err = tx.ExecContext(ctx, `
		UPDATE session_matches
		SET team1_score = $1, team2_score = $2, game_scores = $3
		WHERE session_id = $4 AND round_index = $5 AND match_index = $6`,
		team1Score, team2Score, gamesJSON, sessionID, roundIndex, matchIndex)
	if err != nil {
		return r.classifyLockError(err)
	}

	if err = tx.Commit(); err != nil {
		return r.classifyLockError(err)
	}
	return nil
}

func (r *postgresRoundRepository) classifyLockError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrScoreLockBusy, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03", // lock_not_available
			"40001", // serialization_failure
			"57014": // query_canceled (statement timeout)
			return fmt.Errorf("%w: %v", ErrScoreLockBusy, err)
		}
	}
	return fmt.Errorf("locked score update failed: %w", err)
}
