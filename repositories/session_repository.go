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
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionConflict = errors.New("session already exists")
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	List(ctx context.Context) ([]*models.Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) error
	UpdatePlayers(ctx context.Context, id uuid.UUID, players []*models.Player) error
}

type postgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

// Players are stored as a JSONB document: the player pool is small,
// owned wholesale by the session and always read together with it.
func (r *postgresSessionRepository) Create(ctx context.Context, session *models.Session) error {
	playersJSON, err := json.Marshal(session.Players)
	if err != nil {
		return fmt.Errorf("failed to marshal session players: %w", err)
	}

	query := `
		INSERT INTO sessions (id, name, format, courts, scoring_mode, scoring_target, status, players)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err = r.db.QueryRowContext(ctx, query,
		session.ID,
		session.Name,
		session.Format,
		session.Courts,
		session.Scoring.Mode,
		session.Scoring.Target,
		session.Status,
		playersJSON,
	).Scan(&session.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrSessionConflict
		}
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	return nil
}

func (r *postgresSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `
		SELECT id, name, format, courts, scoring_mode, scoring_target, status, players, created_at
		FROM sessions
		WHERE id = $1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session %s: %w", id, err)
	}
	return session, nil
}

func (r *postgresSessionRepository) List(ctx context.Context) ([]*models.Session, error) {
	query := `
		SELECT id, name, format, courts, scoring_mode, scoring_target, status, players, created_at
		FROM sessions
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", scanErr)
		}
		sessions = append(sessions, session)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during session rows iteration: %w", err)
	}
	return sessions, nil
}

func (r *postgresSessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status for session %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrSessionNotFound)
}

func (r *postgresSessionRepository) UpdatePlayers(ctx context.Context, id uuid.UUID, players []*models.Player) error {
	playersJSON, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("failed to marshal session players: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `UPDATE sessions SET players = $1 WHERE id = $2`, playersJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update players for session %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrSessionNotFound)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session     models.Session
		playersJSON []byte
	)
	err := row.Scan(
		&session.ID,
		&session.Name,
		&session.Format,
		&session.Courts,
		&session.Scoring.Mode,
		&session.Scoring.Target,
		&session.Status,
		&playersJSON,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(playersJSON) > 0 {
		if err := json.Unmarshal(playersJSON, &session.Players); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session players: %w", err)
		}
	}
	return &session, nil
}
