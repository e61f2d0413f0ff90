package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dexgrad/internal/models"
)

// ErrSessionNotFound - сессия не найдена или истекла
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository - работа с таблицей sessions
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository создает новый экземпляр репозитория
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create сохраняет сессию
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (token, account_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	return r.db.QueryRowContext(ctx, query, s.Token, s.AccountID, s.ExpiresAt).Scan(&s.CreatedAt)
}

// GetActive возвращает неистекшую сессию по токену
func (r *SessionRepository) GetActive(ctx context.Context, token string, now time.Time) (*models.Session, error) {
	query := `
		SELECT token, account_id, expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > $2`

	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, token, now).Scan(
		&s.Token,
		&s.AccountID,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// Delete удаляет сессию (logout)
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return err
	}
	return requireRow(result, ErrSessionNotFound)
}

// DeleteExpired удаляет истекшие сессии и возвращает их количество
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
