package database

import (
	"context"
	"errors"
	"time"

	"chmura-plikow/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrResetTokenInvalid = errors.New("invalid or expired reset token")

func (q *Queries) CreateResetToken(ctx context.Context, userID int64, token uuid.UUID, expiresAt time.Time) (*models.ResetToken, error) {
	query := `
		INSERT INTO reset_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, token, expires_at, created_at
	`
	var rt models.ResetToken
	err := q.db.QueryRow(ctx, query, userID, token, expiresAt).Scan(
		&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// GetValidResetToken zwraca token tylko gdy istnieje i nie wygasł.
func (q *Queries) GetValidResetToken(ctx context.Context, token uuid.UUID) (*models.ResetToken, error) {
	query := `
		SELECT id, user_id, token, expires_at, created_at
		FROM reset_tokens
		WHERE token = $1 AND expires_at > now()
	`
	var rt models.ResetToken
	err := q.db.QueryRow(ctx, query, token).Scan(
		&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rt, nil
}

// PurgeResetTokens usuwa wszystkie tokeny konta; wołane po udanym resecie
// hasła i przy kasowaniu konta.
func (q *Queries) PurgeResetTokens(ctx context.Context, userID int64) error {
	query := `DELETE FROM reset_tokens WHERE user_id = $1`
	_, err := q.db.Exec(ctx, query, userID)
	return err
}
