package database

import (
	"context"
	"errors"

	"chmura-plikow/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrEmailTaken = errors.New("email already in use")
var ErrUserNotFound = errors.New("user not found")

// ErrQuotaExceeded zgłaszane, gdy rezerwacja miejsca przekroczyłaby limit konta.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

const userColumns = `
	id, email, display_name, password_hash, provider, profile_pic,
	storage_quota_bytes, storage_used_bytes, created_at, modified_at
`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Provider,
		&user.ProfilePic,
		&user.StorageQuotaBytes,
		&user.StorageUsedBytes,
		&user.CreatedAt,
		&user.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

type CreateUserParams struct {
	Email        string
	DisplayName  string
	PasswordHash *string
	Provider     *string
	QuotaBytes   int64
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (*models.User, error) {
	query := `
		INSERT INTO users (email, display_name, password_hash, provider, storage_quota_bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	row := q.db.QueryRow(ctx, query,
		arg.Email, arg.DisplayName, arg.PasswordHash, arg.Provider, arg.QuotaBytes)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return user, nil
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(q.db.QueryRow(ctx, query, email))
}

func (q *Queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(q.db.QueryRow(ctx, query, id))
}

type UpdateUserProfileParams struct {
	UserID       int64
	DisplayName  *string
	Email        *string
	PasswordHash *string
}

// UpdateUserProfile nadpisuje tylko przekazane pola; COALESCE zostawia resztę
// bez zmian.
func (q *Queries) UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) (*models.User, error) {
	query := `
		UPDATE users
		SET display_name = COALESCE($1, display_name),
		    email = COALESCE($2, email),
		    password_hash = COALESCE($3, password_hash),
		    modified_at = now()
		WHERE id = $4
		RETURNING ` + userColumns

	row := q.db.QueryRow(ctx, query, arg.DisplayName, arg.Email, arg.PasswordHash, arg.UserID)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (q *Queries) UpdateUserPassword(ctx context.Context, userID int64, newPasswordHash string) error {
	query := `UPDATE users SET password_hash = $1, modified_at = now() WHERE id = $2`
	_, err := q.db.Exec(ctx, query, newPasswordHash, userID)
	return err
}

// ReserveStorage dolicza deltaBytes do zajętego miejsca pod warunkiem, że limit
// nie zostanie przekroczony. Warunek i zapis wykonują się w jednym UPDATE, więc
// dwa równoległe uploady na granicy limitu nie przejdą oba.
func (q *Queries) ReserveStorage(ctx context.Context, userID int64, deltaBytes int64) error {
	query := `
		UPDATE users
		SET storage_used_bytes = storage_used_bytes + $1
		WHERE id = $2 AND storage_used_bytes + $1 <= storage_quota_bytes
	`
	res, err := q.db.Exec(ctx, query, deltaBytes, userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

// ReleaseStorage oddaje miejsce po usunięciu wpisu; licznik nigdy nie schodzi
// poniżej zera.
func (q *Queries) ReleaseStorage(ctx context.Context, userID int64, deltaBytes int64) error {
	query := `
		UPDATE users
		SET storage_used_bytes = GREATEST(0, storage_used_bytes - $1)
		WHERE id = $2
	`
	_, err := q.db.Exec(ctx, query, deltaBytes, userID)
	return err
}

func (q *Queries) DeleteUser(ctx context.Context, userID int64) (bool, error) {
	query := `DELETE FROM users WHERE id = $1`
	res, err := q.db.Exec(ctx, query, userID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}
