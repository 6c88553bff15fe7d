package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chmura-plikow/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrEntryNotFound = errors.New("entry not found or user is not the owner")
var ErrRecipientNotFound = errors.New("recipient user not found")
var ErrParentNotFolder = errors.New("parent must be an existing folder owned by the same user")

const entryColumns = `
	id, owner_id, parent_id, name, kind, mime_type, size_bytes, blob_ref,
	content, is_favorite, is_private, lock_hash, duplicated_from, metadata,
	created_at, modified_at
`

func scanEntry(row pgx.Row) (*models.Entry, error) {
	var entry models.Entry
	err := row.Scan(
		&entry.ID,
		&entry.OwnerID,
		&entry.ParentID,
		&entry.Name,
		&entry.Kind,
		&entry.MimeType,
		&entry.SizeBytes,
		&entry.BlobRef,
		&entry.Content,
		&entry.IsFavorite,
		&entry.IsPrivate,
		&entry.LockHash,
		&entry.DuplicatedFrom,
		&entry.Metadata,
		&entry.CreatedAt,
		&entry.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func collectEntries(rows pgx.Rows) ([]models.Entry, error) {
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var entry models.Entry
		err := rows.Scan(
			&entry.ID,
			&entry.OwnerID,
			&entry.ParentID,
			&entry.Name,
			&entry.Kind,
			&entry.MimeType,
			&entry.SizeBytes,
			&entry.BlobRef,
			&entry.Content,
			&entry.IsFavorite,
			&entry.IsPrivate,
			&entry.LockHash,
			&entry.DuplicatedFrom,
			&entry.Metadata,
			&entry.CreatedAt,
			&entry.ModifiedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if entries == nil {
		return []models.Entry{}, nil
	}

	return entries, nil
}

type CreateEntryParams struct {
	ID             string
	OwnerID        int64
	ParentID       *string
	Name           string
	Kind           string
	MimeType       *string
	SizeBytes      int64
	BlobRef        *string
	Content        *string
	DuplicatedFrom *string
	Metadata       []byte
}

func (q *Queries) CreateEntry(ctx context.Context, arg CreateEntryParams) (*models.Entry, error) {
	// Rodzic musi być folderem tego samego właściciela. Sama relacja FK tego
	// nie wymusi, stąd jawna kontrola przed INSERT-em.
	if arg.ParentID != nil {
		var ok bool
		check := `SELECT EXISTS(SELECT 1 FROM entries WHERE id = $1 AND owner_id = $2 AND kind = 'folder')`
		if err := q.db.QueryRow(ctx, check, *arg.ParentID, arg.OwnerID).Scan(&ok); err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrParentNotFolder
		}
	}

	metadata := arg.Metadata
	if metadata == nil {
		metadata = []byte(`{}`)
	}

	query := `
		INSERT INTO entries (id, owner_id, parent_id, name, kind, mime_type, size_bytes,
		                     blob_ref, content, duplicated_from, metadata, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING ` + entryColumns

	now := time.Now()
	row := q.db.QueryRow(ctx, query,
		arg.ID,
		arg.OwnerID,
		arg.ParentID,
		arg.Name,
		arg.Kind,
		arg.MimeType,
		arg.SizeBytes,
		arg.BlobRef,
		arg.Content,
		arg.DuplicatedFrom,
		metadata,
		now,
	)

	entry, err := scanEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrParentNotFolder
		}
		return nil, err
	}

	return entry, nil
}

func (q *Queries) EntryExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM entries WHERE id = $1)`
	err := q.db.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (q *Queries) GetEntryByID(ctx context.Context, id string, ownerID int64) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1 AND owner_id = $2`
	return scanEntry(q.db.QueryRow(ctx, query, id, ownerID))
}

// ListEntriesParams to komplet filtrów wyszukiwania: wszystkie są opcjonalne
// poza właścicielem. RootOnly oznacza jawnie "tylko katalog główny"
// (parent_id IS NULL).
type ListEntriesParams struct {
	OwnerID       int64
	Kind          *string
	ParentID      *string
	RootOnly      bool
	FavoritesOnly bool
	NameQuery     *string
	Limit         int
	Offset        int
}

func (q *Queries) ListEntries(ctx context.Context, arg ListEntriesParams) ([]models.Entry, error) {
	where := []string{"owner_id = $1"}
	args := []interface{}{arg.OwnerID}

	if arg.Kind != nil {
		args = append(args, *arg.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if arg.ParentID != nil {
		args = append(args, *arg.ParentID)
		where = append(where, fmt.Sprintf("parent_id = $%d", len(args)))
	} else if arg.RootOnly {
		where = append(where, "parent_id IS NULL")
	}
	if arg.FavoritesOnly {
		where = append(where, "is_favorite = TRUE")
	}
	if arg.NameQuery != nil {
		args = append(args, "%"+*arg.NameQuery+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	args = append(args, arg.Limit, arg.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM entries
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		entryColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return collectEntries(rows)
}

// ListRecent ignoruje paginację: zawsze 20 ostatnio zmodyfikowanych wpisów.
func (q *Queries) ListRecent(ctx context.Context, arg ListEntriesParams) ([]models.Entry, error) {
	where := []string{"owner_id = $1"}
	args := []interface{}{arg.OwnerID}

	if arg.Kind != nil {
		args = append(args, *arg.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if arg.ParentID != nil {
		args = append(args, *arg.ParentID)
		where = append(where, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	if arg.FavoritesOnly {
		where = append(where, "is_favorite = TRUE")
	}
	if arg.NameQuery != nil {
		args = append(args, "%"+*arg.NameQuery+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM entries
		WHERE %s
		ORDER BY modified_at DESC
		LIMIT 20`,
		entryColumns, strings.Join(where, " AND "))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return collectEntries(rows)
}

func (q *Queries) ListFavorites(ctx context.Context, ownerID int64) ([]models.Entry, error) {
	query := `
		SELECT ` + entryColumns + ` FROM entries
		WHERE owner_id = $1 AND is_favorite = TRUE
		ORDER BY modified_at DESC
	`
	rows, err := q.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}

	return collectEntries(rows)
}

// ListByDay zwraca wpisy utworzone w zadanym dniu kalendarzowym (UTC).
func (q *Queries) ListByDay(ctx context.Context, ownerID int64, day time.Time) ([]models.Entry, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Millisecond)

	query := `
		SELECT ` + entryColumns + ` FROM entries
		WHERE owner_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
	`
	rows, err := q.db.Query(ctx, query, ownerID, start, end)
	if err != nil {
		return nil, err
	}

	return collectEntries(rows)
}

func (q *Queries) RenameEntry(ctx context.Context, id string, ownerID int64, newName string) (bool, error) {
	query := `
		UPDATE entries
		SET name = $1, modified_at = $2
		WHERE id = $3 AND owner_id = $4
	`
	res, err := q.db.Exec(ctx, query, newName, time.Now(), id, ownerID)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

// ToggleFavorite odwraca flagę przy każdym wywołaniu i zwraca wpis po zmianie.
func (q *Queries) ToggleFavorite(ctx context.Context, id string, ownerID int64) (*models.Entry, error) {
	query := `
		UPDATE entries
		SET is_favorite = NOT is_favorite, modified_at = $1
		WHERE id = $2 AND owner_id = $3
		RETURNING ` + entryColumns

	return scanEntry(q.db.QueryRow(ctx, query, time.Now(), id, ownerID))
}

// ShareEntry ma semantykę zbioru: ponowne udostępnienie temu samemu odbiorcy
// nie jest błędem i niczego nie dubluje.
func (q *Queries) ShareEntry(ctx context.Context, entryID string, recipientID int64) error {
	query := `
		INSERT INTO entry_shares (entry_id, recipient_id)
		VALUES ($1, $2)
		ON CONFLICT (entry_id, recipient_id) DO NOTHING
	`
	_, err := q.db.Exec(ctx, query, entryID, recipientID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrRecipientNotFound
		}
		return err
	}
	return nil
}

func (q *Queries) ListSharedWithUser(ctx context.Context, recipientID int64, limit int, offset int) ([]models.Entry, error) {
	query := `
		SELECT
			e.id, e.owner_id, e.parent_id, e.name, e.kind, e.mime_type, e.size_bytes,
			e.blob_ref, e.content, e.is_favorite, e.is_private, e.lock_hash,
			e.duplicated_from, e.metadata, e.created_at, e.modified_at
		FROM entries e
		JOIN entry_shares s ON e.id = s.entry_id
		WHERE s.recipient_id = $1
		ORDER BY s.shared_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := q.db.Query(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectEntries(rows)
}

// SetEntryLock ustawia albo zdejmuje blokadę prywatności. lockHash != nil
// oznacza włączenie blokady; nil czyści i flagę, i hash.
func (q *Queries) SetEntryLock(ctx context.Context, id string, ownerID int64, lockHash *string) (bool, error) {
	query := `
		UPDATE entries
		SET is_private = $1, lock_hash = $2, modified_at = $3
		WHERE id = $4 AND owner_id = $5
	`
	res, err := q.db.Exec(ctx, query, lockHash != nil, lockHash, time.Now(), id, ownerID)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (q *Queries) DeleteEntryRow(ctx context.Context, id string, ownerID int64) (bool, error) {
	query := `DELETE FROM entries WHERE id = $1 AND owner_id = $2`
	res, err := q.db.Exec(ctx, query, id, ownerID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// CountEntriesWithBlobRef mówi, ile wpisów wciąż wskazuje dany blob. Operacja
// duplicate pozwala wielu wpisom dzielić jeden plik, więc fizyczne usunięcie
// wolno wykonać dopiero przy zerze.
func (q *Queries) CountEntriesWithBlobRef(ctx context.Context, blobRef string) (int64, error) {
	var count int64
	query := `SELECT count(*) FROM entries WHERE blob_ref = $1`
	err := q.db.QueryRow(ctx, query, blobRef).Scan(&count)
	return count, err
}

// ListBlobRefsForOwner zbiera bloby konta przed jego skasowaniem.
func (q *Queries) ListBlobRefsForOwner(ctx context.Context, ownerID int64) ([]string, error) {
	query := `SELECT DISTINCT blob_ref FROM entries WHERE owner_id = $1 AND blob_ref IS NOT NULL`
	rows, err := q.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if refs == nil {
		return []string{}, nil
	}

	return refs, nil
}

type StorageSummary struct {
	TotalEntries   int64 `json:"total_entries"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// GetStorageSummary liczy faktyczną sumę rozmiarów wpisów. Licznik na koncie
// może od niej odpłynąć (osierocone bloby po awarii), dlatego endpoint usage
// raportuje obie wartości.
func (q *Queries) GetStorageSummary(ctx context.Context, ownerID int64) (*StorageSummary, error) {
	var summary StorageSummary
	query := `
		SELECT count(*), COALESCE(sum(size_bytes), 0)
		FROM entries
		WHERE owner_id = $1
	`
	err := q.db.QueryRow(ctx, query, ownerID).Scan(&summary.TotalEntries, &summary.TotalSizeBytes)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
