package database

import (
	"context"
	"testing"
	"time"

	"chmura-plikow/internal/models"

	"github.com/jaevor/go-nanoid"
	"github.com/stretchr/testify/require"
)

func newEntryID(t *testing.T) string {
	t.Helper()
	gen, err := nanoid.Standard(21)
	require.NoError(t, err)
	return gen()
}

func createTestEntry(t *testing.T, ownerID int64, arg CreateEntryParams) *models.Entry {
	t.Helper()

	arg.ID = newEntryID(t)
	arg.OwnerID = ownerID
	if arg.Kind == "" {
		arg.Kind = models.EntryKindFile
	}

	entry, err := testStore.CreateEntry(context.Background(), arg)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return entry
}

func TestCreateEntry_ParentMustBeOwnFolder(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	other := createTestUser(t, 1<<30)
	ctx := context.Background()

	folder := createTestEntry(t, owner.ID, CreateEntryParams{Name: "Docs", Kind: models.EntryKindFolder})
	file := createTestEntry(t, owner.ID, CreateEntryParams{Name: "a.txt"})

	// plik nie może być rodzicem
	_, err := testStore.CreateEntry(ctx, CreateEntryParams{
		ID: newEntryID(t), OwnerID: owner.ID, ParentID: &file.ID, Name: "b.txt", Kind: models.EntryKindFile,
	})
	require.ErrorIs(t, err, ErrParentNotFolder)

	// cudzy folder też nie
	_, err = testStore.CreateEntry(ctx, CreateEntryParams{
		ID: newEntryID(t), OwnerID: other.ID, ParentID: &folder.ID, Name: "c.txt", Kind: models.EntryKindFile,
	})
	require.ErrorIs(t, err, ErrParentNotFolder)

	child := createTestEntry(t, owner.ID, CreateEntryParams{ParentID: &folder.ID, Name: "in-folder.txt"})
	require.NotNil(t, child.ParentID)
	require.Equal(t, folder.ID, *child.ParentID)
}

func TestGetEntryByID_ScopedToOwner(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	stranger := createTestUser(t, 1<<30)
	ctx := context.Background()

	entry := createTestEntry(t, owner.ID, CreateEntryParams{Name: "secret.txt"})

	found, err := testStore.GetEntryByID(ctx, entry.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, found)

	hidden, err := testStore.GetEntryByID(ctx, entry.ID, stranger.ID)
	require.NoError(t, err)
	require.Nil(t, hidden)
}

func TestListEntries_Filters(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	ctx := context.Background()

	folder := createTestEntry(t, owner.ID, CreateEntryParams{Name: "Zdjęcia", Kind: models.EntryKindFolder})
	createTestEntry(t, owner.ID, CreateEntryParams{Name: "raport.pdf", Kind: models.EntryKindPDF})
	createTestEntry(t, owner.ID, CreateEntryParams{ParentID: &folder.ID, Name: "wakacje.png", Kind: models.EntryKindImage})
	createTestEntry(t, owner.ID, CreateEntryParams{Name: "notatka", Kind: models.EntryKindNote})

	// filtr po rodzaju
	kind := models.EntryKindPDF
	entries, err := testStore.ListEntries(ctx, ListEntriesParams{OwnerID: owner.ID, Kind: &kind, Limit: 24})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "raport.pdf", entries[0].Name)

	// zawartość konkretnego folderu
	entries, err = testStore.ListEntries(ctx, ListEntriesParams{OwnerID: owner.ID, ParentID: &folder.ID, Limit: 24})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "wakacje.png", entries[0].Name)

	// tylko korzeń
	entries, err = testStore.ListEntries(ctx, ListEntriesParams{OwnerID: owner.ID, RootOnly: true, Limit: 24})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// wyszukiwanie po fragmencie nazwy, bez rozróżniania wielkości liter
	q := "RAPORT"
	entries, err = testStore.ListEntries(ctx, ListEntriesParams{OwnerID: owner.ID, NameQuery: &q, Limit: 24})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// pusta strona to pusta tablica, nie nil
	entries, err = testStore.ListEntries(ctx, ListEntriesParams{OwnerID: owner.ID, Limit: 24, Offset: 100})
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestToggleFavorite(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	ctx := context.Background()

	entry := createTestEntry(t, owner.ID, CreateEntryParams{Name: "fav.txt"})
	require.False(t, entry.IsFavorite)

	toggled, err := testStore.ToggleFavorite(ctx, entry.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, toggled)
	require.True(t, toggled.IsFavorite)

	toggled, err = testStore.ToggleFavorite(ctx, entry.ID, owner.ID)
	require.NoError(t, err)
	require.False(t, toggled.IsFavorite)

	missing, err := testStore.ToggleFavorite(ctx, newEntryID(t), owner.ID)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestListFavorites(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	ctx := context.Background()

	a := createTestEntry(t, owner.ID, CreateEntryParams{Name: "a.txt"})
	createTestEntry(t, owner.ID, CreateEntryParams{Name: "b.txt"})

	_, err := testStore.ToggleFavorite(ctx, a.ID, owner.ID)
	require.NoError(t, err)

	favorites, err := testStore.ListFavorites(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	require.Equal(t, a.ID, favorites[0].ID)
}

func TestShareEntry_SetSemantics(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	recipient := createTestUser(t, 1<<30)
	ctx := context.Background()

	entry := createTestEntry(t, owner.ID, CreateEntryParams{Name: "shared.txt"})

	require.NoError(t, testStore.ShareEntry(ctx, entry.ID, recipient.ID))
	// powtórne udostępnienie tej samej parze jest no-opem
	require.NoError(t, testStore.ShareEntry(ctx, entry.ID, recipient.ID))

	shared, err := testStore.ListSharedWithUser(ctx, recipient.ID, 24, 0)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	require.Equal(t, entry.ID, shared[0].ID)

	err = testStore.ShareEntry(ctx, entry.ID, 999999)
	require.ErrorIs(t, err, ErrRecipientNotFound)
}

func TestSetEntryLock(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	ctx := context.Background()

	entry := createTestEntry(t, owner.ID, CreateEntryParams{Name: "private.txt"})

	hash := "bcrypt-hash-placeholder"
	ok, err := testStore.SetEntryLock(ctx, entry.ID, owner.ID, &hash)
	require.NoError(t, err)
	require.True(t, ok)

	locked, err := testStore.GetEntryByID(ctx, entry.ID, owner.ID)
	require.NoError(t, err)
	require.True(t, locked.IsPrivate)
	require.NotNil(t, locked.LockHash)

	ok, err = testStore.SetEntryLock(ctx, entry.ID, owner.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)

	unlocked, err := testStore.GetEntryByID(ctx, entry.ID, owner.ID)
	require.NoError(t, err)
	require.False(t, unlocked.IsPrivate)
	require.Nil(t, unlocked.LockHash)

	ok, err = testStore.SetEntryLock(ctx, newEntryID(t), owner.ID, &hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRenameEntry(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	ctx := context.Background()

	entry := createTestEntry(t, owner.ID, CreateEntryParams{Name: "old.txt"})

	ok, err := testStore.RenameEntry(ctx, entry.ID, owner.ID, "new.txt")
	require.NoError(t, err)
	require.True(t, ok)

	renamed, err := testStore.GetEntryByID(ctx, entry.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, "new.txt", renamed.Name)
	require.True(t, renamed.ModifiedAt.After(entry.ModifiedAt) || renamed.ModifiedAt.Equal(entry.ModifiedAt))

	ok, err = testStore.RenameEntry(ctx, newEntryID(t), owner.ID, "x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteEntryRow_ChildrenMoveToRoot(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	ctx := context.Background()

	folder := createTestEntry(t, owner.ID, CreateEntryParams{Name: "Folder", Kind: models.EntryKindFolder})
	child := createTestEntry(t, owner.ID, CreateEntryParams{ParentID: &folder.ID, Name: "child.txt"})

	ok, err := testStore.DeleteEntryRow(ctx, folder.ID, owner.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// dziecko przeżywa usunięcie folderu i ląduje w korzeniu
	orphan, err := testStore.GetEntryByID(ctx, child.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, orphan)
	require.Nil(t, orphan.ParentID)
}

func TestCountEntriesWithBlobRef(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	ctx := context.Background()

	blobRef := "1700000000000-abc123def456-shared.bin"
	first := createTestEntry(t, owner.ID, CreateEntryParams{Name: "shared.bin", BlobRef: &blobRef, SizeBytes: 10})
	second := createTestEntry(t, owner.ID, CreateEntryParams{Name: "shared.bin (copy)", BlobRef: &blobRef, SizeBytes: 10, DuplicatedFrom: &first.ID})

	count, err := testStore.CountEntriesWithBlobRef(ctx, blobRef)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	_, err = testStore.DeleteEntryRow(ctx, second.ID, owner.ID)
	require.NoError(t, err)

	count, err = testStore.CountEntriesWithBlobRef(ctx, blobRef)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestListByDay(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	ctx := context.Background()

	createTestEntry(t, owner.ID, CreateEntryParams{Name: "today.txt"})

	today := time.Now().UTC()
	entries, err := testStore.ListByDay(ctx, owner.ID, today)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	yesterday := today.AddDate(0, 0, -1)
	entries, err = testStore.ListByDay(ctx, owner.ID, yesterday)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGetStorageSummary(t *testing.T) {
	owner := createTestUser(t, 1<<30)
	ctx := context.Background()

	blobRef := "1700000000000-aaa111bbb222-big.bin"
	createTestEntry(t, owner.ID, CreateEntryParams{Name: "big.bin", BlobRef: &blobRef, SizeBytes: 500})
	createTestEntry(t, owner.ID, CreateEntryParams{Name: "note", Kind: models.EntryKindNote})

	summary, err := testStore.GetStorageSummary(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.TotalEntries)
	require.Equal(t, int64(500), summary.TotalSizeBytes)
}
