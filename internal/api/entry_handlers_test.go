package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"chmura-plikow/internal/auth"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// authedRequest wstrzykuje claims do kontekstu, omijając middleware.
func authedRequest(req *http.Request, claims *auth.AppClaims) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), userContextKey, claims))
}

// newUserClaims zakłada świeże konto z własnym limitem i zwraca jego claims.
func newUserClaims(t *testing.T, quotaBytes int64) *auth.AppClaims {
	t.Helper()
	user := createAPITestUser(context.Background(), testServer.store, quotaBytes)
	return &auth.AppClaims{UserID: user.ID, Email: user.Email}
}

func listParamsFor(ownerID int64) database.ListEntriesParams {
	return database.ListEntriesParams{OwnerID: ownerID, Limit: 24}
}

// entryRouter montuje trasy z parametrem {fileId}, żeby chi wypełniał URLParam.
func entryRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/files/{fileId}", testServer.GetEntryHandler)
	r.Get("/files/{fileId}/download", testServer.DownloadFileHandler)
	r.Patch("/files/{fileId}/rename", testServer.RenameEntryHandler)
	r.Patch("/files/{fileId}/favorite", testServer.ToggleFavoriteHandler)
	r.Post("/files/{fileId}/share", testServer.ShareEntryHandler)
	r.Post("/files/{fileId}/lock", testServer.LockEntryHandler)
	r.Post("/files/{fileId}/copy", testServer.CopyEntryHandler)
	r.Post("/files/{fileId}/duplicate", testServer.DuplicateEntryHandler)
	r.Delete("/files/{fileId}", testServer.DeleteEntryHandler)
	return r
}

func multipartUpload(t *testing.T, filename, contentType, content string, parentID string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)

	if parentID != "" {
		require.NoError(t, writer.WriteField("parent_id", parentID))
	}
	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

func uploadFile(t *testing.T, claims *auth.AppClaims, filename, contentType, content, parentID string) *httptest.ResponseRecorder {
	t.Helper()
	body, formContentType := multipartUpload(t, filename, contentType, content, parentID)
	req := httptest.NewRequest("POST", "/api/v1/files", body)
	req.Header.Set("Content-Type", formContentType)
	rr := httptest.NewRecorder()
	http.HandlerFunc(testServer.UploadFileHandler).ServeHTTP(rr, authedRequest(req, claims))
	return rr
}

func TestAPI_UploadFile_Success(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	rr := uploadFile(t, claims, "raport.pdf", "application/pdf", "%PDF-1.4 fake content", "")
	require.Equal(t, http.StatusCreated, rr.Code)

	var entry models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	require.Equal(t, "raport.pdf", entry.Name)
	require.Equal(t, models.EntryKindPDF, entry.Kind)
	require.NotNil(t, entry.BlobRef)
	require.Equal(t, int64(len("%PDF-1.4 fake content")), entry.SizeBytes)

	// licznik miejsca rośnie o rozmiar pliku
	user, err := testServer.store.GetUserByID(context.Background(), claims.UserID)
	require.NoError(t, err)
	require.Equal(t, entry.SizeBytes, user.StorageUsedBytes)
}

func TestAPI_UploadFile_KindFromExtension(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	// brak MIME: rodzaj z rozszerzenia
	rr := uploadFile(t, claims, "zdjecie.png", "", "not really a png", "")
	require.Equal(t, http.StatusCreated, rr.Code)

	var entry models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	require.Equal(t, models.EntryKindImage, entry.Kind)

	rr = uploadFile(t, claims, "notatki.md", "", "# hello", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	require.Equal(t, models.EntryKindNote, entry.Kind)

	rr = uploadFile(t, claims, "archiwum.zip", "", "PK", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	require.Equal(t, models.EntryKindFile, entry.Kind)
}

func TestAPI_UploadFile_QuotaExceeded(t *testing.T) {
	claims := newUserClaims(t, 10)

	rr := uploadFile(t, claims, "za-duzy.bin", "application/octet-stream", "more than ten bytes of content", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Storage quota exceeded")

	// nieudany upload nie zostawia ani rekordu, ani zajętego miejsca
	entries, err := testServer.store.ListEntries(context.Background(), listParamsFor(claims.UserID))
	require.NoError(t, err)
	require.Empty(t, entries)

	user, err := testServer.store.GetUserByID(context.Background(), claims.UserID)
	require.NoError(t, err)
	require.Equal(t, int64(0), user.StorageUsedBytes)
}

func TestAPI_FolderUploadAndList(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	folderBody, _ := json.Marshal(CreateFolderRequest{Name: "Docs"})
	req := httptest.NewRequest("POST", "/api/v1/files/folder", bytes.NewReader(folderBody))
	rr := httptest.NewRecorder()
	http.HandlerFunc(testServer.CreateFolderHandler).ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusCreated, rr.Code)

	var folder models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &folder))
	require.Equal(t, models.EntryKindFolder, folder.Kind)

	rr = uploadFile(t, claims, "a.pdf", "application/pdf", "pdf body", folder.ID)
	require.Equal(t, http.StatusCreated, rr.Code)

	// zawartość folderu widać przez filtr folder_id
	req = httptest.NewRequest("GET", "/api/v1/files?folder_id="+folder.ID, nil)
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.ListEntriesHandler).ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "a.pdf", entries[0].Name)

	// w korzeniu zostaje sam folder
	req = httptest.NewRequest("GET", "/api/v1/files?folder_id=root", nil)
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.ListEntriesHandler).ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, folder.ID, entries[0].ID)
}

func TestAPI_UploadFile_MissingParent(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	rr := uploadFile(t, claims, "b.txt", "text/plain", "hello", "AAAAAAAAAAAAAAAAAAAAA")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_InvalidParentIDFormat(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	// identyfikator o złej długości odrzucany przed dotknięciem bazy,
	// tak samo przy uploadzie jak i przy tworzeniu folderu
	rr := uploadFile(t, claims, "c.txt", "text/plain", "hello", "za-krotki")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Invalid parent_id format")

	badParent := "za-krotki"
	folderBody, _ := json.Marshal(CreateFolderRequest{Name: "Folder", ParentID: &badParent})
	req := httptest.NewRequest("POST", "/api/v1/files/folder", bytes.NewReader(folderBody))
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.CreateFolderHandler).ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Invalid parent_id format")
}

func TestAPI_CreateNote(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	content := "treść notatki"
	noteBody, _ := json.Marshal(CreateNoteRequest{Title: "Lista zakupów", Content: content})
	req := httptest.NewRequest("POST", "/api/v1/files/note", bytes.NewReader(noteBody))
	rr := httptest.NewRecorder()
	http.HandlerFunc(testServer.CreateNoteHandler).ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusCreated, rr.Code)

	var note models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &note))
	require.Equal(t, models.EntryKindNote, note.Kind)
	require.NotNil(t, note.Content)
	require.Equal(t, content, *note.Content)
	require.Equal(t, int64(0), note.SizeBytes)

	// notatki nie obciążają limitu miejsca
	user, err := testServer.store.GetUserByID(context.Background(), claims.UserID)
	require.NoError(t, err)
	require.Equal(t, int64(0), user.StorageUsedBytes)

	// pusty tytuł odrzucany
	noteBody, _ = json.Marshal(CreateNoteRequest{Title: "  ", Content: "x"})
	req = httptest.NewRequest("POST", "/api/v1/files/note", bytes.NewReader(noteBody))
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.CreateNoteHandler).ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_DownloadFile(t *testing.T) {
	claims := newUserClaims(t, 1<<30)
	content := "download me"

	rr := uploadFile(t, claims, "plik.txt", "text/plain", content, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))

	router := entryRouter()
	req := httptest.NewRequest("GET", "/files/"+entry.ID+"/download", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, content, rr.Body.String())
	require.Contains(t, rr.Header().Get("Content-Disposition"), "plik.txt")
}

func TestAPI_DownloadFile_BlobMissing(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	rr := uploadFile(t, claims, "znikajacy.txt", "text/plain", "gone soon", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))

	// blob usunięty spod rekordu: pobranie kończy się błędem zamiast
	// cichego pustego strumienia
	require.NoError(t, testServer.storage.Delete(*entry.BlobRef))

	router := entryRouter()
	req := httptest.NewRequest("GET", "/files/"+entry.ID+"/download", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAPI_RenameAndFavorite(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	rr := uploadFile(t, claims, "stara-nazwa.txt", "text/plain", "x", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))

	router := entryRouter()

	renameBody, _ := json.Marshal(RenameRequest{Name: "nowa-nazwa.txt"})
	req := httptest.NewRequest("PATCH", "/files/"+entry.ID+"/rename", bytes.NewReader(renameBody))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusOK, rr.Code)

	var renamed models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &renamed))
	require.Equal(t, "nowa-nazwa.txt", renamed.Name)

	req = httptest.NewRequest("PATCH", "/files/"+entry.ID+"/favorite", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusOK, rr.Code)

	var favorited models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &favorited))
	require.True(t, favorited.IsFavorite)

	// cudzy wpis jest niewidoczny
	stranger := newUserClaims(t, 1<<30)
	req = httptest.NewRequest("PATCH", "/files/"+entry.ID+"/rename", bytes.NewReader(renameBody))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, stranger))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_ShareEntry(t *testing.T) {
	owner := newUserClaims(t, 1<<30)
	recipient := newUserClaims(t, 1<<30)

	rr := uploadFile(t, owner, "udostepniony.txt", "text/plain", "shared", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))

	router := entryRouter()

	// nie można udostępnić samemu sobie
	selfBody, _ := json.Marshal(ShareRequest{UserID: owner.UserID})
	req := httptest.NewRequest("POST", "/files/"+entry.ID+"/share", bytes.NewReader(selfBody))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, owner))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	shareBody, _ := json.Marshal(ShareRequest{UserID: recipient.UserID})
	req = httptest.NewRequest("POST", "/files/"+entry.ID+"/share", bytes.NewReader(shareBody))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, owner))
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest("GET", "/api/v1/files/shared-with-me", nil)
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.SharedWithMeHandler).ServeHTTP(rr, authedRequest(req, recipient))
	require.Equal(t, http.StatusOK, rr.Code)

	var shared []models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &shared))
	require.Len(t, shared, 1)
	require.Equal(t, entry.ID, shared[0].ID)
}

func TestAPI_LockEntry(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	rr := uploadFile(t, claims, "prywatny.txt", "text/plain", "secret", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))

	router := entryRouter()

	// blokada bez klucza odrzucana
	lockBody, _ := json.Marshal(LockRequest{Lock: true})
	req := httptest.NewRequest("POST", "/files/"+entry.ID+"/lock", bytes.NewReader(lockBody))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	lockBody, _ = json.Marshal(LockRequest{Lock: true, LockKey: "tajny-klucz"})
	req = httptest.NewRequest("POST", "/files/"+entry.ID+"/lock", bytes.NewReader(lockBody))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusOK, rr.Code)

	locked, err := testServer.store.GetEntryByID(context.Background(), entry.ID, claims.UserID)
	require.NoError(t, err)
	require.True(t, locked.IsPrivate)
	require.NotNil(t, locked.LockHash)
	// klucz trzymany jako bcrypt, nigdy otwartym tekstem
	require.NotEqual(t, "tajny-klucz", *locked.LockHash)
	require.True(t, auth.CheckPasswordHash("tajny-klucz", *locked.LockHash))

	unlockBody, _ := json.Marshal(LockRequest{Lock: false})
	req = httptest.NewRequest("POST", "/files/"+entry.ID+"/lock", bytes.NewReader(unlockBody))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusOK, rr.Code)

	unlocked, err := testServer.store.GetEntryByID(context.Background(), entry.ID, claims.UserID)
	require.NoError(t, err)
	require.False(t, unlocked.IsPrivate)
	require.Nil(t, unlocked.LockHash)
}

func TestAPI_CopyEntry(t *testing.T) {
	claims := newUserClaims(t, 1<<30)
	content := "copy my bytes"

	rr := uploadFile(t, claims, "oryginal.txt", "text/plain", content, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var src models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &src))

	router := entryRouter()
	req := httptest.NewRequest("POST", "/files/"+src.ID+"/copy", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusCreated, rr.Code)

	var dup models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dup))
	require.Equal(t, "oryginal.txt (copy)", dup.Name)
	require.NotNil(t, dup.DuplicatedFrom)
	require.Equal(t, src.ID, *dup.DuplicatedFrom)
	// fizyczna kopia dostaje własny blob
	require.NotNil(t, dup.BlobRef)
	require.NotEqual(t, *src.BlobRef, *dup.BlobRef)

	// kopia obciąża limit drugim rozmiarem
	user, err := testServer.store.GetUserByID(context.Background(), claims.UserID)
	require.NoError(t, err)
	require.Equal(t, 2*src.SizeBytes, user.StorageUsedBytes)
}

func TestAPI_DuplicateEntry_SharesBlob(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	rr := uploadFile(t, claims, "wspolny.bin", "application/octet-stream", "shared bytes", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var src models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &src))

	router := entryRouter()
	req := httptest.NewRequest("POST", "/files/"+src.ID+"/duplicate", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusCreated, rr.Code)

	var dup models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dup))
	require.Equal(t, "wspolny.bin (copy)", dup.Name)
	// duplikat wskazuje ten sam blob co źródło
	require.NotNil(t, dup.BlobRef)
	require.Equal(t, *src.BlobRef, *dup.BlobRef)

	// usunięcie duplikatu nie może zabrać blobu spod źródła
	req = httptest.NewRequest("DELETE", "/files/"+dup.ID, nil)
	deleteRR := httptest.NewRecorder()
	router.ServeHTTP(deleteRR, authedRequest(req, claims))
	require.Equal(t, http.StatusNoContent, deleteRR.Code)

	stream, err := testServer.storage.Open(*src.BlobRef)
	require.NoError(t, err)
	stream.Close()

	// po usunięciu źródła blob znika z dysku
	req = httptest.NewRequest("DELETE", "/files/"+src.ID, nil)
	deleteRR = httptest.NewRecorder()
	router.ServeHTTP(deleteRR, authedRequest(req, claims))
	require.Equal(t, http.StatusNoContent, deleteRR.Code)

	_, err = testServer.storage.Open(*src.BlobRef)
	require.Error(t, err)
}

func TestAPI_DeleteEntry_ReleasesQuota(t *testing.T) {
	claims := newUserClaims(t, 1<<30)
	content := "bytes to release"

	rr := uploadFile(t, claims, "do-usuniecia.txt", "text/plain", content, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var entry models.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))

	router := entryRouter()
	req := httptest.NewRequest("DELETE", "/files/"+entry.ID, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusNoContent, rr.Code)

	user, err := testServer.store.GetUserByID(context.Background(), claims.UserID)
	require.NoError(t, err)
	require.Equal(t, int64(0), user.StorageUsedBytes)

	// powtórne usunięcie zwraca 404
	req = httptest.NewRequest("DELETE", "/files/"+entry.ID, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_Calendar(t *testing.T) {
	claims := newUserClaims(t, 1<<30)

	rr := uploadFile(t, claims, "dzisiejszy.txt", "text/plain", "x", "")
	require.Equal(t, http.StatusCreated, rr.Code)

	// brak parametru date
	req := httptest.NewRequest("GET", "/api/v1/files/calendar", nil)
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.CalendarHandler).ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest("GET", "/api/v1/files/calendar?date=zly-format", nil)
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.CalendarHandler).ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_GetStorageUsage(t *testing.T) {
	claims := newUserClaims(t, 1<<30)
	content := "usage bytes"

	rr := uploadFile(t, claims, "zuzycie.txt", "text/plain", content, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	req := httptest.NewRequest("GET", "/api/v1/me/storage", nil)
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.GetStorageUsageHandler).ServeHTTP(rr, authedRequest(req, claims))
	require.Equal(t, http.StatusOK, rr.Code)

	var usage StorageUsageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &usage))
	require.Equal(t, int64(len(content)), usage.UsedBytes)
	require.Equal(t, int64(1<<30), usage.QuotaBytes)
	require.Equal(t, int64(1), usage.TotalEntries)
}
