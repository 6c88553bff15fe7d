package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"chmura-plikow/internal/auth"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/jaevor/go-nanoid"
)

// classifyKind wybiera rodzaj wpisu: najpierw po typie MIME, a gdy go brak -
// po rozszerzeniu nazwy pliku.
func classifyKind(originalName, mimeType string) string {
	if mimeType == "" {
		switch strings.ToLower(filepath.Ext(originalName)) {
		case ".pdf":
			return models.EntryKindPDF
		case ".doc", ".docx", ".txt", ".md":
			return models.EntryKindNote
		case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
			return models.EntryKindImage
		}
		return models.EntryKindFile
	}

	if strings.HasPrefix(mimeType, "image/") {
		return models.EntryKindImage
	}
	if mimeType == "application/pdf" {
		return models.EntryKindPDF
	}
	switch mimeType {
	case "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain",
		"text/markdown":
		return models.EntryKindNote
	}
	return models.EntryKindFile
}

// entryIDLength to długość identyfikatorów nanoid nadawanych wpisom.
const entryIDLength = 21

func isValidEntryID(id string) bool {
	return len(id) == entryIDLength
}

func (s *Server) generateUniqueID(ctx context.Context) (string, error) {
	maxRetries := 10

	generateID, err := nanoid.Standard(entryIDLength)
	if err != nil {
		return "", fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}

	for i := 0; i < maxRetries; i++ {
		id := generateID()
		exists, err := s.store.EntryExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check for entry existence: %w", err)
		}
		if !exists {
			return id, nil
		}
	}

	return "", fmt.Errorf("failed to generate a unique ID after %d attempts", maxRetries)
}

func (s *Server) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<30)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing multipart form", http.StatusBadRequest)
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	parentIDStr := r.FormValue("parent_id")
	var parentID *string
	if parentIDStr != "" {
		if !isValidEntryID(parentIDStr) {
			http.Error(w, "Invalid parent_id format", http.StatusBadRequest)
			return
		}
		parentID = &parentIDStr
	}

	entryID, err := s.generateUniqueID(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	mimeType := handler.Header.Get("Content-Type")
	kind := classifyKind(handler.Filename, mimeType)
	sizeBytes := handler.Size

	// Najpierw blob na dysk, potem rezerwacja miejsca i rekord w jednej
	// transakcji. Gdy transakcja padnie, blob jest sprzątany - nieudany
	// upload nie zostawia ani rekordu, ani pliku.
	blobRef, err := s.storage.Save(handler.Filename, file)
	if err != nil {
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	var entry *models.Entry
	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		if err := q.ReserveStorage(r.Context(), claims.UserID, sizeBytes); err != nil {
			return err
		}

		var mimePtr *string
		if mimeType != "" {
			mimePtr = &mimeType
		}

		var err error
		entry, err = q.CreateEntry(r.Context(), database.CreateEntryParams{
			ID:        entryID,
			OwnerID:   claims.UserID,
			ParentID:  parentID,
			Name:      handler.Filename,
			Kind:      kind,
			MimeType:  mimePtr,
			SizeBytes: sizeBytes,
			BlobRef:   &blobRef,
		})
		if err != nil {
			return err
		}

		return q.LogEvent(r.Context(), claims.UserID, "entry_created", entry)
	})

	if txErr != nil {
		if delErr := s.storage.Delete(blobRef); delErr != nil {
			log.Printf("WARN: Failed to clean up blob %s after failed upload: %v", blobRef, delErr)
		}
		switch {
		case errors.Is(txErr, database.ErrQuotaExceeded):
			http.Error(w, "Storage quota exceeded", http.StatusBadRequest)
		case errors.Is(txErr, database.ErrParentNotFolder):
			http.Error(w, "Parent folder does not exist", http.StatusBadRequest)
		default:
			http.Error(w, "Failed to create file record", http.StatusInternalServerError)
		}
		return
	}

	s.publishEvent(claims.UserID, "entry_created", entry)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

type CreateNoteRequest struct {
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) CreateNoteHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "Title required", http.StatusBadRequest)
		return
	}

	entryID, err := s.generateUniqueID(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Treść notatki żyje w rekordzie i nie obciąża limitu miejsca.
	var entry *models.Entry
	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		var err error
		entry, err = q.CreateEntry(r.Context(), database.CreateEntryParams{
			ID:       entryID,
			OwnerID:  claims.UserID,
			ParentID: req.ParentID,
			Name:     req.Title,
			Kind:     models.EntryKindNote,
			Content:  &req.Content,
		})
		if err != nil {
			return err
		}
		return q.LogEvent(r.Context(), claims.UserID, "entry_created", entry)
	})

	if txErr != nil {
		if errors.Is(txErr, database.ErrParentNotFolder) {
			http.Error(w, "Parent folder does not exist", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create note", http.StatusInternalServerError)
		return
	}

	s.publishEvent(claims.UserID, "entry_created", entry)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

type CreateFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) CreateFolderHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "Folder name cannot be empty", http.StatusBadRequest)
		return
	}

	if req.ParentID != nil && !isValidEntryID(*req.ParentID) {
		http.Error(w, "Invalid parent_id format", http.StatusBadRequest)
		return
	}

	entryID, err := s.generateUniqueID(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var entry *models.Entry
	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		var err error
		entry, err = q.CreateEntry(r.Context(), database.CreateEntryParams{
			ID:       entryID,
			OwnerID:  claims.UserID,
			ParentID: req.ParentID,
			Name:     req.Name,
			Kind:     models.EntryKindFolder,
		})
		if err != nil {
			return err
		}
		return q.LogEvent(r.Context(), claims.UserID, "entry_created", entry)
	})

	if txErr != nil {
		if errors.Is(txErr, database.ErrParentNotFolder) {
			http.Error(w, "Parent folder does not exist", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create folder", http.StatusInternalServerError)
		return
	}

	s.publishEvent(claims.UserID, "entry_created", entry)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

func (s *Server) GetEntryHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	entryID := chi.URLParam(r, "fileId")

	entry, err := s.store.GetEntryByID(r.Context(), entryID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve entry", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

func (s *Server) DownloadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	entryID := chi.URLParam(r, "fileId")

	entry, err := s.store.GetEntryByID(r.Context(), entryID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve entry", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if entry.BlobRef == nil {
		http.Error(w, "Entry has no binary content", http.StatusBadRequest)
		return
	}

	fileStream, err := s.storage.Open(*entry.BlobRef)
	if err != nil {
		http.Error(w, "File not found on storage", http.StatusInternalServerError)
		return
	}
	defer fileStream.Close()

	w.Header().Set("Content-Disposition", "attachment; filename=\""+entry.Name+"\"")
	if entry.MimeType != nil && *entry.MimeType != "" {
		w.Header().Set("Content-Type", *entry.MimeType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", entry.SizeBytes))

	// Nagłówki już poszły, więc błąd w trakcie strumieniowania można
	// najwyżej odnotować.
	if _, err := io.Copy(w, fileStream); err != nil {
		log.Printf("WARN: Failed to stream blob %s to client: %v", *entry.BlobRef, err)
	}
}

type RenameRequest struct {
	Name string `json:"name"`
}

func (s *Server) RenameEntryHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	entryID := chi.URLParam(r, "fileId")

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	newName := strings.TrimSpace(req.Name)
	if newName == "" {
		http.Error(w, "Name required", http.StatusBadRequest)
		return
	}

	var entry *models.Entry
	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		success, err := q.RenameEntry(r.Context(), entryID, claims.UserID, newName)
		if err != nil {
			return err
		}
		if !success {
			return database.ErrEntryNotFound
		}

		entry, err = q.GetEntryByID(r.Context(), entryID, claims.UserID)
		if err != nil {
			return err
		}
		return q.LogEvent(r.Context(), claims.UserID, "entry_renamed", entry)
	})

	if txErr != nil {
		if errors.Is(txErr, database.ErrEntryNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to rename entry", http.StatusInternalServerError)
		return
	}

	s.publishEvent(claims.UserID, "entry_renamed", entry)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

func (s *Server) ToggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	entryID := chi.URLParam(r, "fileId")

	entry, err := s.store.ToggleFavorite(r.Context(), entryID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to toggle favorite", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

type ShareRequest struct {
	UserID int64 `json:"user_id" example:"2"`
}

func (s *Server) ShareEntryHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	entryID := chi.URLParam(r, "fileId")

	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == 0 {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	if req.UserID == claims.UserID {
		http.Error(w, "Cannot share an entry with yourself", http.StatusBadRequest)
		return
	}

	entry, err := s.store.GetEntryByID(r.Context(), entryID, claims.UserID)
	if err != nil {
		http.Error(w, "Internal server error while checking entry ownership", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if err := s.store.ShareEntry(r.Context(), entryID, req.UserID); err != nil {
		if errors.Is(err, database.ErrRecipientNotFound) {
			http.Error(w, "Recipient user not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to share entry", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

type LockRequest struct {
	Lock    bool   `json:"lock"`
	LockKey string `json:"lock_key"`
}

// Blokada prywatności to wyłącznie metadane - żaden endpoint nie weryfikuje
// sekretu przy odczycie treści.
func (s *Server) LockEntryHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	entryID := chi.URLParam(r, "fileId")

	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var lockHash *string
	if req.Lock {
		if req.LockKey == "" {
			http.Error(w, "lock_key required to enable lock", http.StatusBadRequest)
			return
		}
		hashed, err := auth.HashPassword(req.LockKey)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		lockHash = &hashed
	}

	eventType := "entry_locked"
	if !req.Lock {
		eventType = "entry_unlocked"
	}

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		success, err := q.SetEntryLock(r.Context(), entryID, claims.UserID, lockHash)
		if err != nil {
			return err
		}
		if !success {
			return database.ErrEntryNotFound
		}
		return q.LogEvent(r.Context(), claims.UserID, eventType, map[string]string{"entry_id": entryID})
	})

	if txErr != nil {
		if errors.Is(txErr, database.ErrEntryNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update lock", http.StatusInternalServerError)
		return
	}

	s.publishEvent(claims.UserID, eventType, map[string]string{"entry_id": entryID})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// CopyEntryHandler duplikuje rekord i fizycznie kopiuje blob. Gdy kopia na
// dysku się nie powiedzie, duplikat i tak powstaje, wskazując blob źródła -
// świadomie degradujemy do "miękkiego" duplikatu zamiast zwracać błąd.
func (s *Server) CopyEntryHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	entryID := chi.URLParam(r, "fileId")

	src, err := s.store.GetEntryByID(r.Context(), entryID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve entry", http.StatusInternalServerError)
		return
	}
	if src == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	newBlobRef := src.BlobRef
	newSize := src.SizeBytes
	physicalCopy := false

	if src.BlobRef != nil {
		copiedRef, copiedSize, copyErr := s.storage.Copy(*src.BlobRef, src.Name)
		if copyErr != nil {
			log.Printf("WARN: Physical copy of blob %s failed, falling back to shared blob: %v", *src.BlobRef, copyErr)
		} else {
			newBlobRef = &copiedRef
			newSize = copiedSize
			physicalCopy = true
		}
	}

	newID, err := s.generateUniqueID(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var dup *models.Entry
	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		if newSize > 0 {
			if err := q.ReserveStorage(r.Context(), claims.UserID, newSize); err != nil {
				return err
			}
		}

		var err error
		dup, err = q.CreateEntry(r.Context(), database.CreateEntryParams{
			ID:             newID,
			OwnerID:        claims.UserID,
			ParentID:       src.ParentID,
			Name:           src.Name + " (copy)",
			Kind:           src.Kind,
			MimeType:       src.MimeType,
			SizeBytes:      newSize,
			BlobRef:        newBlobRef,
			Content:        src.Content,
			DuplicatedFrom: &src.ID,
			Metadata:       src.Metadata,
		})
		if err != nil {
			return err
		}
		return q.LogEvent(r.Context(), claims.UserID, "entry_copied", dup)
	})

	if txErr != nil {
		if physicalCopy {
			if delErr := s.storage.Delete(*newBlobRef); delErr != nil {
				log.Printf("WARN: Failed to clean up blob %s after failed copy: %v", *newBlobRef, delErr)
			}
		}
		if errors.Is(txErr, database.ErrQuotaExceeded) {
			http.Error(w, "Storage quota exceeded", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to copy entry", http.StatusInternalServerError)
		return
	}

	s.publishEvent(claims.UserID, "entry_copied", dup)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dup)
}

// DuplicateEntryHandler tworzy kopię samych metadanych: nowy wpis dzieli blob
// ze źródłem, ale rozmiar i tak obciąża limit konta.
func (s *Server) DuplicateEntryHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	entryID := chi.URLParam(r, "fileId")

	src, err := s.store.GetEntryByID(r.Context(), entryID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve entry", http.StatusInternalServerError)
		return
	}
	if src == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	newID, err := s.generateUniqueID(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var dup *models.Entry
	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		if src.SizeBytes > 0 {
			if err := q.ReserveStorage(r.Context(), claims.UserID, src.SizeBytes); err != nil {
				return err
			}
		}

		var err error
		dup, err = q.CreateEntry(r.Context(), database.CreateEntryParams{
			ID:             newID,
			OwnerID:        claims.UserID,
			ParentID:       src.ParentID,
			Name:           src.Name + " (copy)",
			Kind:           src.Kind,
			MimeType:       src.MimeType,
			SizeBytes:      src.SizeBytes,
			BlobRef:        src.BlobRef,
			DuplicatedFrom: &src.ID,
			Metadata:       src.Metadata,
		})
		if err != nil {
			return err
		}
		return q.LogEvent(r.Context(), claims.UserID, "entry_duplicated", dup)
	})

	if txErr != nil {
		if errors.Is(txErr, database.ErrQuotaExceeded) {
			http.Error(w, "Storage quota exceeded", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to duplicate entry", http.StatusInternalServerError)
		return
	}

	s.publishEvent(claims.UserID, "entry_duplicated", dup)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dup)
}

func (s *Server) DeleteEntryHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	entryID := chi.URLParam(r, "fileId")

	entry, err := s.store.GetEntryByID(r.Context(), entryID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve entry", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	txErr := s.store.ExecTx(r.Context(), func(q *database.Queries) error {
		success, err := q.DeleteEntryRow(r.Context(), entryID, claims.UserID)
		if err != nil {
			return err
		}
		if !success {
			return database.ErrEntryNotFound
		}

		if entry.BlobRef != nil && entry.SizeBytes > 0 {
			if err := q.ReleaseStorage(r.Context(), claims.UserID, entry.SizeBytes); err != nil {
				return err
			}
		}

		return q.LogEvent(r.Context(), claims.UserID, "entry_deleted", map[string]string{"entry_id": entryID})
	})

	if txErr != nil {
		if errors.Is(txErr, database.ErrEntryNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete entry", http.StatusInternalServerError)
		return
	}

	// Blob schodzi z dysku dopiero, gdy nie wskazuje go już żaden wpis
	// (duplikaty dzielą jeden plik). Niepowodzenie nie psuje operacji.
	if entry.BlobRef != nil {
		remaining, err := s.store.CountEntriesWithBlobRef(r.Context(), *entry.BlobRef)
		if err != nil {
			log.Printf("WARN: Failed to count blob references for %s: %v", *entry.BlobRef, err)
		} else if remaining == 0 {
			if err := s.storage.Delete(*entry.BlobRef); err != nil {
				log.Printf("WARN: Failed to delete blob %s from storage: %v", *entry.BlobRef, err)
			}
		}
	}

	s.publishEvent(claims.UserID, "entry_deleted", map[string]string{"entry_id": entryID})

	w.WriteHeader(http.StatusNoContent)
}
