package models

import (
	"encoding/json"
	"time"
)

// Rodzaje wpisów. Foldery nie mają treści binarnej, notatki trzymają
// tekst bezpośrednio w rekordzie.
const (
	EntryKindFile   = "file"
	EntryKindFolder = "folder"
	EntryKindNote   = "note"
	EntryKindImage  = "image"
	EntryKindPDF    = "pdf"
)

type Entry struct {
	ID             string          `json:"id"`
	OwnerID        int64           `json:"owner_id"`
	ParentID       *string         `json:"parent_id"`
	Name           string          `json:"name"`
	Kind           string          `json:"kind"`
	MimeType       *string         `json:"mime_type,omitempty"`
	SizeBytes      int64           `json:"size_bytes"`
	BlobRef        *string         `json:"blob_ref,omitempty"`
	Content        *string         `json:"content,omitempty"`
	IsFavorite     bool            `json:"is_favorite"`
	IsPrivate      bool            `json:"is_private"`
	LockHash       *string         `json:"-"`
	DuplicatedFrom *string         `json:"duplicated_from,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ModifiedAt     time.Time       `json:"modified_at"`
}
