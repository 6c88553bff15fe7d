package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"chmura-plikow/internal/database"
	"chmura-plikow/internal/models"
)

var validKinds = map[string]bool{
	models.EntryKindFile:   true,
	models.EntryKindFolder: true,
	models.EntryKindNote:   true,
	models.EntryKindImage:  true,
	models.EntryKindPDF:    true,
}

// ListEntriesHandler obsługuje główny widok plików: filtry po rodzaju,
// folderze, ulubionych i fragmencie nazwy, z paginacją. Parametr recent=true
// przełącza na listę ostatnio modyfikowanych i pomija paginację.
func (s *Server) ListEntriesHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	limit, offset := parsePagination(r)

	params := database.ListEntriesParams{
		OwnerID: claims.UserID,
		Limit:   limit,
		Offset:  offset,
	}

	if kind := r.URL.Query().Get("type"); kind != "" {
		if !validKinds[kind] {
			http.Error(w, "Invalid type filter", http.StatusBadRequest)
			return
		}
		params.Kind = &kind
	}

	if folderID := r.URL.Query().Get("folder_id"); folderID != "" {
		if folderID == "root" {
			params.RootOnly = true
		} else {
			params.ParentID = &folderID
		}
	}

	if r.URL.Query().Get("favorites") == "true" {
		params.FavoritesOnly = true
	}

	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		params.NameQuery = &q
	}

	var entries []models.Entry
	var err error
	if r.URL.Query().Get("recent") == "true" {
		entries, err = s.store.ListRecent(r.Context(), params)
	} else {
		entries, err = s.store.ListEntries(r.Context(), params)
	}
	if err != nil {
		http.Error(w, "Failed to list entries", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) ListFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	entries, err := s.store.ListFavorites(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "Failed to list favorites", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) RecentHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	entries, err := s.store.ListRecent(r.Context(), database.ListEntriesParams{OwnerID: claims.UserID})
	if err != nil {
		http.Error(w, "Failed to list recent entries", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// CalendarHandler zwraca wpisy utworzone danego dnia (doba liczona w UTC).
func (s *Server) CalendarHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		http.Error(w, "date parameter required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	day, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "Invalid date format, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	entries, err := s.store.ListByDay(r.Context(), claims.UserID, day)
	if err != nil {
		http.Error(w, "Failed to list entries for day", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) SharedWithMeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	limit, offset := parsePagination(r)

	entries, err := s.store.ListSharedWithUser(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		http.Error(w, "Failed to list shared entries", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
