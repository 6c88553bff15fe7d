package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPage  = 1
	defaultLimit = 24
)

// parsePagination czyta 1-indeksowane parametry page/limit (domyślnie 1/24)
// i zwraca limit oraz offset = (page-1)*limit.
func parsePagination(r *http.Request) (int, int) {
	page := defaultPage
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}

	limit := defaultLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	return limit, (page - 1) * limit
}

func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.GetPool().Ping(r.Context()); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
