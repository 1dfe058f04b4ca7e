package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/sells-group/siteselect/internal/auth"
	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/store"
)

// maxHistoryLimit caps the limit query parameter.
const maxHistoryLimit = 100

type historyRequest struct {
	Query        string          `json:"query"`
	BusinessType string          `json:"business_type"`
	FiltersUsed  json.RawMessage `json:"filters_used,omitempty"`
	ResultsCount int             `json:"results_count"`
}

func (s *Server) handleAddHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeFail(w, http.StatusBadRequest, "query is required")
		return
	}
	filters := req.FiltersUsed
	if string(filters) == "null" {
		filters = nil
	}

	id, _ := auth.FromContext(r.Context())
	h := &model.SearchHistory{
		UserID:       id.User.ID,
		Query:        req.Query,
		BusinessType: req.BusinessType,
		FiltersUsed:  filters,
		ResultsCount: req.ResultsCount,
	}
	if err := s.store.AddSearchHistory(r.Context(), h); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeFail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	id, _ := auth.FromContext(r.Context())
	items, err := s.store.ListSearchHistory(r.Context(), id.User.ID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.SearchHistory{}
	}
	writeJSON(w, http.StatusOK, items)
}
