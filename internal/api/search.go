package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/auth"
	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/search"
)

type searchRequest struct {
	model.Query
	Filters  *model.Filters `json:"filters,omitempty"`
	Category string         `json:"category,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	recs, err := s.search.Search(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.recordSearch(r.Context(), req, len(recs))
	writeOK(w, map[string]any{"recommendations": recs},
		fmt.Sprintf("Found %d locations matching '%s'", len(recs), req.Query.Query))
}

func (s *Server) handleAISearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.search.AISearch(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.recordSearch(r.Context(), req, len(res.Recommendations))
	writeOK(w, res,
		fmt.Sprintf("AI-powered search found %d locations matching '%s'", len(res.Recommendations), req.Query.Query))
}

func (s *Server) handleAdvancedSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var f model.Filters
	if req.Filters != nil {
		f = *req.Filters
	}
	recs, err := s.search.AdvancedSearch(r.Context(), req.Query, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.recordSearch(r.Context(), req, len(recs))
	writeOK(w, map[string]any{"recommendations": recs, "filters_applied": f},
		fmt.Sprintf("Advanced search found %d locations matching '%s'", len(recs), req.Query.Query))
}

func (s *Server) handleVenueSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	recs, err := s.search.VenueSearch(r.Context(), req.Query, search.VenueFilters{Category: req.Category})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.recordSearch(r.Context(), req, len(recs))
	writeOK(w, map[string]any{"recommendations": recs},
		fmt.Sprintf("Found %d venues matching '%s'", len(recs), req.Query.Query))
}

// recordSearch appends the search to the caller's history when the request
// is authenticated. Failures are logged and do not affect the response.
func (s *Server) recordSearch(ctx context.Context, req searchRequest, results int) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return
	}
	q := search.Normalize(req.Query)
	h := &model.SearchHistory{
		UserID:       id.User.ID,
		Query:        req.Query.Query,
		BusinessType: q.BusinessType,
		ResultsCount: results,
	}
	if req.Filters != nil {
		if b, err := json.Marshal(req.Filters); err == nil {
			h.FiltersUsed = b
		}
	}
	if err := s.store.AddSearchHistory(ctx, h); err != nil {
		s.log.Warn("api: record search history", zap.Int64("user_id", id.User.ID), zap.Error(err))
	}
}
