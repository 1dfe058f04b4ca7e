package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/scorer"
	"github.com/sells-group/siteselect/internal/store"
)

// parameters describes the metrics a client can filter or rank on.
var parameters = map[string]string{
	"population_density":  "Number of people per square mile",
	"business_density":    "Number of existing businesses in area",
	"transport_score":     "Public transportation accessibility (1-10)",
	"property_values":     "Average property values in area",
	"tourist_attractions": "Number of tourist attractions nearby",
	"restaurant_density":  "Number of restaurants in area",
	"traffic_congestion":  "Traffic congestion level (1-10)",
}

type locationParams struct {
	PopulationDensity int     `json:"population_density"`
	BusinessDensity   int     `json:"business_density"`
	TransportScore    float64 `json:"transport_score"`
}

type locationDetails struct {
	Area            string         `json:"area"`
	Score           float64        `json:"score"`
	Parameters      locationParams `json:"parameters"`
	Recommendations []string       `json:"recommendations"`
}

func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := s.store.ListAreas(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]model.ReferenceArea, 0, len(areas))
	for _, a := range areas {
		out = append(out, a.Area)
	}
	writeOK(w, map[string]any{"areas": out}, "Areas retrieved")
}

func (s *Server) handleCounties(w http.ResponseWriter, _ *http.Request) {
	counties := s.ref.CountyNames()
	writeOK(w, map[string]any{"counties": counties}, fmt.Sprintf("Found %d counties", len(counties)))
}

func (s *Server) handleParameters(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]any{"parameters": parameters}, "Available parameters retrieved successfully")
}

// handleLocation reports the latest metric of one area, with zeros when the
// area has none.
func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	area, err := s.store.GetArea(r.Context(), name)
	if eris.Is(err, store.ErrNotFound) {
		writeFail(w, http.StatusNotFound, "Area not found")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	details := locationDetails{Area: area.Name, Recommendations: []string{}}
	m, err := s.store.GetAreaMetric(r.Context(), area.Name)
	switch {
	case err == nil:
		details.Score = scorer.BaseScore(*m)
		details.Parameters = locationParams{
			PopulationDensity: m.PopulationDensity,
			BusinessDensity:   m.BusinessDensity,
			TransportScore:    m.TransportScore,
		}
		policy := scorer.DefaultReasonPolicy()
		details.Recommendations = policy.MetricReasons(*m)
		if len(details.Recommendations) == 0 {
			details.Recommendations = policy.FallbackReasons(*m)
		}
	case eris.Is(err, store.ErrNotFound):
	default:
		writeError(w, r, err)
		return
	}

	writeOK(w, details, "Location details for "+name)
}

func (s *Server) handleVenues(w http.ResponseWriter, r *http.Request) {
	venues := s.ref.VenuesByCategory(r.URL.Query().Get("category"))
	if venues == nil {
		venues = []model.PointOfInterest{}
	}
	writeOK(w, map[string]any{"venues": venues}, fmt.Sprintf("Found %d venues", len(venues)))
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	res, err := s.etl.Seed(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Database seeded with %d areas", res.Areas),
		"status":  "success",
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	res, err := s.etl.DiscoverCities(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, res, fmt.Sprintf(
		"Discovered %d new cities, updated %d existing cities. Total: %d major SoCal cities.",
		res.Created, res.Updated, res.Total))
}

// handleCensusPopulation is kept for clients of the retired population job.
func (s *Server) handleCensusPopulation(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"message": "Use /etl/cities/discover instead"},
		"Population data is now handled by the city discovery endpoint")
}

func (s *Server) handleTransport(w http.ResponseWriter, r *http.Request) {
	res, err := s.etl.UpdateTransport(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, res, fmt.Sprintf("Updated transportation scores for %d areas", res.Updated))
}

func (s *Server) handleApartments(w http.ResponseWriter, r *http.Request) {
	res, err := s.etl.UpdateApartments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, res, fmt.Sprintf("Updated apartment counts for %d areas (%d from census)", res.Updated, res.Live))
}
