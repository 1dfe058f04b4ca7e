package model

// Filters is the multi-criteria predicate set for advanced search. Nil bounds
// are not enforced.
type Filters struct {
	Counties             []string   `json:"counties,omitempty"`
	PopulationDensityMin *float64   `json:"population_density_min,omitempty"`
	PopulationDensityMax *float64   `json:"population_density_max,omitempty"`
	BusinessDensityMin   *float64   `json:"business_density_min,omitempty"`
	BusinessDensityMax   *float64   `json:"business_density_max,omitempty"`
	TransportScoreMin    *float64   `json:"transport_score_min,omitempty"`
	TransportScoreMax    *float64   `json:"transport_score_max,omitempty"`
	ApartmentCountMin    *float64   `json:"apartment_count_min,omitempty"`
	ApartmentCountMax    *float64   `json:"apartment_count_max,omitempty"`
	RadiusMinMiles       *float64   `json:"radius_min_miles,omitempty"`
	RadiusMaxMiles       *float64   `json:"radius_max_miles,omitempty"`
	MapBounds            *MapBounds `json:"map_bounds,omitempty"`
}

// MapBounds is a lat/lon bounding box. Unset sides default to the full globe.
type MapBounds struct {
	North *float64 `json:"north,omitempty"`
	South *float64 `json:"south,omitempty"`
	East  *float64 `json:"east,omitempty"`
	West  *float64 `json:"west,omitempty"`
}

// Query is a search request.
type Query struct {
	Query        string `json:"query"`
	BusinessType string `json:"business_type"`
}

// Recommendation is one ranked search result.
type Recommendation struct {
	Area              string     `json:"area"`
	Score             float64    `json:"score"`
	Reasons           []string   `json:"reasons"`
	Coordinates       [2]float64 `json:"coordinates"`
	BusinessDensity   int        `json:"business_density"`
	PopulationDensity int        `json:"population_density"`
	TransportScore    float64    `json:"transport_score"`
	ApartmentCount    *int       `json:"apartment_count"`

	// Venue search only.
	NearestArea string   `json:"nearest_area,omitempty"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
	Category    string   `json:"category,omitempty"`

	// AI search only.
	KeyFactors       []string `json:"key_factors,omitempty"`
	BusinessInsights string   `json:"business_insights,omitempty"`
}

// Provenance records which path produced an AI search result.
type Provenance string

const (
	ProvenanceAI       Provenance = "ai"
	ProvenanceFallback Provenance = "fallback"
)

// Intent is the structured reading of a free-text query.
type Intent struct {
	UserIntent           string   `json:"user_intent"`
	LocationPreferences  []string `json:"location_preferences"`
	BusinessRequirements []string `json:"business_requirements"`
}

// AIInsights accompanies AI search results.
type AIInsights struct {
	UserIntent           string     `json:"user_intent"`
	LocationPreferences  []string   `json:"location_preferences"`
	BusinessRequirements []string   `json:"business_requirements"`
	AIAvailable          bool       `json:"ai_available"`
	Provenance           Provenance `json:"provenance"`
}

// AIResult is the AI search response payload.
type AIResult struct {
	Recommendations []Recommendation `json:"recommendations"`
	Insights        *AIInsights      `json:"ai_insights,omitempty"`
}

// AdvisorPick is one recommendation returned by the AI re-ranker.
type AdvisorPick struct {
	AreaName         string   `json:"area_name"`
	ConfidenceScore  float64  `json:"confidence_score"`
	Reasoning        string   `json:"reasoning"`
	KeyFactors       []string `json:"key_factors"`
	BusinessInsights string   `json:"business_insights"`
}
