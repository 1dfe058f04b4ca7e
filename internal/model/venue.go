package model

// PointOfInterest is a venue (e.g. an Olympic competition site) joined to its
// nearest reference area at query time.
type PointOfInterest struct {
	Name      string  `json:"name" yaml:"name"`
	Category  string  `json:"category" yaml:"category"`
	Venue     string  `json:"venue" yaml:"venue"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}
