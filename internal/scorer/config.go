// Package scorer ranks reference areas against a free-text query: metric
// normalization, the first-match-wins scoring rule table and the reason
// generator.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// NormalizerPolicy weights the base score inputs.
type NormalizerPolicy struct {
	PopulationDivisor float64 `yaml:"population_divisor" mapstructure:"population_divisor"`
	PopulationWeight  float64 `yaml:"population_weight" mapstructure:"population_weight"`
	TransportWeight   float64 `yaml:"transport_weight" mapstructure:"transport_weight"`
}

// DefaultNormalizerPolicy returns the fixed base score weights.
func DefaultNormalizerPolicy() NormalizerPolicy {
	return NormalizerPolicy{
		PopulationDivisor: 1500,
		PopulationWeight:  0.6,
		TransportWeight:   0.4,
	}
}

// ReasonPolicy holds the thresholds behind the justification strings. The
// values mirror the scoring rule tiers but are configured separately so that
// changing one never silently changes the other.
type ReasonPolicy struct {
	PopulationHigh   int      `yaml:"population_high" mapstructure:"population_high"`
	PopulationGood   int      `yaml:"population_good" mapstructure:"population_good"`
	BusinessHigh     int      `yaml:"business_high" mapstructure:"business_high"`
	BusinessModerate int      `yaml:"business_moderate" mapstructure:"business_moderate"`
	TransitExcellent float64  `yaml:"transit_excellent" mapstructure:"transit_excellent"`
	TransitGood      float64  `yaml:"transit_good" mapstructure:"transit_good"`
	DiningTerms      []string `yaml:"dining_terms" mapstructure:"dining_terms"`
	DiningPopulation int      `yaml:"dining_population" mapstructure:"dining_population"`
	DiningBusiness   int      `yaml:"dining_business" mapstructure:"dining_business"`
}

// DefaultReasonPolicy returns the standard reason thresholds.
func DefaultReasonPolicy() ReasonPolicy {
	return ReasonPolicy{
		PopulationHigh:   10000,
		PopulationGood:   7000,
		BusinessHigh:     80,
		BusinessModerate: 60,
		TransitExcellent: 8,
		TransitGood:      6,
		DiningTerms:      []string{"restaurant", "food", "dining", "pizza"},
		DiningPopulation: 8000,
		DiningBusiness:   70,
	}
}

// ValidateNormalizerPolicy checks that base score weights are usable.
func ValidateNormalizerPolicy(p NormalizerPolicy) error {
	var errs []string
	if p.PopulationDivisor <= 0 {
		errs = append(errs, "population_divisor must be > 0")
	}
	if p.PopulationWeight < 0 || p.TransportWeight < 0 {
		errs = append(errs, "weights must be >= 0")
	}
	if sum := p.PopulationWeight + p.TransportWeight; sum > 1.0001 {
		errs = append(errs, fmt.Sprintf("weights must sum to <= 1, got %.2f", sum))
	}
	if len(errs) > 0 {
		return eris.Errorf("scorer: normalizer policy validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateReasonPolicy checks that each tier pair is ordered.
func ValidateReasonPolicy(p ReasonPolicy) error {
	var errs []string
	if p.PopulationHigh < p.PopulationGood {
		errs = append(errs, "population_high must be >= population_good")
	}
	if p.BusinessHigh < p.BusinessModerate {
		errs = append(errs, "business_high must be >= business_moderate")
	}
	if p.TransitExcellent < p.TransitGood {
		errs = append(errs, "transit_excellent must be >= transit_good")
	}
	if len(errs) > 0 {
		return eris.Errorf("scorer: reason policy validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
