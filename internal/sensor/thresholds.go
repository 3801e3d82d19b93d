package sensor

import (
	"fmt"
)

// ThresholdProfile holds the alert ceilings for one sensor type.
type ThresholdProfile struct {
	Average               float64 `mapstructure:"average"`
	SingleReading         float64 `mapstructure:"single_reading"`
	SingleIncreaseChange  float64 `mapstructure:"single_increase_change"`
	AverageIncreaseChange float64 `mapstructure:"average_increase_change"`
	// Precision is the number of decimal places used when an average is
	// rendered in an outbound message. It never affects evaluation.
	Precision int32 `mapstructure:"precision"`
}

// DefaultProfiles mirrors the thresholds the deployed sensors were tuned for.
func DefaultProfiles() map[Type]ThresholdProfile {
	return map[Type]ThresholdProfile{
		Temperature: {Average: 80, SingleReading: 80, SingleIncreaseChange: 10, AverageIncreaseChange: 10, Precision: 1},
		Humidity:    {Average: 40, SingleReading: 20, SingleIncreaseChange: 17, AverageIncreaseChange: 9, Precision: 1},
		AirQuality:  {Average: 35, SingleReading: 90, SingleIncreaseChange: 15, AverageIncreaseChange: 11, Precision: 0},
	}
}

// Catalog is the immutable set of threshold profiles, one per sensor type.
type Catalog struct {
	profiles map[Type]ThresholdProfile
}

// NewCatalog copies profiles into a catalog. Every supported type must be
// present so no reading silently falls back to another type's thresholds.
func NewCatalog(profiles map[Type]ThresholdProfile) (*Catalog, error) {
	copied := make(map[Type]ThresholdProfile, len(profiles))
	for _, t := range Types {
		p, ok := profiles[t]
		if !ok {
			return nil, fmt.Errorf("missing threshold profile for %s", t)
		}
		if p.Precision < 0 {
			return nil, fmt.Errorf("thresholds.%s.precision cannot be negative", t)
		}
		copied[t] = p
	}
	return &Catalog{profiles: copied}, nil
}

// Profile returns the profile for t.
func (c *Catalog) Profile(t Type) (ThresholdProfile, bool) {
	if c == nil {
		return ThresholdProfile{}, false
	}
	p, ok := c.profiles[t]
	return p, ok
}
