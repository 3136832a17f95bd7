package progression

import (
	"encoding/json"
	"fmt"

	"veloskill/internal/store"
)

// ConditionType selects which statistic a mastery condition reads
type ConditionType string

const (
	ConditionTotal      ConditionType = "total"       // sum of metric over all rides
	ConditionSingleRide ConditionType = "single_ride" // best single ride on metric
	ConditionCount      ConditionType = "count"       // number of rides
	ConditionGeo        ConditionType = "geo"         // distinct countries
	ConditionRecord     ConditionType = "record"      // best single ride on metric
)

// Condition is a parsed mastery unlock rule
type Condition struct {
	Type       ConditionType `json:"type"`
	Metric     string        `json:"metric,omitempty"`
	Thresholds []float64     `json:"thresholds"`
}

// ParseCondition decodes and validates a JSON condition
func ParseCondition(raw string) (Condition, error) {
	var c Condition
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Condition{}, fmt.Errorf("decoding condition: %w", err)
	}
	return c, c.Validate()
}

// Validate checks that the condition can be evaluated
func (c Condition) Validate() error {
	switch c.Type {
	case ConditionTotal, ConditionSingleRide, ConditionRecord:
		if c.Metric == "" {
			return fmt.Errorf("condition %q needs a metric", c.Type)
		}
	case ConditionCount, ConditionGeo:
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	if len(c.Thresholds) == 0 {
		return fmt.Errorf("condition %q has no thresholds", c.Type)
	}
	return nil
}

// Stats holds activity totals and maxima, keyed by metric name
type Stats map[string]float64

// Stat keys
const (
	StatDistanceKm     = "distance_km"
	StatElevationM     = "elevation_m"
	StatDurationH      = "duration_h"
	StatAvgPower       = "avg_power"
	StatRides          = "rides"
	StatCountriesCount = "countries_count"

	maxSuffix = "_max"
)

// ComputeStats aggregates an activity history for mastery evaluation
func ComputeStats(activities []store.Activity) Stats {
	s := Stats{
		StatDistanceKm:             0,
		StatElevationM:             0,
		StatDurationH:              0,
		StatAvgPower:               0,
		StatRides:                  float64(len(activities)),
		StatDistanceKm + maxSuffix: 0,
		StatElevationM + maxSuffix: 0,
		StatDurationH + maxSuffix:  0,
		StatAvgPower + maxSuffix:   0,
	}

	countries := make(map[string]struct{})
	var powerSum float64
	var powerRides int

	for _, a := range activities {
		hours := float64(a.DurationS) / 3600

		s[StatDistanceKm] += a.DistanceKm
		s[StatElevationM] += a.ElevationM
		s[StatDurationH] += hours

		s.keepMax(StatDistanceKm, a.DistanceKm)
		s.keepMax(StatElevationM, a.ElevationM)
		s.keepMax(StatDurationH, hours)

		if a.AvgPowerW != nil {
			powerSum += *a.AvgPowerW
			powerRides++
			s.keepMax(StatAvgPower, *a.AvgPowerW)
		}
		if a.Country != "" {
			countries[a.Country] = struct{}{}
		}
	}

	if powerRides > 0 {
		s[StatAvgPower] = powerSum / float64(powerRides)
	}
	s[StatCountriesCount] = float64(len(countries))
	return s
}

func (s Stats) keepMax(metric string, v float64) {
	if v > s[metric+maxSuffix] {
		s[metric+maxSuffix] = v
	}
}

// Value returns the statistic the condition is measured against
func (c Condition) Value(s Stats) float64 {
	switch c.Type {
	case ConditionTotal:
		return s[c.Metric]
	case ConditionSingleRide, ConditionRecord:
		return s[c.Metric+maxSuffix]
	case ConditionCount:
		return s[StatRides]
	case ConditionGeo:
		return s[StatCountriesCount]
	}
	return 0
}

// Level returns the number of thresholds met
func (c Condition) Level(s Stats) int {
	v := c.Value(s)
	level := 0
	for _, t := range c.Thresholds {
		if v >= t {
			level++
		}
	}
	return level
}
