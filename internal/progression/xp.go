package progression

import (
	"math"
	"time"

	"veloskill/internal/store"
)

// Axes holds the XP of the four progression tracks
type Axes struct {
	Endurance   int64 `json:"endurance"`
	Explosivity int64 `json:"explosivity"`
	Mental      int64 `json:"mental"`
	Strategy    int64 `json:"strategy"`
}

// Sum returns the XP across all axes
func (a Axes) Sum() int64 {
	return a.Endurance + a.Explosivity + a.Mental + a.Strategy
}

// Scoring constants
const (
	enduranceKmFactor   = 20.0
	enduranceHourFactor = 200.0
	longRideKm          = 100.0
	longRideBonus       = 500.0

	powerFloorW        = 150.0
	powerFactor        = 1.5
	climbFactor        = 0.3
	bigClimbM          = 1500.0
	bigClimbBonus      = 400.0
	mentalHourFactor   = 150.0
	weekendBonus       = 200.0
	epicRideS          = 4 * 3600
	epicRideBonus      = 300.0
	strategySpeedScale = 15.0
	strategyPowerScale = 10.0
)

// ScoreActivities maps an activity history to axis XP.
// The result is deterministic and depends on nothing but its input.
func ScoreActivities(activities []store.Activity) Axes {
	var endurance, explosivity, mental, strategy float64

	for _, a := range activities {
		hours := float64(a.DurationS) / 3600

		endurance += a.DistanceKm*enduranceKmFactor + hours*enduranceHourFactor
		if a.DistanceKm > longRideKm {
			endurance += longRideBonus
		}

		if a.AvgPowerW != nil {
			explosivity += math.Max(0, *a.AvgPowerW-powerFloorW) * powerFactor
		}
		explosivity += a.ElevationM * climbFactor
		if a.ElevationM > bigClimbM {
			explosivity += bigClimbBonus
		}

		mental += hours * mentalHourFactor
		if isWeekend(a.StartDateLocal) {
			mental += weekendBonus
		}
		if a.DurationS > epicRideS {
			mental += epicRideBonus
		}

		strategy += AverageSpeedKmh(a.DistanceKm, a.DurationS) * strategySpeedScale
		if a.AvgPowerW != nil {
			strategy += *a.AvgPowerW / strategyPowerScale
		}
	}

	return Axes{
		Endurance:   int64(math.Round(endurance)),
		Explosivity: int64(math.Round(explosivity)),
		Mental:      int64(math.Round(mental)),
		Strategy:    int64(math.Round(strategy)),
	}
}

// AverageSpeedKmh recomputes speed from distance and moving time, 0 when there is no duration
func AverageSpeedKmh(distanceKm float64, durationS int) float64 {
	if durationS <= 0 {
		return 0
	}
	return distanceKm / (float64(durationS) / 3600)
}

// isWeekend checks the wall-clock weekday of a local start time
func isWeekend(local time.Time) bool {
	wd := local.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
