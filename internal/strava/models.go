package strava

import (
	"encoding/json"
	"time"
)

// Activity represents a Strava activity summary from the listing endpoint.
// Optional numeric fields are pointers so a missing value stays distinct from zero.
type Activity struct {
	ID                 int64     `json:"id"`
	Athlete            Athlete   `json:"athlete"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	Distance           float64   `json:"distance"`             // meters
	MovingTime         int       `json:"moving_time"`          // seconds
	ElapsedTime        int       `json:"elapsed_time"`         // seconds
	TotalElevationGain float64   `json:"total_elevation_gain"` // meters
	AverageSpeed       float64   `json:"average_speed"`        // m/s
	MaxSpeed           float64   `json:"max_speed"`            // m/s
	AverageWatts       *float64  `json:"average_watts"`
	MaxWatts           *float64  `json:"max_watts"`
	Kilojoules         *float64  `json:"kilojoules"`
	AverageHeartrate   *float64  `json:"average_heartrate"` // bpm
	AverageCadence     *float64  `json:"average_cadence"`   // rpm
	Trainer            bool      `json:"trainer"`
	Manual             bool      `json:"manual"`
	DeviceName         string    `json:"device_name"`
	LocationCity       string    `json:"location_city"`
	LocationCountry    string    `json:"location_country"`
	Map                Map       `json:"map"`
}

// Athlete represents a Strava athlete (minimal info in activity response)
type Athlete struct {
	ID int64 `json:"id"`
}

// Map carries the encoded route of an activity
type Map struct {
	SummaryPolyline string `json:"summary_polyline"`
}

// ActivityDetail is the full activity returned by the detail endpoint
type ActivityDetail struct {
	Activity
	Calories       *float64        `json:"calories"`
	SegmentEfforts []SegmentEffort `json:"segment_efforts"`

	// Raw is the undecoded payload
	Raw json.RawMessage `json:"-"`
}

// SegmentEffort is one pass over a segment during an activity
type SegmentEffort struct {
	ID          int64   `json:"id"`
	ElapsedTime int     `json:"elapsed_time"` // seconds
	Segment     Segment `json:"segment"`
}

// Segment describes a Strava segment
type Segment struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Distance     float64   `json:"distance"` // meters
	AverageGrade float64   `json:"average_grade"`
	StartLatLng  []float64 `json:"start_latlng"`
	EndLatLng    []float64 `json:"end_latlng"`
}

// Streams represents activity stream data from the API
// Strava returns streams keyed by type when key_by_type=true
type Streams struct {
	Time      *StreamData[int]        `json:"time"`
	LatLng    *StreamData[[2]float64] `json:"latlng"`
	Altitude  *StreamData[float64]    `json:"altitude"`
	Watts     *StreamData[*float64]   `json:"watts"`
	Heartrate *StreamData[int]        `json:"heartrate"`
	Cadence   *StreamData[int]        `json:"cadence"`
	Distance  *StreamData[float64]    `json:"distance"`
}

// StreamData represents a single stream type
type StreamData[T any] struct {
	Data         []T    `json:"data"`
	SeriesType   string `json:"series_type"`
	OriginalSize int    `json:"original_size"`
	Resolution   string `json:"resolution"`
}

// Len returns the number of GPS samples, or 0 if there is no track
func (s *Streams) Len() int {
	if s == nil || s.LatLng == nil {
		return 0
	}
	return len(s.LatLng.Data)
}

// HasTrack returns true if a GPS track exists
func (s *Streams) HasTrack() bool {
	return s.Len() > 0
}
