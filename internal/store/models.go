package store

import "time"

// SyncState holds a user's feed credentials and sync watermark
type SyncState struct {
	UserID          string
	AthleteID       int64
	AccessToken     string
	RefreshToken    string
	ExpiresAt       time.Time
	InitialSyncDone bool
	LastFullSync    *time.Time // nullable, watermark for incremental fetches
	ResumePage      int        // page to restart from after an aborted run, 0 when none
	ResumeSince     *time.Time // start of the first aborted run since the last completed one
}

// SyncStatePatch lists the SyncState fields to change; nil fields are left alone
type SyncStatePatch struct {
	AccessToken     *string
	RefreshToken    *string
	ExpiresAt       *time.Time
	InitialSyncDone *bool
	LastFullSync    *time.Time
	ResumePage      *int // 0 also clears ResumeSince
	ResumeSince     *time.Time
}

// Activity is an imported ride
type Activity struct {
	UserID          string
	RemoteID        int64
	Name            string
	SportType       string
	StartDate       time.Time // UTC
	StartDateLocal  time.Time // wall clock of the athlete, tagged UTC
	DistanceKm      float64
	ElevationM      float64
	DurationS       int      // moving time
	AvgSpeedKmh     *float64 // nullable
	AvgPowerW       *float64 // nullable
	MaxPowerW       *float64 // nullable
	AvgHeartrate    *float64 // nullable
	AvgCadence      *float64 // nullable
	Kilojoules      *float64 // nullable
	SummaryPolyline string
	Location        string
	Country         string
	Trainer         bool
	Manual          bool
	DeviceName      string
	RawDetail       string // detail payload as returned by the feed
}

// TrackPoint is one kept sample of a GPS track
type TrackPoint struct {
	Seq       int // index in the original stream
	Lat       float64
	Lng       float64
	Altitude  *float64 // meters
	Watts     *float64
	Heartrate *int
	Cadence   *int
	DistanceM *float64 // cumulative meters
	TimeS     *int     // seconds from start
}

// SegmentEffort is the best effort on a segment within one activity
type SegmentEffort struct {
	UserID       string
	ActivityID   int64
	SegmentID    int64
	Name         string
	DistanceM    *float64
	AverageGrade *float64
	StartLat     *float64
	StartLng     *float64
	EndLat       *float64
	EndLng       *float64
	ElapsedTime  *int // seconds
}

// XPSnapshot caches the four axis XP totals
type XPSnapshot struct {
	UserID      string
	Endurance   int64
	Explosivity int64
	Mental      int64
	Strategy    int64
	LastUpdate  time.Time
}

// GlobalProgress is a user's aggregate XP and level
type GlobalProgress struct {
	UserID     string     `json:"user_id"`
	TotalXP    int64      `json:"total_xp"`
	Level      int        `json:"level"`
	LastUpdate *time.Time `json:"last_update"` // nullable, last throttled recompute
}

// ChallengeType selects the metric a challenge sums
type ChallengeType string

const (
	ChallengeDistance  ChallengeType = "distance"  // km
	ChallengeElevation ChallengeType = "elevation" // m
	ChallengeTime      ChallengeType = "time"      // minutes
)

// AttemptStatus is the lifecycle state of a challenge attempt
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "en_cours"
	StatusSucceeded  AttemptStatus = "reussi"
	StatusFailed     AttemptStatus = "echoue"
	StatusExpired    AttemptStatus = "expire"

	// StatusLocked is derived for display and never persisted
	StatusLocked AttemptStatus = "locked"
)

// Challenge is a boss from the catalog
type Challenge struct {
	ID            string        `json:"id"`
	Slug          string        `json:"slug"`
	Name          string        `json:"name"`
	Rider         string        `json:"rider,omitempty"`
	Type          ChallengeType `json:"type"`
	Target        float64       `json:"target"`
	LevelRequired int           `json:"level_required"`
	Reward        string        `json:"reward,omitempty"` // e.g. "+1000 XP"
	StartAt       *time.Time    `json:"start_at,omitempty"`
	EndAt         *time.Time    `json:"end_at,omitempty"`
	Active        bool          `json:"active"`
}

// TimeBoxed reports whether the challenge only runs within an event window
func (c Challenge) TimeBoxed() bool {
	return c.StartAt != nil && c.EndAt != nil
}

// ChallengeAttempt tracks a user's progress on one challenge
type ChallengeAttempt struct {
	UserID      string
	ChallengeID string
	Score       float64
	BestScore   float64
	Status      AttemptStatus
	StartedAt   time.Time // set at first unlock, never changes
	UpdatedAt   time.Time
}

// Badge is a catalog entry keyed by slug
type Badge struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Type        string `json:"type"`
}

// UserBadge is a granted badge
type UserBadge struct {
	Badge
	UserID    string    `json:"user_id"`
	GrantedAt time.Time `json:"granted_at"`
}

// Mastery is a skill unlock from the catalog; Condition holds the raw JSON condition
type Mastery struct {
	ID        string
	Name      string
	Category  string
	Condition string
}

// UserMastery is the level a user reached on a mastery
type UserMastery struct {
	UserID     string
	MasteryID  string
	Level      int
	UnlockedAt time.Time
}
