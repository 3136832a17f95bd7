package progression

import (
	"regexp"
	"strconv"
	"time"

	"veloskill/internal/store"
)

// ChallengeScore sums the challenge metric over activities started at or after since.
// Distance is in km, elevation in m and time in minutes.
func ChallengeScore(typ store.ChallengeType, activities []store.Activity, since time.Time) float64 {
	var score float64
	for _, a := range activities {
		if a.StartDate.Before(since) {
			continue
		}
		switch typ {
		case store.ChallengeDistance:
			score += a.DistanceKm
		case store.ChallengeElevation:
			score += a.ElevationM
		case store.ChallengeTime:
			score += float64(a.DurationS) / 60
		}
	}
	return score
}

// NextStatus decides the status of an attempt after a scoring run.
//
// reussi and expire are terminal. For time-boxed challenges the window is
// checked first and a reached target then overrides expiry.
func NextStatus(prev store.AttemptStatus, c store.Challenge, score float64, now time.Time) store.AttemptStatus {
	switch prev {
	case store.StatusSucceeded, store.StatusExpired:
		return prev
	}

	status := store.StatusInProgress
	if c.TimeBoxed() && now.After(*c.EndAt) {
		status = store.StatusExpired
	}
	if score >= c.Target {
		status = store.StatusSucceeded
	}
	return status
}

var rewardXPRe = regexp.MustCompile(`(?i)\+(\d+)\s*XP`)

// ParseRewardXP extracts the "+<n> XP" bonus from a reward descriptor
func ParseRewardXP(reward string) (int64, bool) {
	m := rewardXPRe.FindStringSubmatch(reward)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// BadgeSlug returns the badge catalog key earned by completing a challenge
func BadgeSlug(c store.Challenge) string {
	slug := c.Slug
	if slug == "" {
		slug = c.ID
	}
	return "boss-" + slug
}
