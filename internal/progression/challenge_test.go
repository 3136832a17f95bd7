package progression

import (
	"testing"
	"time"

	"veloskill/internal/store"
)

func TestChallengeScore_NoBackdating(t *testing.T) {
	unlock := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	activities := []store.Activity{
		{DistanceKm: 50, StartDate: unlock.Add(-24 * time.Hour)},
		{DistanceKm: 10, StartDate: unlock.Add(24 * time.Hour)},
	}

	if got := ChallengeScore(store.ChallengeDistance, activities, unlock); got != 10 {
		t.Errorf("ChallengeScore() = %v, want 10", got)
	}
}

func TestChallengeScore_Metrics(t *testing.T) {
	since := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	activities := []store.Activity{
		{DistanceKm: 40, ElevationM: 800, DurationS: 5400, StartDate: since},
		{DistanceKm: 20, ElevationM: 200, DurationS: 1800, StartDate: since.Add(time.Hour)},
	}

	tests := []struct {
		typ  store.ChallengeType
		want float64
	}{
		{store.ChallengeDistance, 60},
		{store.ChallengeElevation, 1000},
		{store.ChallengeTime, 120},
		{store.ChallengeType("unknown"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := ChallengeScore(tt.typ, activities, since); got != tt.want {
				t.Errorf("ChallengeScore(%s) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestNextStatus(t *testing.T) {
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)
	boxed := store.Challenge{Target: 100, StartAt: &start, EndAt: &end}
	open := store.Challenge{Target: 100}

	tests := []struct {
		name  string
		prev  store.AttemptStatus
		c     store.Challenge
		score float64
		now   time.Time
		want  store.AttemptStatus
	}{
		{"open below target", store.StatusInProgress, open, 50, end, store.StatusInProgress},
		{"open reaches target", store.StatusInProgress, open, 100, end, store.StatusSucceeded},
		{"before window", store.StatusInProgress, boxed, 0, start.Add(-time.Hour), store.StatusInProgress},
		{"inside window", store.StatusInProgress, boxed, 20, start.Add(time.Hour), store.StatusInProgress},
		{"window closed", store.StatusInProgress, boxed, 20, end.Add(time.Second), store.StatusExpired},
		{"success overrides expiry", store.StatusInProgress, boxed, 100, end.Add(time.Second), store.StatusSucceeded},
		{"success is sticky", store.StatusSucceeded, boxed, 0, end.Add(time.Hour), store.StatusSucceeded},
		{"expire is terminal", store.StatusExpired, boxed, 150, end.Add(time.Hour), store.StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextStatus(tt.prev, tt.c, tt.score, tt.now); got != tt.want {
				t.Errorf("NextStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseRewardXP(t *testing.T) {
	tests := []struct {
		reward string
		want   int64
		ok     bool
	}{
		{"+1000 XP", 1000, true},
		{"Badge + +250xp", 250, true},
		{"+ 50 XP", 0, false},
		{"+0 XP", 0, false},
		{"Maillot jaune", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseRewardXP(tt.reward)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRewardXP(%q) = (%d, %v), want (%d, %v)", tt.reward, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBadgeSlug(t *testing.T) {
	if got := BadgeSlug(store.Challenge{ID: "42", Slug: "ventoux"}); got != "boss-ventoux" {
		t.Errorf("BadgeSlug() = %q, want boss-ventoux", got)
	}
	if got := BadgeSlug(store.Challenge{ID: "42"}); got != "boss-42" {
		t.Errorf("BadgeSlug() = %q, want boss-42", got)
	}
}
