package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// EventKind names a progression event worth telling the user about
type EventKind string

const (
	EventLevelUp            EventKind = "level_up"
	EventChallengeCompleted EventKind = "challenge_completed"
	EventChallengeExpired   EventKind = "challenge_expired"
	EventRewardXP           EventKind = "reward_xp"
	EventBadgeGranted       EventKind = "badge_granted"
	EventMasteryUnlocked    EventKind = "mastery_unlocked"
	EventSyncFailed         EventKind = "sync_failed"
)

// Event is a notification emitted by the services
type Event struct {
	Kind        EventKind `json:"kind"`
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id,omitempty"`
	MasteryID   string    `json:"mastery_id,omitempty"`
	BadgeSlug   string    `json:"badge_slug,omitempty"`
	Level       int       `json:"level,omitempty"`
	XP          int64     `json:"xp,omitempty"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier receives progression events. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// LogNotifier writes events to a logrus logger
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(_ context.Context, ev Event) {
	fields := logrus.Fields{
		"event":   string(ev.Kind),
		"user_id": ev.UserID,
	}
	if ev.ChallengeID != "" {
		fields["challenge_id"] = ev.ChallengeID
	}
	if ev.MasteryID != "" {
		fields["mastery_id"] = ev.MasteryID
	}
	if ev.BadgeSlug != "" {
		fields["badge"] = ev.BadgeSlug
	}
	if ev.Level != 0 {
		fields["level"] = ev.Level
	}
	if ev.XP != 0 {
		fields["xp"] = ev.XP
	}
	entry := n.Log.WithFields(fields)
	if ev.Kind == EventSyncFailed {
		entry.Warn(ev.Message)
		return
	}
	entry.Info(ev.Message)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}
