package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"veloskill/internal/progression"
	"veloskill/internal/store"
)

// MasteryView is one catalog mastery with the user's level on it
type MasteryView struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Category   string                `json:"category"`
	Condition  progression.Condition `json:"condition"`
	Level      int                   `json:"level"`
	MaxLevel   int                   `json:"max_level"`
	Value      float64               `json:"value"`
	NextTarget *float64              `json:"next_target,omitempty"`
	UnlockedAt *time.Time            `json:"unlocked_at,omitempty"`
}

// MasteryService evaluates mastery conditions against the activity history
type MasteryService struct {
	store    *store.Store
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time

	mu     sync.Mutex
	parsed map[string]parsedCondition // by mastery id
}

type parsedCondition struct {
	raw  string
	cond progression.Condition
}

// NewMasteryService creates a mastery service
func NewMasteryService(st *store.Store, n Notifier, log logrus.FieldLogger) *MasteryService {
	if n == nil {
		n = nopNotifier{}
	}
	return &MasteryService{
		store:    st,
		notifier: n,
		log:      log,
		now:      time.Now,
		parsed:   make(map[string]parsedCondition),
	}
}

// condition returns the parsed condition of a mastery, parsing it only when
// the stored text changed
func (m *MasteryService) condition(ms store.Mastery) (progression.Condition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pc, ok := m.parsed[ms.ID]; ok && pc.raw == ms.Condition {
		return pc.cond, nil
	}
	cond, err := progression.ParseCondition(ms.Condition)
	if err != nil {
		return progression.Condition{}, err
	}
	m.parsed[ms.ID] = parsedCondition{raw: ms.Condition, cond: cond}
	return cond, nil
}

// Refresh evaluates every mastery and stores raised levels.
// Returns the ids of masteries whose level went up.
func (m *MasteryService) Refresh(ctx context.Context, sess Session) ([]string, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	now := m.now()

	masteries, err := m.store.ListMasteries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing masteries: %w", err)
	}
	activities, err := m.store.GetActivitiesForUser(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}
	stats := progression.ComputeStats(activities)

	var raised []string
	var errs []error
	for _, ms := range masteries {
		cond, err := m.condition(ms)
		if err != nil {
			errs = append(errs, fmt.Errorf("mastery %s: %w", ms.ID, err))
			continue
		}
		level := cond.Level(stats)
		if level == 0 {
			continue
		}

		up, err := m.store.UpsertUserMastery(ctx, sess.UserID, ms.ID, level, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("mastery %s: %w", ms.ID, err))
			continue
		}
		if !up {
			continue
		}

		raised = append(raised, ms.ID)
		masteryUnlocksTotal.Inc()
		m.notifier.Notify(ctx, Event{
			Kind:      EventMasteryUnlocked,
			UserID:    sess.UserID,
			MasteryID: ms.ID,
			Level:     level,
			Message:   fmt.Sprintf("%s level %d", ms.Name, level),
			At:        now,
		})
		m.log.WithFields(logrus.Fields{
			"user_id":    sess.UserID,
			"mastery_id": ms.ID,
			"level":      level,
		}).Info("Mastery level reached")
	}
	return raised, errors.Join(errs...)
}

// List returns the mastery catalog with the user's stored levels and current values
func (m *MasteryService) List(ctx context.Context, sess Session) ([]MasteryView, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}

	masteries, err := m.store.ListMasteries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing masteries: %w", err)
	}
	owned, err := m.store.ListUserMasteries(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing user masteries: %w", err)
	}
	activities, err := m.store.GetActivitiesForUser(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}
	stats := progression.ComputeStats(activities)

	byID := make(map[string]store.UserMastery, len(owned))
	for _, um := range owned {
		byID[um.MasteryID] = um
	}

	out := make([]MasteryView, 0, len(masteries))
	for _, ms := range masteries {
		cond, err := m.condition(ms)
		if err != nil {
			m.log.WithError(err).WithField("mastery_id", ms.ID).Warn("Skipping invalid mastery")
			continue
		}
		v := MasteryView{
			ID:        ms.ID,
			Name:      ms.Name,
			Category:  ms.Category,
			Condition: cond,
			MaxLevel:  len(cond.Thresholds),
			Value:     cond.Value(stats),
		}
		if um, ok := byID[ms.ID]; ok {
			v.Level = um.Level
			v.UnlockedAt = &um.UnlockedAt
		}
		if v.Level < len(cond.Thresholds) {
			next := cond.Thresholds[v.Level]
			v.NextTarget = &next
		}
		out = append(out, v)
	}
	return out, nil
}
