package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"veloskill/internal/progression"
	"veloskill/internal/store"
)

// Axis names used as keys in XPView.Levels
const (
	AxisEndurance   = "endurance"
	AxisExplosivity = "explosivity"
	AxisMental      = "mental"
	AxisStrategy    = "strategy"
)

// XPView is the axis XP of a user with display levels
type XPView struct {
	UserID     string                           `json:"user_id"`
	Axes       progression.Axes                 `json:"axes"`
	Levels     map[string]progression.LevelInfo `json:"levels"`
	LastUpdate time.Time                        `json:"last_update"`
	Fresh      bool                             `json:"fresh"` // computed by this call
	Global     *GlobalUpdate                    `json:"global,omitempty"`
}

// GlobalUpdate is the outcome of one global progress update
type GlobalUpdate struct {
	GainedXP      int64 `json:"gained_xp"`
	TotalXP       int64 `json:"total_xp"`
	Level         int   `json:"level"`
	PreviousLevel int   `json:"previous_level"`
	LeveledUp     bool  `json:"leveled_up"`
	Throttled     bool  `json:"throttled"`
}

// ProgressionService caches axis XP and maintains global progress
type ProgressionService struct {
	store    *store.Store
	notifier Notifier
	log      logrus.FieldLogger
	opts     ProgressionOptions
	now      func() time.Time
}

// NewProgressionService creates a progression service
func NewProgressionService(st *store.Store, n Notifier, log logrus.FieldLogger, opts ProgressionOptions) *ProgressionService {
	if n == nil {
		n = nopNotifier{}
	}
	return &ProgressionService{store: st, notifier: n, log: log, opts: opts, now: time.Now}
}

// GetOrComputeXP returns the cached snapshot while it is younger than the TTL,
// otherwise recomputes it. Only a recompute touches global progress.
func (p *ProgressionService) GetOrComputeXP(ctx context.Context, sess Session) (*XPView, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}

	snap, err := p.store.GetXPSnapshot(ctx, sess.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return p.recompute(ctx, sess.UserID)
	case err != nil:
		return nil, fmt.Errorf("loading xp snapshot: %w", err)
	}

	if p.now().Sub(snap.LastUpdate) > p.opts.SnapshotTTL {
		return p.recompute(ctx, sess.UserID)
	}

	return newXPView(sess.UserID, progression.Axes{
		Endurance:   snap.Endurance,
		Explosivity: snap.Explosivity,
		Mental:      snap.Mental,
		Strategy:    snap.Strategy,
	}, snap.LastUpdate, false), nil
}

// RecomputeXPNow recomputes the snapshot regardless of its age
func (p *ProgressionService) RecomputeXPNow(ctx context.Context, sess Session) (*XPView, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	return p.recompute(ctx, sess.UserID)
}

func (p *ProgressionService) recompute(ctx context.Context, userID string) (*XPView, error) {
	activities, err := p.store.GetActivitiesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}

	axes := progression.ScoreActivities(activities)
	now := p.now()

	if err := p.store.UpsertXPSnapshot(ctx, &store.XPSnapshot{
		UserID:      userID,
		Endurance:   axes.Endurance,
		Explosivity: axes.Explosivity,
		Mental:      axes.Mental,
		Strategy:    axes.Strategy,
		LastUpdate:  now,
	}); err != nil {
		return nil, fmt.Errorf("saving xp snapshot: %w", err)
	}

	view := newXPView(userID, axes, now, true)

	global, err := p.UpdateGlobal(ctx, userID, axes, len(activities))
	if err != nil {
		return view, fmt.Errorf("updating global progress: %w", err)
	}
	view.Global = global

	p.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"activities": len(activities),
		"gained_xp":  global.GainedXP,
		"throttled":  global.Throttled,
	}).Info("Recomputed XP")
	return view, nil
}

// UpdateGlobal adds the XP of a recompute to the user's total.
// Within the throttle window the stored totals are returned with no gain.
func (p *ProgressionService) UpdateGlobal(ctx context.Context, userID string, axes progression.Axes, activityCount int) (*GlobalUpdate, error) {
	now := p.now()

	gp, err := p.store.GetGlobalProgress(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		gp = &store.GlobalProgress{UserID: userID, Level: progression.GlobalLevel(0)}
	} else if err != nil {
		return nil, err
	}

	if gp.LastUpdate != nil && now.Sub(*gp.LastUpdate) < p.opts.GlobalThrottle {
		return &GlobalUpdate{
			TotalXP:       gp.TotalXP,
			Level:         gp.Level,
			PreviousLevel: gp.Level,
			Throttled:     true,
		}, nil
	}

	gained := max(0, progression.GainedXP(activityCount, axes))
	prevLevel := gp.Level

	gp.TotalXP += gained
	gp.Level = progression.GlobalLevel(gp.TotalXP)
	gp.LastUpdate = &now

	if err := p.store.UpsertGlobalProgress(ctx, gp); err != nil {
		return nil, err
	}
	globalXPAwardedTotal.WithLabelValues("recompute").Add(float64(gained))

	update := &GlobalUpdate{
		GainedXP:      gained,
		TotalXP:       gp.TotalXP,
		Level:         gp.Level,
		PreviousLevel: prevLevel,
		LeveledUp:     gp.Level > prevLevel,
	}
	if update.LeveledUp {
		p.notifier.Notify(ctx, Event{
			Kind:    EventLevelUp,
			UserID:  userID,
			Level:   gp.Level,
			XP:      gp.TotalXP,
			Message: fmt.Sprintf("Reached level %d", gp.Level),
			At:      now,
		})
	}
	return update, nil
}

// GetGlobalProgress returns the user's global XP and level; level 1 with no history
func (p *ProgressionService) GetGlobalProgress(ctx context.Context, sess Session) (*store.GlobalProgress, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	gp, err := p.store.GetGlobalProgress(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.GlobalProgress{UserID: sess.UserID, Level: progression.GlobalLevel(0)}, nil
	}
	return gp, err
}

func newXPView(userID string, axes progression.Axes, lastUpdate time.Time, fresh bool) *XPView {
	return &XPView{
		UserID: userID,
		Axes:   axes,
		Levels: map[string]progression.LevelInfo{
			AxisEndurance:   progression.Describe(axes.Endurance),
			AxisExplosivity: progression.Describe(axes.Explosivity),
			AxisMental:      progression.Describe(axes.Mental),
			AxisStrategy:    progression.Describe(axes.Strategy),
		},
		LastUpdate: lastUpdate,
		Fresh:      fresh,
	}
}
