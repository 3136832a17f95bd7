package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"veloskill/internal/store"
)

// Dashboard is everything the home screen shows after a refresh
type Dashboard struct {
	Sync       *SyncResult           `json:"sync,omitempty"`
	XP         *XPView               `json:"xp,omitempty"`
	Challenges *ProgressReport       `json:"challenges,omitempty"`
	Masteries  []string              `json:"masteries_raised,omitempty"`
	Global     *store.GlobalProgress `json:"global,omitempty"`
	Failures   map[string]string     `json:"failures,omitempty"` // step -> error kind
}

// DashboardService chains the refresh steps run when a user opens the app
type DashboardService struct {
	sync        *SyncService
	progression *ProgressionService
	challenges  *ChallengeService
	masteries   *MasteryService
	log         logrus.FieldLogger
}

// NewDashboardService creates a dashboard service
func NewDashboardService(sync *SyncService, prog *ProgressionService, ch *ChallengeService, ms *MasteryService, log logrus.FieldLogger) *DashboardService {
	return &DashboardService{
		sync:        sync,
		progression: prog,
		challenges:  ch,
		masteries:   ms,
		log:         log,
	}
}

// Refresh syncs when stale, then updates XP, challenges and masteries.
// A failed step is reported and the next steps run on the stored data.
func (d *DashboardService) Refresh(ctx context.Context, sess Session) (*Dashboard, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}

	dash := &Dashboard{Failures: make(map[string]string)}
	var errs []error
	record := func(step string, err error) {
		if err == nil {
			return
		}
		dash.Failures[step] = errorKind(err)
		errs = append(errs, fmt.Errorf("%s: %w", step, err))
		d.log.WithError(err).WithFields(logrus.Fields{
			"user_id": sess.UserID,
			"step":    step,
		}).Warn("Dashboard step failed")
	}

	var err error
	if d.sync != nil {
		dash.Sync, err = d.sync.SyncIfNeeded(ctx, sess)
		record("sync", err)
	}

	dash.XP, err = d.progression.GetOrComputeXP(ctx, sess)
	record("xp", err)

	dash.Challenges, err = d.challenges.UpdateProgress(ctx, sess)
	record("challenges", err)

	dash.Masteries, err = d.masteries.Refresh(ctx, sess)
	record("masteries", err)

	dash.Global, err = d.progression.GetGlobalProgress(ctx, sess)
	record("global", err)

	if len(dash.Failures) == 0 {
		dash.Failures = nil
	}
	return dash, errors.Join(errs...)
}
