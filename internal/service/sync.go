package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"veloskill/internal/auth"
	"veloskill/internal/cache"
	"veloskill/internal/store"
	"veloskill/internal/strava"
)

// Mode is the sync state of a user before a run
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeUpToDate    Mode = "up_to_date"
)

// DetermineMode picks the sync mode from the stored state.
// A zero threshold never reports ModeUpToDate.
func DetermineMode(st *store.SyncState, now time.Time, threshold time.Duration) Mode {
	if !st.InitialSyncDone || st.LastFullSync == nil {
		return ModeFull
	}
	if threshold > 0 && st.ResumePage == 0 && now.Sub(*st.LastFullSync) < threshold {
		return ModeUpToDate
	}
	return ModeIncremental
}

// SyncResult contains the results of one user's sync
type SyncResult struct {
	RunID                string    `json:"run_id"`
	UserID               string    `json:"user_id"`
	Mode                 Mode      `json:"mode"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
	PagesFetched         int       `json:"pages_fetched"`
	ActivitiesFetched    int       `json:"activities_fetched"`
	ActivitiesImported   int       `json:"activities_imported"`
	ActivitiesSkipped    int       `json:"activities_skipped"`
	TrackPointsStored    int       `json:"track_points_stored"`
	SegmentEffortsStored int       `json:"segment_efforts_stored"`
	RateLimited          bool      `json:"rate_limited"`
	CooldownRetries      int       `json:"cooldown_retries"`
	Completed            bool      `json:"completed"`
	ResumePage           int       `json:"resume_page,omitempty"`
	Errors               []error   `json:"-"`
	ErrorMessages        []string  `json:"errors,omitempty"`
}

func (r *SyncResult) addError(err error) {
	r.Errors = append(r.Errors, err)
	r.ErrorMessages = append(r.ErrorMessages, err.Error())
}

// SyncService orchestrates importing activities from the feed into the store
type SyncService struct {
	feed      Feed
	refresher TokenRefresher
	store     *store.Store
	cache     cache.Cache
	notifier  Notifier
	log       logrus.FieldLogger
	opts      SyncOptions

	group singleflight.Group
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewSyncService creates a sync service. A nil cache or notifier disables them.
func NewSyncService(feed Feed, refresher TokenRefresher, st *store.Store, c cache.Cache, n Notifier, log logrus.FieldLogger, opts SyncOptions) *SyncService {
	if c == nil {
		c = cache.Nop{}
	}
	if n == nil {
		n = nopNotifier{}
	}
	return &SyncService{
		feed:      feed,
		refresher: refresher,
		store:     st,
		cache:     c,
		notifier:  n,
		log:       log,
		opts:      opts,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// RunSync imports new activities for the session user right away.
// Concurrent calls for the same user share one run.
func (s *SyncService) RunSync(ctx context.Context, sess Session) (*SyncResult, error) {
	return s.runShared(ctx, sess, interactiveThreshold)
}

// SyncIfNeeded runs an interactive sync unless the last completed one is recent
func (s *SyncService) SyncIfNeeded(ctx context.Context, sess Session) (*SyncResult, error) {
	return s.runShared(ctx, sess, s.opts.RefreshThreshold)
}

// LastResult returns the cached result of the user's previous run
func (s *SyncService) LastResult(ctx context.Context, sess Session) (*SyncResult, bool, error) {
	if err := sess.validate(); err != nil {
		return nil, false, err
	}
	var res SyncResult
	ok, err := s.cache.GetJSON(ctx, cache.LastSyncKey(sess.UserID), &res)
	if err != nil || !ok {
		return nil, false, err
	}
	return &res, true, nil
}

func (s *SyncService) runShared(ctx context.Context, sess Session, threshold time.Duration) (*SyncResult, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do(sess.UserID, func() (interface{}, error) {
		return s.runUser(ctx, sess.UserID, true, threshold, uuid.NewString())
	})
	res, _ := v.(*SyncResult)
	return res, err
}

// UserOutcome is one user's line in a batch run
type UserOutcome struct {
	UserID    string      `json:"user_id"`
	Skipped   bool        `json:"skipped"`
	Cooldown  string      `json:"cooldown,omitempty"`
	Result    *SyncResult `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

// BatchResult summarizes a scheduled run over all connected users
type BatchResult struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Users      []UserOutcome `json:"users"`
	Failed     int           `json:"failed"`
}

// RunScheduledSyncAll syncs every connected user in turn.
// A failure or rate limit for one user never stops the others.
func (s *SyncService) RunScheduledSyncAll(ctx context.Context) (*BatchResult, error) {
	batch := &BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}
	log := s.log.WithField("run_id", batch.RunID)

	states, err := s.store.ListSyncStates(ctx)
	if err != nil {
		return batch, fmt.Errorf("listing connected users: %w", err)
	}

	for _, st := range states {
		select {
		case <-ctx.Done():
			batch.FinishedAt = s.now()
			return batch, ctx.Err()
		default:
		}

		out := UserOutcome{UserID: st.UserID}

		remaining, err := s.cache.Cooldown(ctx, st.UserID)
		if err != nil {
			log.WithError(err).WithField("user_id", st.UserID).Warn("Reading cooldown failed")
		}
		if remaining > 0 {
			out.Skipped = true
			out.Cooldown = remaining.Round(time.Second).String()
			syncRunsTotal.WithLabelValues("batch", "cooldown").Inc()
			batch.Users = append(batch.Users, out)
			continue
		}

		res, err := s.runUser(ctx, st.UserID, false, 0, batch.RunID)
		out.Result = res
		if err != nil {
			out.Error = err.Error()
			out.ErrorKind = errorKind(err)
			batch.Failed++
		}
		if res != nil && res.RateLimited {
			if err := s.cache.SetCooldown(ctx, st.UserID, s.opts.RateLimitCooldown); err != nil {
				log.WithError(err).WithField("user_id", st.UserID).Warn("Setting cooldown failed")
			}
		}
		batch.Users = append(batch.Users, out)
	}

	batch.FinishedAt = s.now()
	log.WithFields(logrus.Fields{
		"users":  len(batch.Users),
		"failed": batch.Failed,
	}).Info("Scheduled sync finished")
	return batch, nil
}

// runUser performs one user's sync. Interactive runs sleep through rate limits
// up to MaxCooldownRetries times; batch runs stop and leave a resume page.
// A resumed run that completes takes the start of the first aborted run as
// its watermark.
func (s *SyncService) runUser(ctx context.Context, userID string, interactive bool, threshold time.Duration, runID string) (*SyncResult, error) {
	startedAt := s.now()
	result := &SyncResult{RunID: runID, UserID: userID, StartedAt: startedAt}
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "run_id": runID})

	st, err := s.store.GetSyncState(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return result, s.fail(ctx, result, ErrNotConnected)
	}
	if err != nil {
		return result, s.fail(ctx, result, fmt.Errorf("loading sync state: %w", err))
	}

	result.Mode = DetermineMode(st, startedAt, threshold)
	if result.Mode == ModeUpToDate {
		result.Completed = true
		result.FinishedAt = s.now()
		syncRunsTotal.WithLabelValues(string(result.Mode), "up_to_date").Inc()
		return result, nil
	}

	token, err := s.ensureToken(ctx, st)
	if err != nil {
		return result, s.fail(ctx, result, err)
	}

	var after time.Time
	if result.Mode == ModeIncremental {
		after = *st.LastFullSync
	}

	known, err := s.store.ExistingRemoteIDs(ctx, userID)
	if err != nil {
		return result, s.fail(ctx, result, fmt.Errorf("loading known activities: %w", err))
	}

	page := max(1, st.ResumePage)
	log.WithFields(logrus.Fields{
		"mode":  result.Mode,
		"page":  page,
		"known": len(known),
	}).Info("Starting sync")

	abort := func(cause error) (*SyncResult, error) {
		result.ResumePage = page
		patch := store.SyncStatePatch{ResumePage: &page}
		if st.ResumeSince == nil {
			// pages before the resume page are never re-read, so the
			// eventual watermark must not pass this run's start
			patch.ResumeSince = &startedAt
		}
		// the run may have been cancelled; the resume point must still land
		wctx := context.WithoutCancel(ctx)
		if err := s.store.UpdateSyncState(wctx, userID, patch); err != nil {
			result.addError(fmt.Errorf("saving resume page: %w", err))
		}
		if errors.Is(cause, strava.ErrRateLimited) {
			result.RateLimited = true
			rateLimitAbortsTotal.Inc()
			result.addError(cause)
			s.finish(wctx, result, "rate_limited")
			log.WithField("page", page).Warn("Rate limited, sync stopped")
			return result, nil
		}
		if errors.Is(cause, strava.ErrUnauthorized) {
			cause = fmt.Errorf("%w: %w", ErrReconnectRequired, cause)
		}
		return result, s.fail(wctx, result, cause)
	}

	// cooldown handles a rate limit; false means the run must stop
	cooldown := func() bool {
		if !interactive || result.CooldownRetries >= s.opts.MaxCooldownRetries {
			return false
		}
		result.CooldownRetries++
		log.WithFields(logrus.Fields{
			"page":     page,
			"cooldown": s.opts.RateLimitCooldown,
			"attempt":  result.CooldownRetries,
		}).Warn("Rate limited, waiting")
		return s.sleep(ctx, s.opts.RateLimitCooldown) == nil
	}

	for {
		select {
		case <-ctx.Done():
			return abort(ctx.Err())
		default:
		}

		activities, err := s.feed.ListActivities(ctx, token, after, page, s.opts.PageSize)
		if errors.Is(err, strava.ErrRateLimited) {
			if cooldown() {
				continue
			}
			return abort(err)
		}
		if err != nil {
			return abort(fmt.Errorf("fetching page %d: %w", page, err))
		}

		result.PagesFetched++
		result.ActivitiesFetched += len(activities)

		for _, a := range activities {
			if _, ok := known[a.ID]; ok {
				result.ActivitiesSkipped++
				continue
			}

			policyErr := s.importActivity(ctx, userID, token, a, result, log)
			known[a.ID] = struct{}{}

			if errors.Is(policyErr, strava.ErrRateLimited) {
				if !cooldown() {
					return abort(policyErr)
				}
				continue
			}
			if policyErr != nil {
				return abort(policyErr)
			}

			if err := s.sleep(ctx, s.opts.PacingDelay); err != nil {
				return abort(err)
			}
		}

		if len(activities) < s.opts.PageSize {
			break // last page
		}
		page++
	}

	done := true
	resume := 0
	watermark := startedAt
	if st.ResumeSince != nil && st.ResumeSince.Before(watermark) {
		watermark = *st.ResumeSince
	}
	if err := s.store.UpdateSyncState(ctx, userID, store.SyncStatePatch{
		InitialSyncDone: &done,
		LastFullSync:    &watermark,
		ResumePage:      &resume,
	}); err != nil {
		return result, s.fail(ctx, result, fmt.Errorf("saving watermark: %w", err))
	}

	result.Completed = true
	s.finish(ctx, result, "completed")
	log.WithFields(logrus.Fields{
		"imported": result.ActivitiesImported,
		"skipped":  result.ActivitiesSkipped,
		"errors":   len(result.Errors),
	}).Info("Sync completed")
	return result, nil
}

// importActivity stores one new activity. Detail, streams and segments are
// best-effort; a rate limit or authorization error is returned after the base
// record is written so the caller can apply its policy.
func (s *SyncService) importActivity(ctx context.Context, userID, token string, a strava.Activity, result *SyncResult, log logrus.FieldLogger) error {
	log = log.WithField("activity_id", a.ID)
	var policyErr error

	detail, err := s.feed.GetActivityDetail(ctx, token, a.ID)
	if err != nil {
		if isPolicyError(err) {
			policyErr = err
		}
		detail = nil
		result.addError(fmt.Errorf("activity %d detail: %w", a.ID, err))
		log.WithError(err).Warn("Fetching detail failed")
	}

	var streams *strava.Streams
	if policyErr == nil {
		streams, err = s.feed.GetActivityStreams(ctx, token, a.ID)
		if err != nil {
			if isPolicyError(err) {
				policyErr = err
			}
			streams = nil
			result.addError(fmt.Errorf("activity %d streams: %w", a.ID, err))
			log.WithError(err).Warn("Fetching streams failed")
		}
	}

	if err := s.store.UpsertActivity(ctx, convertActivity(userID, a, detail)); err != nil {
		result.addError(fmt.Errorf("storing activity %d: %w", a.ID, err))
		log.WithError(err).Error("Storing activity failed")
		return policyErr
	}
	result.ActivitiesImported++
	activitiesImportedTotal.Inc()

	if points := downsampleTrack(streams, s.opts.StreamStride); len(points) > 0 {
		if err := s.store.SaveTrackPoints(ctx, userID, a.ID, points); err != nil {
			result.addError(fmt.Errorf("saving track for %d: %w", a.ID, err))
		} else {
			result.TrackPointsStored += len(points)
		}
	}

	if detail != nil {
		if efforts := bestSegmentEfforts(userID, a.ID, detail.SegmentEfforts); len(efforts) > 0 {
			if err := s.store.UpsertSegmentEfforts(ctx, efforts); err != nil {
				result.addError(fmt.Errorf("saving segments for %d: %w", a.ID, err))
			} else {
				result.SegmentEffortsStored += len(efforts)
			}
		}
	}

	return policyErr
}

// ensureToken returns a usable access token, refreshing it when it is about to expire
func (s *SyncService) ensureToken(ctx context.Context, st *store.SyncState) (string, error) {
	if !auth.NeedsRefresh(st.ExpiresAt, s.now()) {
		return st.AccessToken, nil
	}
	if s.refresher == nil || st.RefreshToken == "" {
		return "", ErrReconnectRequired
	}

	tok, err := s.refresher.Refresh(ctx, st.RefreshToken)
	if errors.Is(err, auth.ErrInvalidGrant) {
		return "", fmt.Errorf("%w: %w", ErrReconnectRequired, err)
	}
	if err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}

	if err := s.store.UpdateSyncState(ctx, st.UserID, store.SyncStatePatch{
		AccessToken:  &tok.AccessToken,
		RefreshToken: &tok.RefreshToken,
		ExpiresAt:    &tok.Expiry,
	}); err != nil {
		return "", fmt.Errorf("saving refreshed token: %w", err)
	}
	s.log.WithField("user_id", st.UserID).Info("Refreshed access token")
	return tok.AccessToken, nil
}

// fail records a run-level error and notifies the user
func (s *SyncService) fail(ctx context.Context, result *SyncResult, err error) error {
	result.addError(err)
	s.finish(ctx, result, "failed")
	s.notifier.Notify(ctx, Event{
		Kind:    EventSyncFailed,
		UserID:  result.UserID,
		Message: errorKind(err),
		At:      s.now(),
	})
	s.log.WithError(err).WithField("user_id", result.UserID).Error("Sync failed")
	return err
}

func (s *SyncService) finish(ctx context.Context, result *SyncResult, outcome string) {
	result.FinishedAt = s.now()
	mode := string(result.Mode)
	if mode == "" {
		mode = "unknown"
	}
	syncRunsTotal.WithLabelValues(mode, outcome).Inc()
	syncDuration.WithLabelValues(mode).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())

	if err := s.cache.SetJSON(ctx, cache.LastSyncKey(result.UserID), result, lastSyncTTL); err != nil {
		s.log.WithError(err).WithField("user_id", result.UserID).Warn("Caching sync result failed")
	}
}

func isPolicyError(err error) bool {
	return errors.Is(err, strava.ErrRateLimited) || errors.Is(err, strava.ErrUnauthorized)
}
