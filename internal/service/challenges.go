package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"veloskill/internal/progression"
	"veloskill/internal/store"
)

// ChallengeStatus is a challenge as shown to one user
type ChallengeStatus struct {
	Challenge store.Challenge     `json:"challenge"`
	Status    store.AttemptStatus `json:"status"`
	Score     float64             `json:"score"`
	BestScore float64             `json:"best_score"`
	Progress  float64             `json:"progress"` // score over target, 0..1
	StartedAt *time.Time          `json:"started_at,omitempty"`
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
}

// RewardResult reports what a reward application changed
type RewardResult struct {
	BadgeSlug    string `json:"badge_slug"`
	BadgeGranted bool   `json:"badge_granted"`
	BonusXP      int64  `json:"bonus_xp"`
	XPApplied    bool   `json:"xp_applied"`
	TotalXP      int64  `json:"total_xp"`
	Level        int    `json:"level"`
}

// ProgressReport summarizes one challenge progress update
type ProgressReport struct {
	Level     int                      `json:"level"`
	Updated   int                      `json:"updated"`
	Locked    int                      `json:"locked"`
	Completed []string                 `json:"completed,omitempty"`
	Expired   []string                 `json:"expired,omitempty"`
	Rewards   map[string]*RewardResult `json:"rewards,omitempty"`
}

// ChallengeService tracks boss challenges and applies their rewards
type ChallengeService struct {
	store    *store.Store
	notifier Notifier
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewChallengeService creates a challenge service
func NewChallengeService(st *store.Store, n Notifier, log logrus.FieldLogger) *ChallengeService {
	if n == nil {
		n = nopNotifier{}
	}
	return &ChallengeService{store: st, notifier: n, log: log, now: time.Now}
}

// UpdateProgress rescores every unlocked challenge of the user.
// An attempt is created at first unlock; only later activities count towards it.
// Status transitions fire their side effects once.
func (c *ChallengeService) UpdateProgress(ctx context.Context, sess Session) (*ProgressReport, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	userID := sess.UserID
	now := c.now()

	level, err := c.globalLevel(ctx, userID)
	if err != nil {
		return nil, err
	}
	challenges, err := c.store.ListActiveChallenges(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing challenges: %w", err)
	}
	attempts, err := c.store.ListChallengeAttempts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	activities, err := c.store.GetActivitiesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading activities: %w", err)
	}

	report := &ProgressReport{Level: level, Rewards: make(map[string]*RewardResult)}
	var errs []error

	for _, ch := range challenges {
		log := c.log.WithFields(logrus.Fields{"user_id": userID, "challenge_id": ch.ID})

		if level < ch.LevelRequired {
			report.Locked++
			continue
		}

		prev, ok := attempts[ch.ID]
		if !ok {
			prev = store.ChallengeAttempt{
				UserID:      userID,
				ChallengeID: ch.ID,
				Status:      store.StatusInProgress,
				StartedAt:   now,
			}
		}

		score := progression.ChallengeScore(ch.Type, activities, prev.StartedAt)
		next := prev
		next.Score = score
		next.BestScore = math.Max(prev.BestScore, score)
		next.Status = progression.NextStatus(prev.Status, ch, score, now)
		next.UpdatedAt = now

		if err := c.store.UpsertChallengeAttempt(ctx, &next); err != nil {
			errs = append(errs, fmt.Errorf("challenge %s: %w", ch.ID, err))
			log.WithError(err).Error("Saving attempt failed")
			continue
		}
		report.Updated++

		entered := (ok && prev.Status != next.Status) || (!ok && next.Status != store.StatusInProgress)
		switch {
		case entered && next.Status == store.StatusSucceeded:
			challengesCompletedTotal.Inc()
			report.Completed = append(report.Completed, ch.ID)
			c.notifier.Notify(ctx, Event{
				Kind:        EventChallengeCompleted,
				UserID:      userID,
				ChallengeID: ch.ID,
				Message:     fmt.Sprintf("Defeated %s", displayName(ch)),
				At:          now,
			})
			log.Info("Challenge completed")
			fallthrough
		case next.Status == store.StatusSucceeded:
			// a crash between the attempt write and the reward leaves no grant row
			granted, err := c.store.HasRewardGrant(ctx, userID, ch.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("challenge %s: %w", ch.ID, err))
				continue
			}
			if granted {
				continue
			}
			rr, err := c.ApplyRewards(ctx, userID, ch)
			if err != nil {
				errs = append(errs, fmt.Errorf("rewarding challenge %s: %w", ch.ID, err))
				log.WithError(err).Error("Applying rewards failed")
				continue
			}
			report.Rewards[ch.ID] = rr
		case entered && next.Status == store.StatusExpired:
			report.Expired = append(report.Expired, ch.ID)
			c.notifier.Notify(ctx, Event{
				Kind:        EventChallengeExpired,
				UserID:      userID,
				ChallengeID: ch.ID,
				Message:     fmt.Sprintf("%s escaped", displayName(ch)),
				At:          now,
			})
			log.Info("Challenge expired")
		}
	}

	return report, errors.Join(errs...)
}

// ApplyRewards grants the challenge badge and its XP bonus.
// Repeated calls change nothing.
func (c *ChallengeService) ApplyRewards(ctx context.Context, userID string, ch store.Challenge) (*RewardResult, error) {
	now := c.now()
	rr := &RewardResult{BadgeSlug: progression.BadgeSlug(ch)}

	badgeID, err := c.store.EnsureBadge(ctx, &store.Badge{
		Slug:        rr.BadgeSlug,
		Title:       displayName(ch),
		Description: fmt.Sprintf("Completed the %s challenge", displayName(ch)),
		Type:        "boss",
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring badge: %w", err)
	}
	if rr.BadgeGranted, err = c.store.GrantBadge(ctx, userID, badgeID, now); err != nil {
		return nil, fmt.Errorf("granting badge: %w", err)
	}
	if rr.BadgeGranted {
		badgesGrantedTotal.Inc()
		c.notifier.Notify(ctx, Event{
			Kind:        EventBadgeGranted,
			UserID:      userID,
			ChallengeID: ch.ID,
			BadgeSlug:   rr.BadgeSlug,
			At:          now,
		})
	}

	// The grant row doubles as the completion marker, so it is written even without a bonus.
	bonus, _ := progression.ParseRewardXP(ch.Reward)
	prevLevel, err := c.globalLevel(ctx, userID)
	if err != nil {
		return nil, err
	}
	gp, applied, err := c.store.ApplyRewardXP(ctx, userID, ch.ID, bonus, now, progression.GlobalLevel)
	if err != nil {
		return nil, fmt.Errorf("applying reward xp: %w", err)
	}
	rr.TotalXP, rr.Level = gp.TotalXP, gp.Level

	if applied && bonus > 0 {
		rr.BonusXP, rr.XPApplied = bonus, true
		globalXPAwardedTotal.WithLabelValues("reward").Add(float64(bonus))
		c.notifier.Notify(ctx, Event{
			Kind:        EventRewardXP,
			UserID:      userID,
			ChallengeID: ch.ID,
			XP:          bonus,
			At:          now,
		})
		if gp.Level > prevLevel {
			c.notifier.Notify(ctx, Event{
				Kind:    EventLevelUp,
				UserID:  userID,
				Level:   gp.Level,
				XP:      gp.TotalXP,
				Message: fmt.Sprintf("Reached level %d", gp.Level),
				At:      now,
			})
		}
	}
	return rr, nil
}

// GetChallengeStatus lists every active challenge with the user's attempt on it.
// Challenges above the user's level are reported locked.
func (c *ChallengeService) GetChallengeStatus(ctx context.Context, sess Session) ([]ChallengeStatus, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}

	level, err := c.globalLevel(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	challenges, err := c.store.ListActiveChallenges(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing challenges: %w", err)
	}
	attempts, err := c.store.ListChallengeAttempts(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}

	out := make([]ChallengeStatus, 0, len(challenges))
	for _, ch := range challenges {
		cs := ChallengeStatus{Challenge: ch, Status: store.StatusLocked}
		if level >= ch.LevelRequired {
			cs.Status = store.StatusInProgress
		}
		if a, ok := attempts[ch.ID]; ok {
			if level >= ch.LevelRequired {
				cs.Status = a.Status
			}
			cs.Score = a.Score
			cs.BestScore = a.BestScore
			cs.StartedAt = &a.StartedAt
			cs.UpdatedAt = &a.UpdatedAt
			if ch.Target > 0 {
				cs.Progress = math.Min(1, a.Score/ch.Target)
			}
		}
		out = append(out, cs)
	}
	return out, nil
}

// ListBadges returns the badges granted to the user, newest first
func (c *ChallengeService) ListBadges(ctx context.Context, sess Session) ([]store.UserBadge, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	badges, err := c.store.ListUserBadges(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing badges: %w", err)
	}
	if badges == nil {
		badges = []store.UserBadge{}
	}
	return badges, nil
}

func (c *ChallengeService) globalLevel(ctx context.Context, userID string) (int, error) {
	gp, err := c.store.GetGlobalProgress(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return progression.GlobalLevel(0), nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading global progress: %w", err)
	}
	return gp.Level, nil
}

func displayName(ch store.Challenge) string {
	if ch.Name != "" {
		return ch.Name
	}
	return ch.ID
}
