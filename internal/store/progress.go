package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetXPSnapshot returns the cached axis totals of a user, or ErrNotFound
func (s *Store) GetXPSnapshot(ctx context.Context, userID string) (*XPSnapshot, error) {
	var snap XPSnapshot
	var lastUpdate string

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, endurance, explosivity, mental, strategy, last_update
		FROM xp_snapshots WHERE user_id = ?
	`, userID).Scan(&snap.UserID, &snap.Endurance, &snap.Explosivity, &snap.Mental, &snap.Strategy, &lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if snap.LastUpdate, err = parseTime(lastUpdate); err != nil {
		return nil, fmt.Errorf("parsing last_update: %w", err)
	}
	return &snap, nil
}

// UpsertXPSnapshot replaces the cached axis totals of a user
func (s *Store) UpsertXPSnapshot(ctx context.Context, snap *XPSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO xp_snapshots (user_id, endurance, explosivity, mental, strategy, last_update)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			endurance = excluded.endurance,
			explosivity = excluded.explosivity,
			mental = excluded.mental,
			strategy = excluded.strategy,
			last_update = excluded.last_update
	`, snap.UserID, snap.Endurance, snap.Explosivity, snap.Mental, snap.Strategy, formatTime(snap.LastUpdate))
	return err
}

// GetGlobalProgress returns a user's global XP and level, or ErrNotFound
func (s *Store) GetGlobalProgress(ctx context.Context, userID string) (*GlobalProgress, error) {
	return getGlobalProgress(ctx, s.db, userID)
}

// UpsertGlobalProgress stores a user's global XP, level and throttle timestamp
func (s *Store) UpsertGlobalProgress(ctx context.Context, gp *GlobalProgress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO global_progress (user_id, total_xp, level, last_update)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_xp = excluded.total_xp,
			level = excluded.level,
			last_update = excluded.last_update
	`, gp.UserID, gp.TotalXP, gp.Level, formatNullTime(gp.LastUpdate))
	return err
}

// ApplyRewardXP adds a one-shot challenge bonus to a user's global XP.
// The grant record and the XP increment commit together; a second call for
// the same (user, challenge) is a no-op and reports applied=false.
// The throttle timestamp is left untouched.
func (s *Store) ApplyRewardXP(ctx context.Context, userID, challengeID string, bonus int64, now time.Time, level func(int64) int) (gp *GlobalProgress, applied bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reward_grants (user_id, challenge_id, bonus_xp, granted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, challenge_id) DO NOTHING
	`, userID, challengeID, bonus, formatTime(now))
	if err != nil {
		return nil, false, fmt.Errorf("recording grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	gp, err = getGlobalProgress(ctx, tx, userID)
	if errors.Is(err, ErrNotFound) {
		gp = &GlobalProgress{UserID: userID, Level: level(0)}
	} else if err != nil {
		return nil, false, err
	}

	if n == 0 {
		return gp, false, nil
	}

	gp.TotalXP += bonus
	gp.Level = level(gp.TotalXP)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO global_progress (user_id, total_xp, level, last_update)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT(user_id) DO UPDATE SET
			total_xp = excluded.total_xp,
			level = excluded.level
	`, gp.UserID, gp.TotalXP, gp.Level); err != nil {
		return nil, false, fmt.Errorf("updating global progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing transaction: %w", err)
	}
	return gp, true, nil
}

// HasRewardGrant reports whether a challenge bonus was already applied
func (s *Store) HasRewardGrant(ctx context.Context, userID, challengeID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reward_grants WHERE user_id = ? AND challenge_id = ?
	`, userID, challengeID).Scan(&n)
	return n > 0, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getGlobalProgress(ctx context.Context, q queryRower, userID string) (*GlobalProgress, error) {
	var gp GlobalProgress
	var lastUpdate *string

	err := q.QueryRowContext(ctx, `
		SELECT user_id, total_xp, level, last_update
		FROM global_progress WHERE user_id = ?
	`, userID).Scan(&gp.UserID, &gp.TotalXP, &gp.Level, &lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if gp.LastUpdate, err = parseNullTime(lastUpdate); err != nil {
		return nil, fmt.Errorf("parsing last_update: %w", err)
	}
	return &gp, nil
}
