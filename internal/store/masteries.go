package store

import (
	"context"
	"time"
)

// UpsertMastery inserts or updates a catalog mastery
func (s *Store) UpsertMastery(ctx context.Context, m *Mastery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO masteries (id, name, category, condition)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			condition = excluded.condition
	`, m.ID, m.Name, m.Category, m.Condition)
	return err
}

// ListMasteries returns the mastery catalog
func (s *Store) ListMasteries(ctx context.Context) ([]Mastery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, condition FROM masteries ORDER BY category, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var masteries []Mastery
	for rows.Next() {
		var m Mastery
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.Condition); err != nil {
			return nil, err
		}
		masteries = append(masteries, m)
	}
	return masteries, rows.Err()
}

// UpsertUserMastery records a reached level. Levels never go down and the
// unlock time is only moved when the level rises.
func (s *Store) UpsertUserMastery(ctx context.Context, userID, masteryID string, level int, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_masteries (user_id, mastery_id, level, unlocked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, mastery_id) DO UPDATE SET
			level = excluded.level,
			unlocked_at = excluded.unlocked_at
		WHERE excluded.level > user_masteries.level
	`, userID, masteryID, level, formatTime(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListUserMasteries returns the mastery levels a user reached
func (s *Store) ListUserMasteries(ctx context.Context, userID string) ([]UserMastery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, mastery_id, level, unlocked_at
		FROM user_masteries WHERE user_id = ?
		ORDER BY mastery_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserMastery
	for rows.Next() {
		var um UserMastery
		var unlockedAt string
		if err := rows.Scan(&um.UserID, &um.MasteryID, &um.Level, &unlockedAt); err != nil {
			return nil, err
		}
		if um.UnlockedAt, err = parseTime(unlockedAt); err != nil {
			return nil, err
		}
		out = append(out, um)
	}
	return out, rows.Err()
}
