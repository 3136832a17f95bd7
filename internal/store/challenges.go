package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertChallenge inserts or updates a catalog challenge
func (s *Store) UpsertChallenge(ctx context.Context, c *Challenge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges (
			id, slug, name, rider, type, target_value, level_required, reward, start_at, end_at, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			name = excluded.name,
			rider = excluded.rider,
			type = excluded.type,
			target_value = excluded.target_value,
			level_required = excluded.level_required,
			reward = excluded.reward,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			active = excluded.active
	`,
		c.ID, c.Slug, c.Name, c.Rider, string(c.Type), c.Target, c.LevelRequired, c.Reward,
		formatNullTime(c.StartAt), formatNullTime(c.EndAt), boolToInt(c.Active),
	)
	return err
}

// ListActiveChallenges returns active challenges ordered by level requirement
func (s *Store) ListActiveChallenges(ctx context.Context) ([]Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, name, rider, type, target_value, level_required, reward, start_at, end_at, active
		FROM challenges
		WHERE active = 1
		ORDER BY level_required, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var challenges []Challenge
	for rows.Next() {
		var c Challenge
		var typ string
		var startAt, endAt *string
		var active int

		if err := rows.Scan(
			&c.ID, &c.Slug, &c.Name, &c.Rider, &typ, &c.Target, &c.LevelRequired, &c.Reward,
			&startAt, &endAt, &active,
		); err != nil {
			return nil, err
		}

		c.Type = ChallengeType(typ)
		c.Active = active == 1
		if c.StartAt, err = parseNullTime(startAt); err != nil {
			return nil, fmt.Errorf("parsing start_at of %s: %w", c.ID, err)
		}
		if c.EndAt, err = parseNullTime(endAt); err != nil {
			return nil, fmt.Errorf("parsing end_at of %s: %w", c.ID, err)
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}

// GetChallengeAttempt returns a user's attempt on a challenge, or ErrNotFound
func (s *Store) GetChallengeAttempt(ctx context.Context, userID, challengeID string) (*ChallengeAttempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, challenge_id, score, best_score, status, started_at, updated_at
		FROM challenge_attempts WHERE user_id = ? AND challenge_id = ?
	`, userID, challengeID)

	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListChallengeAttempts returns all attempts of a user keyed by challenge id
func (s *Store) ListChallengeAttempts(ctx context.Context, userID string) (map[string]ChallengeAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, challenge_id, score, best_score, status, started_at, updated_at
		FROM challenge_attempts WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make(map[string]ChallengeAttempt)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts[a.ChallengeID] = *a
	}
	return attempts, rows.Err()
}

// UpsertChallengeAttempt stores an attempt.
// started_at is written once and kept on later updates.
func (s *Store) UpsertChallengeAttempt(ctx context.Context, a *ChallengeAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenge_attempts (user_id, challenge_id, score, best_score, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, challenge_id) DO UPDATE SET
			score = excluded.score,
			best_score = excluded.best_score,
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
		a.UserID, a.ChallengeID, a.Score, a.BestScore, string(a.Status),
		formatTime(a.StartedAt), formatTime(a.UpdatedAt),
	)
	return err
}

func scanAttempt(row rowScanner) (*ChallengeAttempt, error) {
	var a ChallengeAttempt
	var status, startedAt, updatedAt string

	if err := row.Scan(&a.UserID, &a.ChallengeID, &a.Score, &a.BestScore, &status, &startedAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	a.Status = AttemptStatus(status)
	if a.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &a, nil
}
