package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EnsureBadge creates the badge if its slug is unknown and returns its id
func (s *Store) EnsureBadge(ctx context.Context, b *Badge) (string, error) {
	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO badges (id, slug, title, description, icon, type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO NOTHING
	`, id, b.Slug, b.Title, b.Description, b.Icon, b.Type); err != nil {
		return "", err
	}

	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM badges WHERE slug = ?", b.Slug).Scan(&existing)
	return existing, err
}

// GrantBadge links a badge to a user.
// Returns false when the user already held it.
func (s *Store) GrantBadge(ctx context.Context, userID, badgeID string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO user_badges (user_id, badge_id, granted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, badge_id) DO NOTHING
	`, userID, badgeID, formatTime(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListUserBadges returns a user's badges, newest grant first
func (s *Store) ListUserBadges(ctx context.Context, userID string) ([]UserBadge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.slug, b.title, b.description, b.icon, b.type, ub.user_id, ub.granted_at
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = ?
		ORDER BY ub.granted_at DESC, b.slug
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []UserBadge
	for rows.Next() {
		var ub UserBadge
		var grantedAt string
		if err := rows.Scan(
			&ub.ID, &ub.Slug, &ub.Title, &ub.Description, &ub.Icon, &ub.Type, &ub.UserID, &grantedAt,
		); err != nil {
			return nil, err
		}
		if ub.GrantedAt, err = parseTime(grantedAt); err != nil {
			return nil, err
		}
		badges = append(badges, ub)
	}
	return badges, rows.Err()
}
