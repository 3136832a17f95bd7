package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GetSyncState retrieves the sync state of a user.
// Returns ErrNotFound if the user never connected a feed.
func (s *Store) GetSyncState(ctx context.Context, userID string) (*SyncState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, athlete_id, access_token, refresh_token, expires_at,
			initial_sync_done, last_full_sync, resume_page, resume_since
		FROM sync_state WHERE user_id = ?
	`, userID)

	st, err := scanSyncState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

// ListSyncStates returns the sync state of every connected user
func (s *Store) ListSyncStates(ctx context.Context) ([]SyncState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, athlete_id, access_token, refresh_token, expires_at,
			initial_sync_done, last_full_sync, resume_page, resume_since
		FROM sync_state ORDER BY user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []SyncState
	for rows.Next() {
		st, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *st)
	}
	return states, rows.Err()
}

// SaveSyncState stores the credentials of a newly connected user.
// Reconnecting keeps the existing watermark.
func (s *Store) SaveSyncState(ctx context.Context, st *SyncState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (
			user_id, athlete_id, access_token, refresh_token, expires_at,
			initial_sync_done, last_full_sync, resume_page, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`,
		st.UserID, st.AthleteID, st.AccessToken, st.RefreshToken, formatTime(st.ExpiresAt),
		boolToInt(st.InitialSyncDone), formatNullTime(st.LastFullSync), st.ResumePage,
	)
	return err
}

// UpdateSyncState applies a partial update to a user's sync state
func (s *Store) UpdateSyncState(ctx context.Context, userID string, p SyncStatePatch) error {
	var sets []string
	var args []any

	if p.AccessToken != nil {
		sets = append(sets, "access_token = ?")
		args = append(args, *p.AccessToken)
	}
	if p.RefreshToken != nil {
		sets = append(sets, "refresh_token = ?")
		args = append(args, *p.RefreshToken)
	}
	if p.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, formatTime(*p.ExpiresAt))
	}
	if p.InitialSyncDone != nil {
		sets = append(sets, "initial_sync_done = ?")
		args = append(args, boolToInt(*p.InitialSyncDone))
	}
	if p.LastFullSync != nil {
		sets = append(sets, "last_full_sync = ?")
		args = append(args, formatTime(*p.LastFullSync))
	}
	if p.ResumePage != nil {
		sets = append(sets, "resume_page = ?")
		args = append(args, *p.ResumePage)
		if *p.ResumePage == 0 {
			sets = append(sets, "resume_since = NULL")
		}
	}
	if p.ResumeSince != nil {
		sets = append(sets, "resume_since = ?")
		args = append(args, formatTime(*p.ResumeSince))
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, userID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE sync_state SET "+strings.Join(sets, ", ")+" WHERE user_id = ?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncState(row rowScanner) (*SyncState, error) {
	var st SyncState
	var expiresAt string
	var lastFull, resumeSince *string
	var done int

	if err := row.Scan(
		&st.UserID, &st.AthleteID, &st.AccessToken, &st.RefreshToken, &expiresAt,
		&done, &lastFull, &st.ResumePage, &resumeSince,
	); err != nil {
		return nil, err
	}

	var err error
	if st.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if st.LastFullSync, err = parseNullTime(lastFull); err != nil {
		return nil, fmt.Errorf("parsing last_full_sync: %w", err)
	}
	if st.ResumeSince, err = parseNullTime(resumeSince); err != nil {
		return nil, fmt.Errorf("parsing resume_since: %w", err)
	}
	st.InitialSyncDone = done == 1
	return &st, nil
}
