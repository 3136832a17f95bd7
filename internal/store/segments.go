package store

import (
	"context"
	"fmt"
)

// UpsertSegmentEfforts stores segment efforts keyed by (user, activity, segment)
func (s *Store) UpsertSegmentEfforts(ctx context.Context, efforts []SegmentEffort) error {
	if len(efforts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segment_efforts (
			user_id, activity_id, segment_id, name, distance_m, average_grade,
			start_lat, start_lng, end_lat, end_lng, elapsed_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, activity_id, segment_id) DO UPDATE SET
			name = excluded.name,
			distance_m = excluded.distance_m,
			average_grade = excluded.average_grade,
			start_lat = excluded.start_lat,
			start_lng = excluded.start_lng,
			end_lat = excluded.end_lat,
			end_lng = excluded.end_lng,
			elapsed_time = excluded.elapsed_time
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range efforts {
		if _, err := stmt.ExecContext(ctx,
			e.UserID, e.ActivityID, e.SegmentID, e.Name, e.DistanceM, e.AverageGrade,
			e.StartLat, e.StartLng, e.EndLat, e.EndLng, e.ElapsedTime,
		); err != nil {
			return fmt.Errorf("upserting segment %d: %w", e.SegmentID, err)
		}
	}

	return tx.Commit()
}

// ListSegmentEfforts returns the segment efforts of an activity
func (s *Store) ListSegmentEfforts(ctx context.Context, userID string, activityID int64) ([]SegmentEffort, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, activity_id, segment_id, name, distance_m, average_grade,
			start_lat, start_lng, end_lat, end_lng, elapsed_time
		FROM segment_efforts
		WHERE user_id = ? AND activity_id = ?
		ORDER BY segment_id
	`, userID, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var efforts []SegmentEffort
	for rows.Next() {
		var e SegmentEffort
		if err := rows.Scan(
			&e.UserID, &e.ActivityID, &e.SegmentID, &e.Name, &e.DistanceM, &e.AverageGrade,
			&e.StartLat, &e.StartLng, &e.EndLat, &e.EndLng, &e.ElapsedTime,
		); err != nil {
			return nil, err
		}
		efforts = append(efforts, e)
	}
	return efforts, rows.Err()
}
