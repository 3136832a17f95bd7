package store

import (
	"context"
	"fmt"
)

// SaveTrackPoints saves the kept GPS samples of an activity.
// It replaces any existing points for the activity in one transaction.
func (s *Store) SaveTrackPoints(ctx context.Context, userID string, activityID int64, points []TrackPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM track_points WHERE user_id = ? AND activity_id = ?
	`, userID, activityID); err != nil {
		return fmt.Errorf("deleting existing points: %w", err)
	}

	// Prepare insert statement for batch efficiency
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_points (
			user_id, activity_id, seq, lat, lng, altitude,
			watts, heartrate, cadence, distance_m, time_s
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.ExecContext(ctx,
			userID, activityID, p.Seq, p.Lat, p.Lng, p.Altitude,
			p.Watts, p.Heartrate, p.Cadence, p.DistanceM, p.TimeS,
		)
		if err != nil {
			return fmt.Errorf("inserting track point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// GetTrackPoints returns the stored points of an activity in stream order
func (s *Store) GetTrackPoints(ctx context.Context, userID string, activityID int64) ([]TrackPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, lat, lng, altitude, watts, heartrate, cadence, distance_m, time_s
		FROM track_points
		WHERE user_id = ? AND activity_id = ?
		ORDER BY seq
	`, userID, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TrackPoint
	for rows.Next() {
		var p TrackPoint
		if err := rows.Scan(
			&p.Seq, &p.Lat, &p.Lng, &p.Altitude, &p.Watts,
			&p.Heartrate, &p.Cadence, &p.DistanceM, &p.TimeS,
		); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
