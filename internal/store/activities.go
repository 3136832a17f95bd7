package store

import (
	"context"
	"database/sql"
	"fmt"
)

const activityColumns = `
	user_id, remote_id, name, sport_type, start_date, start_date_local,
	distance_km, elevation_m, moving_time_s, avg_speed_kmh, avg_watts, max_watts,
	avg_hr, avg_cadence, kilojoules, summary_polyline, location, country,
	trainer, manual, device_name, raw_detail`

// UpsertActivity inserts or updates an activity keyed by (user, remote id)
func (s *Store) UpsertActivity(ctx context.Context, a *Activity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (`+activityColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, remote_id) DO UPDATE SET
			name = excluded.name,
			sport_type = excluded.sport_type,
			start_date = excluded.start_date,
			start_date_local = excluded.start_date_local,
			distance_km = excluded.distance_km,
			elevation_m = excluded.elevation_m,
			moving_time_s = excluded.moving_time_s,
			avg_speed_kmh = excluded.avg_speed_kmh,
			avg_watts = excluded.avg_watts,
			max_watts = excluded.max_watts,
			avg_hr = excluded.avg_hr,
			avg_cadence = excluded.avg_cadence,
			kilojoules = excluded.kilojoules,
			summary_polyline = excluded.summary_polyline,
			location = excluded.location,
			country = excluded.country,
			trainer = excluded.trainer,
			manual = excluded.manual,
			device_name = excluded.device_name,
			raw_detail = excluded.raw_detail,
			updated_at = CURRENT_TIMESTAMP
	`,
		a.UserID, a.RemoteID, a.Name, a.SportType,
		formatTime(a.StartDate), formatTime(a.StartDateLocal),
		a.DistanceKm, a.ElevationM, a.DurationS, a.AvgSpeedKmh, a.AvgPowerW, a.MaxPowerW,
		a.AvgHeartrate, a.AvgCadence, a.Kilojoules, a.SummaryPolyline, a.Location, a.Country,
		boolToInt(a.Trainer), boolToInt(a.Manual), a.DeviceName, a.RawDetail,
	)
	return err
}

// GetActivitiesForUser returns all of a user's activities, oldest first
func (s *Store) GetActivitiesForUser(ctx context.Context, userID string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE user_id = ?
		ORDER BY start_date ASC, remote_id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ExistingRemoteIDs returns the set of remote ids already stored for a user
func (s *Store) ExistingRemoteIDs(ctx context.Context, userID string) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT remote_id FROM activities WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// CountActivities returns the number of activities stored for a user
func (s *Store) CountActivities(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities WHERE user_id = ?", userID).Scan(&count)
	return count, err
}

// scanActivities scans multiple activities from rows
func scanActivities(rows *sql.Rows) ([]Activity, error) {
	var activities []Activity

	for rows.Next() {
		var a Activity
		var startDate, startDateLocal string
		var polyline, location, country, device, raw *string
		var trainer, manual int

		err := rows.Scan(
			&a.UserID, &a.RemoteID, &a.Name, &a.SportType, &startDate, &startDateLocal,
			&a.DistanceKm, &a.ElevationM, &a.DurationS, &a.AvgSpeedKmh, &a.AvgPowerW, &a.MaxPowerW,
			&a.AvgHeartrate, &a.AvgCadence, &a.Kilojoules, &polyline, &location, &country,
			&trainer, &manual, &device, &raw,
		)
		if err != nil {
			return nil, err
		}

		var parseErr error
		a.StartDate, parseErr = parseTime(startDate)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing start_date %q: %w", startDate, parseErr)
		}
		a.StartDateLocal, parseErr = parseTime(startDateLocal)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing start_date_local %q: %w", startDateLocal, parseErr)
		}
		a.SummaryPolyline = deref(polyline)
		a.Location = deref(location)
		a.Country = deref(country)
		a.DeviceName = deref(device)
		a.RawDetail = deref(raw)
		a.Trainer = trainer == 1
		a.Manual = manual == 1

		activities = append(activities, a)
	}

	return activities, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
