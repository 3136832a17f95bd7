package store

import "database/sql"

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	migrations := []string{
		// Sync state and credentials (one row per connected user)
		`CREATE TABLE IF NOT EXISTS sync_state (
			user_id TEXT PRIMARY KEY,
			athlete_id INTEGER NOT NULL DEFAULT 0,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			initial_sync_done INTEGER NOT NULL DEFAULT 0,
			last_full_sync TEXT,
			resume_page INTEGER NOT NULL DEFAULT 0,
			resume_since TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		// Activities (summary + detail from the feed)
		`CREATE TABLE IF NOT EXISTS activities (
			user_id TEXT NOT NULL,
			remote_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			sport_type TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL,
			start_date_local TEXT NOT NULL,
			distance_km REAL NOT NULL DEFAULT 0,
			elevation_m REAL NOT NULL DEFAULT 0,
			moving_time_s INTEGER NOT NULL DEFAULT 0,
			avg_speed_kmh REAL,
			avg_watts REAL,
			max_watts REAL,
			avg_hr REAL,
			avg_cadence REAL,
			kilojoules REAL,
			summary_polyline TEXT,
			location TEXT,
			country TEXT,
			trainer INTEGER NOT NULL DEFAULT 0,
			manual INTEGER NOT NULL DEFAULT 0,
			device_name TEXT,
			raw_detail TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, remote_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_user_start ON activities(user_id, start_date)`,

		// Downsampled GPS track points
		`CREATE TABLE IF NOT EXISTS track_points (
			user_id TEXT NOT NULL,
			activity_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			altitude REAL,
			watts REAL,
			heartrate INTEGER,
			cadence INTEGER,
			distance_m REAL,
			time_s INTEGER,
			PRIMARY KEY (user_id, activity_id, seq),
			FOREIGN KEY (user_id, activity_id) REFERENCES activities(user_id, remote_id) ON DELETE CASCADE
		)`,

		// Best segment effort per (user, activity, segment)
		`CREATE TABLE IF NOT EXISTS segment_efforts (
			user_id TEXT NOT NULL,
			activity_id INTEGER NOT NULL,
			segment_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			distance_m REAL,
			average_grade REAL,
			start_lat REAL,
			start_lng REAL,
			end_lat REAL,
			end_lng REAL,
			elapsed_time INTEGER,
			PRIMARY KEY (user_id, activity_id, segment_id),
			FOREIGN KEY (user_id, activity_id) REFERENCES activities(user_id, remote_id) ON DELETE CASCADE
		)`,

		// Per-axis XP cache
		`CREATE TABLE IF NOT EXISTS xp_snapshots (
			user_id TEXT PRIMARY KEY,
			endurance INTEGER NOT NULL DEFAULT 0,
			explosivity INTEGER NOT NULL DEFAULT 0,
			mental INTEGER NOT NULL DEFAULT 0,
			strategy INTEGER NOT NULL DEFAULT 0,
			last_update TEXT NOT NULL
		)`,

		// Global XP and level
		`CREATE TABLE IF NOT EXISTS global_progress (
			user_id TEXT PRIMARY KEY,
			total_xp INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1,
			last_update TEXT
		)`,

		// Challenge catalog, managed outside the core
		`CREATE TABLE IF NOT EXISTS challenges (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			rider TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			target_value REAL NOT NULL,
			level_required INTEGER NOT NULL DEFAULT 1,
			reward TEXT NOT NULL DEFAULT '',
			start_at TEXT,
			end_at TEXT,
			active INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS challenge_attempts (
			user_id TEXT NOT NULL,
			challenge_id TEXT NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			best_score REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, challenge_id)
		)`,

		// One row per applied challenge reward, guards the one-shot XP bonus
		`CREATE TABLE IF NOT EXISTS reward_grants (
			user_id TEXT NOT NULL,
			challenge_id TEXT NOT NULL,
			bonus_xp INTEGER NOT NULL,
			granted_at TEXT NOT NULL,
			PRIMARY KEY (user_id, challenge_id)
		)`,

		`CREATE TABLE IF NOT EXISTS badges (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS user_badges (
			user_id TEXT NOT NULL,
			badge_id TEXT NOT NULL,
			granted_at TEXT NOT NULL,
			PRIMARY KEY (user_id, badge_id),
			FOREIGN KEY (badge_id) REFERENCES badges(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS masteries (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			condition TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS user_masteries (
			user_id TEXT NOT NULL,
			mastery_id TEXT NOT NULL,
			level INTEGER NOT NULL,
			unlocked_at TEXT NOT NULL,
			PRIMARY KEY (user_id, mastery_id),
			FOREIGN KEY (mastery_id) REFERENCES masteries(id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}
