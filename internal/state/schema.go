package state

import (
	"database/sql"
)

const currentSchemaVersion = 1

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS prefs (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			volume REAL NOT NULL DEFAULT 0.8,
			muted INTEGER NOT NULL DEFAULT 0,
			repeat_mode INTEGER NOT NULL DEFAULT 1,
			shuffle INTEGER NOT NULL DEFAULT 0,
			crossfade_seconds REAL NOT NULL DEFAULT 0,
			quality TEXT NOT NULL DEFAULT 'LOSSLESS',
			quality_source TEXT NOT NULL DEFAULT 'auto'
		);

		CREATE TABLE IF NOT EXISTS queue_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			current_index INTEGER NOT NULL DEFAULT -1
		);

		CREATE TABLE IF NOT EXISTS queue_tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			position INTEGER NOT NULL,
			kind INTEGER NOT NULL DEFAULT 0,
			track_id INTEGER,
			external_id TEXT,
			title TEXT NOT NULL,
			artist TEXT,
			album TEXT,
			duration_ms INTEGER,
			max_quality TEXT,
			UNIQUE(position)
		);

		CREATE INDEX IF NOT EXISTS idx_queue_tracks_position ON queue_tracks(position);

		CREATE TABLE IF NOT EXISTS stream_cache (
			key TEXT PRIMARY KEY,
			track_id INTEGER NOT NULL,
			tier TEXT NOT NULL,
			url TEXT NOT NULL,
			replay_gain REAL,
			sample_rate INTEGER,
			bit_depth INTEGER,
			fetched_at INTEGER NOT NULL,
			validated_at INTEGER NOT NULL,
			last_used_at INTEGER NOT NULL,
			expires_at INTEGER,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_failure_at INTEGER
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	return err
}
