package state

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/llehouerou/hifi/internal/db"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
)

// QueueState is the saved queue snapshot.
type QueueState struct {
	Tracks []queue.Track
	Index  int
}

func getQueue(db *sql.DB) (*QueueState, error) {
	var index int
	row := db.QueryRow(`SELECT current_index FROM queue_state WHERE id = 1`)
	err := row.Scan(&index)
	if errors.Is(err, sql.ErrNoRows) {
		return &QueueState{Index: -1}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT kind, track_id, external_id, title, artist, album, duration_ms, max_quality
		FROM queue_tracks
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []queue.Track
	for rows.Next() {
		var (
			kind                  int
			trackID, durationMS   sql.NullInt64
			externalID            sql.NullString
			title                 string
			artist, album, tierNm sql.NullString
		)
		if err := rows.Scan(&kind, &trackID, &externalID, &title, &artist, &album, &durationMS, &tierNm); err != nil {
			return nil, err
		}

		t := queue.Track{
			Kind:       queue.Kind(kind),
			ID:         dbutil.NullInt64Value(trackID),
			ExternalID: dbutil.NullStringValue(externalID),
			Title:      title,
			Artist:     dbutil.NullStringValue(artist),
			Album:      dbutil.NullStringValue(album),
			Duration:   time.Duration(dbutil.NullInt64Value(durationMS)) * time.Millisecond,
		}
		if tier, err := quality.Parse(dbutil.NullStringValue(tierNm)); err == nil {
			t.MaxQuality = tier
		} else {
			t.MaxQuality = quality.Lossless
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if index >= len(tracks) {
		index = len(tracks) - 1
	}
	return &QueueState{Tracks: tracks, Index: index}, nil
}

func saveQueue(sqlDB *sql.DB, state QueueState) error {
	return dbutil.WithTx(sqlDB, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM queue_tracks`); err != nil {
			return err
		}

		_, err := tx.Exec(`
			INSERT INTO queue_state (id, current_index)
			VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET
				current_index = excluded.current_index
		`, state.Index)
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO queue_tracks (position, kind, track_id, external_id, title, artist, album, duration_ms, max_quality)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range state.Tracks {
			var trackID any
			if t.ID > 0 {
				trackID = t.ID
			}
			var externalID any
			if t.ExternalID != "" {
				externalID = t.ExternalID
			}
			_, err = stmt.Exec(i, int(t.Kind), trackID, externalID, t.Title, t.Artist, t.Album,
				t.Duration.Milliseconds(), t.MaxQuality.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
}
