package state

import (
	"database/sql"
	"errors"

	"github.com/llehouerou/hifi/internal/playback"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
)

func getPrefs(db *sql.DB) (playback.Prefs, error) {
	var (
		volume, crossfade float64
		muted, shuffle    bool
		repeatMode        int
		tierName, srcName string
	)
	row := db.QueryRow(`
		SELECT volume, muted, repeat_mode, shuffle, crossfade_seconds, quality, quality_source
		FROM prefs WHERE id = 1
	`)
	err := row.Scan(&volume, &muted, &repeatMode, &shuffle, &crossfade, &tierName, &srcName)
	if errors.Is(err, sql.ErrNoRows) {
		return playback.DefaultPrefs(), nil
	}
	if err != nil {
		// Corrupt row: fall back to defaults rather than refusing to start.
		return playback.DefaultPrefs(), err
	}

	prefs := playback.DefaultPrefs()
	if volume >= 0 && volume <= 1 {
		prefs.Volume = volume
	}
	prefs.Muted = muted
	if repeatMode >= int(queue.RepeatOff) && repeatMode <= int(queue.RepeatOne) {
		prefs.RepeatMode = queue.RepeatMode(repeatMode)
	}
	prefs.Shuffle = shuffle
	if crossfade >= 0 && crossfade <= playback.MaxCrossfadeSeconds {
		prefs.CrossfadeSeconds = crossfade
	}
	if tier, err := quality.Parse(tierName); err == nil {
		prefs.Quality = tier
	}
	if srcName == "manual" {
		prefs.QualitySource = quality.SourceManual
	}
	return prefs, nil
}

func savePrefs(db *sql.DB, p playback.Prefs) error {
	_, err := db.Exec(`
		INSERT INTO prefs (id, volume, muted, repeat_mode, shuffle, crossfade_seconds, quality, quality_source)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			volume = excluded.volume,
			muted = excluded.muted,
			repeat_mode = excluded.repeat_mode,
			shuffle = excluded.shuffle,
			crossfade_seconds = excluded.crossfade_seconds,
			quality = excluded.quality,
			quality_source = excluded.quality_source
	`, p.Volume, p.Muted, int(p.RepeatMode), p.Shuffle, p.CrossfadeSeconds,
		p.Quality.String(), p.QualitySource.String())
	return err
}
