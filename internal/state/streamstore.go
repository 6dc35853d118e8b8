package state

import (
	"database/sql"
	"time"

	dbutil "github.com/llehouerou/hifi/internal/db"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/streamcache"
)

// Manager doubles as the stream cache's primary durable store.

// LoadEntries reads the full persisted stream cache.
func (m *Manager) LoadEntries() ([]streamcache.Entry, error) {
	rows, err := m.db.Query(`
		SELECT track_id, tier, url, replay_gain, sample_rate, bit_depth,
		       fetched_at, validated_at, last_used_at, expires_at,
		       failure_count, last_failure_at
		FROM stream_cache
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []streamcache.Entry
	for rows.Next() {
		var (
			e                        streamcache.Entry
			tierName                 string
			replayGain               sql.NullFloat64
			sampleRate, bitDepth     sql.NullInt64
			fetched, validated, used int64
			expires, lastFailure     sql.NullInt64
		)
		err := rows.Scan(&e.TrackID, &tierName, &e.URL, &replayGain, &sampleRate, &bitDepth,
			&fetched, &validated, &used, &expires, &e.FailureCount, &lastFailure)
		if err != nil {
			return nil, err
		}

		tier, err := quality.Parse(tierName)
		if err != nil {
			continue
		}
		e.Tier = tier
		e.ReplayGain = dbutil.NullFloat64ToPtr(replayGain)
		e.SampleRate = dbutil.NullInt64ToIntPtr(sampleRate)
		e.BitDepth = dbutil.NullInt64ToIntPtr(bitDepth)
		e.FetchedAt = time.UnixMilli(fetched)
		e.ValidatedAt = time.UnixMilli(validated)
		e.LastUsedAt = time.UnixMilli(used)
		if expires.Valid && expires.Int64 > 0 {
			e.ExpiresAt = time.UnixMilli(expires.Int64)
		}
		if lastFailure.Valid && lastFailure.Int64 > 0 {
			e.LastFailureAt = time.UnixMilli(lastFailure.Int64)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveEntries replaces the persisted stream cache with the given set.
func (m *Manager) SaveEntries(entries []streamcache.Entry) error {
	return dbutil.WithTx(m.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM stream_cache`); err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO stream_cache (key, track_id, tier, url, replay_gain, sample_rate, bit_depth,
			                          fetched_at, validated_at, last_used_at, expires_at,
			                          failure_count, last_failure_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			var expires, lastFailure any
			if !e.ExpiresAt.IsZero() {
				expires = e.ExpiresAt.UnixMilli()
			}
			if !e.LastFailureAt.IsZero() {
				lastFailure = e.LastFailureAt.UnixMilli()
			}
			var replayGain any
			if e.ReplayGain != nil {
				replayGain = *e.ReplayGain
			}
			var sampleRate, bitDepth any
			if e.SampleRate != nil {
				sampleRate = *e.SampleRate
			}
			if e.BitDepth != nil {
				bitDepth = *e.BitDepth
			}
			_, err = stmt.Exec(
				streamcache.Key(e.TrackID, e.Tier), e.TrackID, e.Tier.String(), e.URL,
				replayGain, sampleRate, bitDepth,
				e.FetchedAt.UnixMilli(), e.ValidatedAt.UnixMilli(), e.LastUsedAt.UnixMilli(),
				expires, e.FailureCount, lastFailure,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
