package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/hifi/internal/playback"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/streamcache"
)

func openTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := OpenAt(path)
	require.NoError(t, err)
	return m, path
}

func TestGetPrefsDefaults(t *testing.T) {
	m, _ := openTestManager(t)
	defer m.Close()

	prefs, err := m.GetPrefs()
	require.NoError(t, err)
	assert.Equal(t, playback.DefaultPrefs(), prefs)
}

func TestPrefsRoundTrip(t *testing.T) {
	m, path := openTestManager(t)

	m.SavePrefs(playback.Prefs{
		Volume:           0.55,
		Muted:            true,
		RepeatMode:       queue.RepeatOne,
		Shuffle:          true,
		CrossfadeSeconds: 6,
		Quality:          quality.HiResLossless,
		QualitySource:    quality.SourceManual,
	})
	// Close flushes the debounced write.
	require.NoError(t, m.Close())

	m2, err := OpenAt(path)
	require.NoError(t, err)
	defer m2.Close()

	prefs, err := m2.GetPrefs()
	require.NoError(t, err)
	assert.InDelta(t, 0.55, prefs.Volume, 1e-9)
	assert.True(t, prefs.Muted)
	assert.Equal(t, queue.RepeatOne, prefs.RepeatMode)
	assert.True(t, prefs.Shuffle)
	assert.InDelta(t, 6.0, prefs.CrossfadeSeconds, 1e-9)
	assert.Equal(t, quality.HiResLossless, prefs.Quality)
	assert.Equal(t, quality.SourceManual, prefs.QualitySource)
}

func TestSavePrefsDebounces(t *testing.T) {
	m, _ := openTestManager(t)
	defer m.Close()

	m.SavePrefs(playback.Prefs{Volume: 0.1})
	m.SavePrefs(playback.Prefs{Volume: 0.2})
	m.SavePrefs(playback.Prefs{Volume: 0.3})

	// Only the last pending value survives the debounce window.
	time.Sleep(saveDebounce + 200*time.Millisecond)
	prefs, err := m.GetPrefs()
	require.NoError(t, err)
	assert.InDelta(t, 0.3, prefs.Volume, 1e-9)
}

func TestGetQueueEmpty(t *testing.T) {
	m, _ := openTestManager(t)
	defer m.Close()

	saved, err := m.GetQueue()
	require.NoError(t, err)
	assert.Empty(t, saved.Tracks)
	assert.Equal(t, -1, saved.Index)
}

func TestQueueRoundTrip(t *testing.T) {
	m, path := openTestManager(t)

	tracks := []queue.Track{
		{Kind: queue.FirstParty, ID: 1, Title: "One", Artist: "A", Album: "X",
			Duration: 215 * time.Second, MaxQuality: quality.HiResLossless},
		{Kind: queue.ExternalLink, ExternalID: "spotify:track:abc", Title: "Linked"},
	}
	m.SaveQueue(tracks, 1)
	require.NoError(t, m.Close())

	m2, err := OpenAt(path)
	require.NoError(t, err)
	defer m2.Close()

	saved, err := m2.GetQueue()
	require.NoError(t, err)
	require.Len(t, saved.Tracks, 2)
	assert.Equal(t, 1, saved.Index)

	first := saved.Tracks[0]
	assert.Equal(t, queue.FirstParty, first.Kind)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "One", first.Title)
	assert.Equal(t, 215*time.Second, first.Duration)
	assert.Equal(t, quality.HiResLossless, first.MaxQuality)

	second := saved.Tracks[1]
	assert.Equal(t, queue.ExternalLink, second.Kind)
	assert.Equal(t, "spotify:track:abc", second.ExternalID)
}

func TestGetQueueClampsIndex(t *testing.T) {
	m, path := openTestManager(t)
	m.SaveQueue([]queue.Track{{Kind: queue.FirstParty, ID: 1}}, 5)
	require.NoError(t, m.Close())

	m2, err := OpenAt(path)
	require.NoError(t, err)
	defer m2.Close()

	saved, err := m2.GetQueue()
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Index)
}

func TestStreamEntriesRoundTrip(t *testing.T) {
	m, _ := openTestManager(t)
	defer m.Close()

	rg := -3.5
	sr := 96000
	now := time.Now().Truncate(time.Millisecond)
	in := []streamcache.Entry{{
		TrackID:       42,
		Tier:          quality.HiResLossless,
		URL:           "https://cdn.example.com/42",
		ReplayGain:    &rg,
		SampleRate:    &sr,
		FetchedAt:     now,
		ValidatedAt:   now,
		LastUsedAt:    now,
		ExpiresAt:     now.Add(time.Hour),
		FailureCount:  1,
		LastFailureAt: now.Add(-time.Minute),
	}}
	require.NoError(t, m.SaveEntries(in))

	out, err := m.LoadEntries()
	require.NoError(t, err)
	require.Len(t, out, 1)

	e := out[0]
	assert.Equal(t, int64(42), e.TrackID)
	assert.Equal(t, quality.HiResLossless, e.Tier)
	require.NotNil(t, e.ReplayGain)
	assert.InDelta(t, -3.5, *e.ReplayGain, 1e-9)
	require.NotNil(t, e.SampleRate)
	assert.Equal(t, 96000, *e.SampleRate)
	assert.Nil(t, e.BitDepth)
	assert.True(t, e.ValidatedAt.Equal(now))
	assert.True(t, e.ExpiresAt.Equal(now.Add(time.Hour)))
	assert.Equal(t, 1, e.FailureCount)
	assert.True(t, e.LastFailureAt.Equal(now.Add(-time.Minute)))
}

func TestSaveEntriesReplacesSet(t *testing.T) {
	m, _ := openTestManager(t)
	defer m.Close()

	now := time.Now()
	entry := func(id int64) streamcache.Entry {
		return streamcache.Entry{
			TrackID: id, Tier: quality.Lossless, URL: "u",
			FetchedAt: now, ValidatedAt: now, LastUsedAt: now,
		}
	}
	require.NoError(t, m.SaveEntries([]streamcache.Entry{entry(1), entry(2)}))
	require.NoError(t, m.SaveEntries([]streamcache.Entry{entry(3)}))

	out, err := m.LoadEntries()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].TrackID)
}

func TestManagerIsStreamCachePrimaryStore(t *testing.T) {
	m, _ := openTestManager(t)
	defer m.Close()

	cache := streamcache.New(streamcache.Options{}, m, nil)
	cache.SetValidated(streamcache.ValidatedParams{
		TrackID: 7, Tier: quality.Lossless, URL: "https://cdn.example.com/7",
	})
	cache.Close()

	out, err := m.LoadEntries()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(7), out[0].TrackID)
}
