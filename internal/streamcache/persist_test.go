package streamcache

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/hifi/internal/quality"
)

// memStore is an in-memory Store for hydration and persistence tests.
type memStore struct {
	mu      sync.Mutex
	entries []Entry
	loadErr error
	saves   int
}

func (m *memStore) LoadEntries() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.entries, nil
}

func (m *memStore) SaveEntries(entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	m.saves++
	return nil
}

func (m *memStore) saved() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func TestHydrateFromPrimary(t *testing.T) {
	clock := newFakeClock()
	primary := &memStore{entries: []Entry{{
		TrackID:     1,
		Tier:        quality.Lossless,
		URL:         "https://cdn.example.com/1",
		ValidatedAt: clock.Now(),
	}}}

	c := New(Options{Now: clock.Now}, primary, nil)
	entry := c.Get(1, quality.Lossless)
	require.NotNil(t, entry)
	assert.Equal(t, "https://cdn.example.com/1", entry.URL)
}

func TestHydrateSkipsExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	primary := &memStore{entries: []Entry{
		{TrackID: 1, Tier: quality.Lossless, URL: "u1", ValidatedAt: clock.Now().Add(-7 * time.Hour)},
		{TrackID: 2, Tier: quality.Lossless, URL: "u2", ValidatedAt: clock.Now()},
	}}

	c := New(Options{Now: clock.Now}, primary, nil)
	assert.Nil(t, c.Get(1, quality.Lossless))
	assert.NotNil(t, c.Get(2, quality.Lossless))
}

func TestHydrateFallsBackAndBackfills(t *testing.T) {
	clock := newFakeClock()
	primary := &memStore{loadErr: errors.New("corrupt")}
	fallback := &memStore{entries: []Entry{{
		TrackID:     1,
		Tier:        quality.Lossless,
		URL:         "https://cdn.example.com/1",
		ValidatedAt: clock.Now(),
	}}}

	c := New(Options{Now: clock.Now}, primary, fallback)
	require.NotNil(t, c.Get(1, quality.Lossless))

	// The entries read from the fallback were written back to the primary.
	primary.mu.Lock()
	primary.loadErr = nil
	primary.mu.Unlock()
	assert.Len(t, primary.saved(), 1)
}

func TestCloseFlushesPendingSave(t *testing.T) {
	clock := newFakeClock()
	primary := &memStore{}
	fallback := &memStore{}

	c := New(Options{Now: clock.Now}, primary, fallback)
	c.SetValidated(ValidatedParams{TrackID: 1, Tier: quality.Lossless, URL: "u"})
	c.Close()

	require.Len(t, primary.saved(), 1)
	assert.Equal(t, int64(1), primary.saved()[0].TrackID)
	assert.Len(t, fallback.saved(), 1)
}

func TestCloseIsIdempotent(t *testing.T) {
	primary := &memStore{}
	c := New(Options{Now: newFakeClock().Now}, primary, nil)
	c.SetValidated(ValidatedParams{TrackID: 1, Tier: quality.Lossless, URL: "u"})

	c.Close()
	c.Close()
	assert.Equal(t, 1, primary.saveCount())
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	rg := -4.5
	in := []Entry{{
		TrackID:    42,
		Tier:       quality.HiResLossless,
		URL:        "https://cdn.example.com/42",
		ReplayGain: &rg,
	}}
	require.NoError(t, store.SaveEntries(in))

	out, err := store.LoadEntries()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(42), out[0].TrackID)
	assert.Equal(t, quality.HiResLossless, out[0].Tier)
	require.NotNil(t, out[0].ReplayGain)
	assert.InDelta(t, -4.5, *out[0].ReplayGain, 1e-9)
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(t.TempDir())
	entries, err := store.LoadEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStoreUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(store.path, []byte(`{"version":99,"entries":[{"TrackID":1}]}`), 0o644))

	entries, err := store.LoadEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
