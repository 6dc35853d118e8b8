package state

import (
	"database/sql"
	"sync"

	"github.com/llehouerou/hifi/internal/playback"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/streamcache"
)

// Mock is an in-memory Interface implementation for tests.
type Mock struct {
	mu sync.Mutex

	Prefs      *playback.Prefs
	Queue      *QueueState
	Entries    []streamcache.Entry
	PrefsSaves int
	QueueSaves int
}

var _ Interface = (*Mock)(nil)

// NewMock creates an empty mock state manager.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) DB() *sql.DB { return nil }

func (m *Mock) SavePrefs(p playback.Prefs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prefs = &p
	m.PrefsSaves++
}

func (m *Mock) GetPrefs() (playback.Prefs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Prefs == nil {
		return playback.DefaultPrefs(), nil
	}
	return *m.Prefs, nil
}

func (m *Mock) SaveQueue(tracks []queue.Track, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queue = &QueueState{Tracks: tracks, Index: index}
	m.QueueSaves++
}

func (m *Mock) GetQueue() (*QueueState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Queue == nil {
		return &QueueState{Index: -1}, nil
	}
	return m.Queue, nil
}

func (m *Mock) LoadEntries() ([]streamcache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]streamcache.Entry(nil), m.Entries...), nil
}

func (m *Mock) SaveEntries(entries []streamcache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append([]streamcache.Entry(nil), entries...)
	return nil
}

func (m *Mock) Close() error { return nil }
