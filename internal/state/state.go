// Package state persists user preferences, the playback queue and the
// stream cache in a sqlite database under the XDG data directory.
package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/llehouerou/hifi/internal/playback"
	"github.com/llehouerou/hifi/internal/queue"
)

const (
	appName      = "hifi"
	dbFileName   = "hifi.db"
	saveDebounce = 500 * time.Millisecond
)

// Manager owns the database handle. Writes are debounced per concern so a
// burst of state changes coalesces into one flush.
type Manager struct {
	db *sql.DB

	saveMu       sync.Mutex
	prefsTimer   *time.Timer
	pendingPrefs *playback.Prefs
	queueTimer   *time.Timer
	pendingQueue *QueueState
}

// Open opens (creating if needed) the database at the default XDG path.
func Open() (*Manager, error) {
	dbPath, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, err
	}
	return OpenAt(dbPath)
}

// OpenAt opens the database at an explicit path.
func OpenAt(dbPath string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Manager{db: db}, nil
}

// Close flushes pending writes and closes the database.
func (m *Manager) Close() error {
	m.saveMu.Lock()
	if m.prefsTimer != nil {
		m.prefsTimer.Stop()
	}
	if m.queueTimer != nil {
		m.queueTimer.Stop()
	}
	prefs := m.pendingPrefs
	queueState := m.pendingQueue
	m.pendingPrefs = nil
	m.pendingQueue = nil
	m.saveMu.Unlock()

	if prefs != nil {
		_ = savePrefs(m.db, *prefs)
	}
	if queueState != nil {
		_ = saveQueue(m.db, *queueState)
	}

	return m.db.Close()
}

// DB exposes the underlying handle.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// SavePrefs schedules a debounced preference write.
func (m *Manager) SavePrefs(p playback.Prefs) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.pendingPrefs = &p

	if m.prefsTimer != nil {
		m.prefsTimer.Stop()
	}
	m.prefsTimer = time.AfterFunc(saveDebounce, func() {
		m.saveMu.Lock()
		pending := m.pendingPrefs
		m.pendingPrefs = nil
		m.saveMu.Unlock()

		if pending != nil {
			_ = savePrefs(m.db, *pending)
		}
	})
}

// SaveQueue schedules a debounced queue write.
func (m *Manager) SaveQueue(tracks []queue.Track, index int) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.pendingQueue = &QueueState{Tracks: tracks, Index: index}

	if m.queueTimer != nil {
		m.queueTimer.Stop()
	}
	m.queueTimer = time.AfterFunc(saveDebounce, func() {
		m.saveMu.Lock()
		pending := m.pendingQueue
		m.pendingQueue = nil
		m.saveMu.Unlock()

		if pending != nil {
			_ = saveQueue(m.db, *pending)
		}
	})
}

// GetPrefs returns the saved preferences, or the documented defaults when
// nothing has been saved yet or the row is unreadable.
func (m *Manager) GetPrefs() (playback.Prefs, error) {
	return getPrefs(m.db)
}

// GetQueue returns the saved queue.
func (m *Manager) GetQueue() (*QueueState, error) {
	return getQueue(m.db)
}
