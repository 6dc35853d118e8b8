package state

import (
	"database/sql"

	"github.com/llehouerou/hifi/internal/playback"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/streamcache"
)

// Interface defines the state manager contract for dependency injection and testing.
type Interface interface {
	DB() *sql.DB
	SavePrefs(p playback.Prefs)
	GetPrefs() (playback.Prefs, error)
	SaveQueue(tracks []queue.Track, index int)
	GetQueue() (*QueueState, error)
	LoadEntries() ([]streamcache.Entry, error)
	SaveEntries([]streamcache.Entry) error
	Close() error
}

// Verify Manager satisfies its contracts at compile time.
var (
	_ Interface          = (*Manager)(nil)
	_ playback.Persister = (*Manager)(nil)
	_ streamcache.Store  = (*Manager)(nil)
)
