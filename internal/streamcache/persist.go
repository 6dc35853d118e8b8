package streamcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is a durable backend for cache entries. The cache writes the full
// entry set (debounced) and reads it back once at first use.
type Store interface {
	LoadEntries() ([]Entry, error)
	SaveEntries([]Entry) error
}

// hydrateLocked loads persisted entries on first use. The primary store is
// preferred; on failure or emptiness the fallback store is consulted and
// whichever store missed is backfilled.
func (c *Cache) hydrateLocked() {
	if c.hydrated {
		return
	}
	c.hydrated = true

	entries, fromFallback := c.loadPersisted()
	if len(entries) == 0 {
		return
	}

	for i := range entries {
		entry := entries[i]
		if c.expiredLocked(&entry) {
			continue
		}
		c.lru.Add(Key(entry.TrackID, entry.Tier), &entry)
	}
	log.Debug().Int("entries", c.lru.Len()).Msg("stream cache rehydrated")

	if fromFallback && c.primary != nil {
		if err := c.primary.SaveEntries(entries); err != nil {
			log.Debug().Err(err).Msg("stream cache backfill to primary store failed")
		}
	}
}

func (c *Cache) loadPersisted() (entries []Entry, fromFallback bool) {
	if c.primary != nil {
		entries, err := c.primary.LoadEntries()
		if err == nil && len(entries) > 0 {
			return entries, false
		}
		if err != nil {
			log.Debug().Err(err).Msg("stream cache primary store read failed")
		}
	}
	if c.fallback != nil {
		entries, err := c.fallback.LoadEntries()
		if err != nil {
			log.Debug().Err(err).Msg("stream cache fallback store read failed")
			return nil, false
		}
		return entries, true
	}
	return nil, false
}

// scheduleSaveLocked coalesces writes within the debounce window.
func (c *Cache) scheduleSaveLocked() {
	c.saveDirty = true
	if c.saveTimer != nil {
		c.saveTimer.Stop()
	}
	c.saveTimer = time.AfterFunc(persistDebounce, func() {
		c.mu.Lock()
		if !c.saveDirty {
			c.mu.Unlock()
			return
		}
		c.saveDirty = false
		entries := c.snapshotLocked()
		c.mu.Unlock()

		c.persist(entries)
	})
}

func (c *Cache) snapshotLocked() []Entry {
	keys := c.lru.Keys()
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		if entry, ok := c.lru.Peek(key); ok {
			entries = append(entries, *entry)
		}
	}
	return entries
}

func (c *Cache) persist(entries []Entry) {
	if c.primary != nil {
		if err := c.primary.SaveEntries(entries); err != nil {
			log.Debug().Err(err).Msg("stream cache primary store write failed")
		}
	}
	if c.fallback != nil {
		if err := c.fallback.SaveEntries(entries); err != nil {
			log.Debug().Err(err).Msg("stream cache fallback store write failed")
		}
	}
}

const fileStoreVersion = 1

// FileStore is the simple key-value fallback store: a versioned JSON file
// in the user cache directory.
type FileStore struct {
	path string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "streamcache.json")}
}

type filePayload struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// LoadEntries reads the persisted entry set. A missing file is not an error.
func (s *FileStore) LoadEntries() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var payload filePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload.Version != fileStoreVersion {
		return nil, nil
	}
	return payload.Entries, nil
}

// SaveEntries writes the full entry set atomically.
func (s *FileStore) SaveEntries(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(filePayload{Version: fileStoreVersion, Entries: entries})
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
