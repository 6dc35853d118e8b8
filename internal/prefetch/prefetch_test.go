package prefetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/hifi/internal/api"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/resolver"
	"github.com/llehouerou/hifi/internal/streamcache"
)

type scriptedAPI struct {
	mu    sync.Mutex
	urls  map[int64]string
	err   error
	calls int
}

func (s *scriptedAPI) GetStreamData(_ context.Context, trackID int64, _ quality.Tier) (*api.StreamData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	url, ok := s.urls[trackID]
	if !ok {
		return nil, errors.New("unknown track")
	}
	return &api.StreamData{URL: url}, nil
}

func (s *scriptedAPI) GetDashManifestWithMetadata(context.Context, int64, quality.Tier) (*api.ManifestResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedAPI) GetTrack(context.Context, int64) (*api.TrackInfo, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedAPI) InvalidateStreamData(int64, quality.Tier) {}

func (s *scriptedAPI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestScheduler(backend *scriptedAPI, opts Options) (*Scheduler, *streamcache.Cache) {
	cache := streamcache.New(streamcache.Options{}, nil, nil)
	res := resolver.New(backend, cache)
	return New(res, cache, opts), cache
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func firstPartyTarget(id int64) Target {
	return Target{
		Track: queue.Track{Kind: queue.FirstParty, ID: id, MaxQuality: quality.Lossless},
		Tier:  quality.Lossless,
	}
}

func TestSchedulePopulatesCache(t *testing.T) {
	backend := &scriptedAPI{urls: map[int64]string{1: "https://cdn.example.com/1"}}
	s, cache := newTestScheduler(backend, Options{})
	defer s.Stop()

	s.Schedule([]Target{firstPartyTarget(1)})

	waitFor(t, func() bool { return cache.Get(1, quality.Lossless) != nil })
	assert.Equal(t, "https://cdn.example.com/1", cache.Get(1, quality.Lossless).URL)
}

func TestScheduleDataSaverDisables(t *testing.T) {
	backend := &scriptedAPI{urls: map[int64]string{1: "u"}}
	s, cache := newTestScheduler(backend, Options{DataSaver: true})
	defer s.Stop()

	s.Schedule([]Target{firstPartyTarget(1)})

	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, cache.Get(1, quality.Lossless))
	assert.Equal(t, 0, backend.callCount())
}

func TestScheduleSkipsCachedEntries(t *testing.T) {
	backend := &scriptedAPI{urls: map[int64]string{1: "u"}}
	s, cache := newTestScheduler(backend, Options{})
	defer s.Stop()

	cache.SetValidated(streamcache.ValidatedParams{TrackID: 1, Tier: quality.Lossless, URL: "warm"})
	s.Schedule([]Target{firstPartyTarget(1)})
	s.Stop()

	assert.Equal(t, 0, backend.callCount())
}

func TestScheduleSkipsUnconvertedExternals(t *testing.T) {
	backend := &scriptedAPI{urls: map[int64]string{}}
	s, _ := newTestScheduler(backend, Options{})
	defer s.Stop()

	s.Schedule([]Target{{
		Track: queue.Track{Kind: queue.ExternalLink, ExternalID: "spotify:x"},
		Tier:  quality.Lossless,
	}})
	s.Stop()

	assert.Equal(t, 0, backend.callCount())
}

func TestScheduleResolutionFailureIsSilent(t *testing.T) {
	backend := &scriptedAPI{err: errors.New("backend down")}
	s, cache := newTestScheduler(backend, Options{})

	s.Schedule([]Target{firstPartyTarget(1)})
	s.Stop()

	assert.Nil(t, cache.Get(1, quality.Lossless))
}

func TestWarmFetchRequestsRange(t *testing.T) {
	var gotRange string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotRange = r.Header.Get("Range")
		mu.Unlock()
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	backend := &scriptedAPI{urls: map[int64]string{1: srv.URL + "/1.flac"}}
	s, _ := newTestScheduler(backend, Options{})

	target := firstPartyTarget(1)
	target.Warm = true
	s.Schedule([]Target{target})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotRange != ""
	})
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, gotRange)
	assert.Equal(t, "bytes=0-131071", gotRange)
}

func TestSlowConnectionSkipsWarm(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	backend := &scriptedAPI{urls: map[int64]string{1: srv.URL + "/1.flac"}}
	s, cache := newTestScheduler(backend, Options{SlowConnection: true})

	target := firstPartyTarget(1)
	target.Warm = true
	s.Schedule([]Target{target})
	// URL resolution still happens, only the warm fetch is skipped.
	waitFor(t, func() bool { return cache.Get(1, quality.Lossless) != nil })
	s.Stop()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, hits)
}
