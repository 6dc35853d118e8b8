// Package resolver turns a (track, quality) pair into a playable stream
// candidate, consulting the stream cache before the backend.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/llehouerou/hifi/internal/api"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/streamcache"
)

// Source records where a candidate came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceAPI   Source = "api"
)

// Candidate is a resolved, playable URL plus its audio metadata for a
// specific (track, quality) pair.
type Candidate struct {
	TrackID    int64
	URL        string
	Tier       quality.Tier
	Source     Source
	ReplayGain *float64
	SampleRate *int
	BitDepth   *int
	ResolvedAt time.Time
}

const probeTimeout = 5 * time.Second

// Resolver resolves stream candidates.
type Resolver struct {
	api   api.StreamAPI
	cache *streamcache.Cache
	probe *resty.Client
}

// New creates a resolver over the backend API and the stream cache.
func New(streamAPI api.StreamAPI, cache *streamcache.Cache) *Resolver {
	return &Resolver{
		api:   streamAPI,
		cache: cache,
		probe: resty.New().SetTimeout(probeTimeout),
	}
}

// Resolve produces a stream candidate for the track at the requested tier,
// downgrading transparently to the track's intrinsic best quality. With
// allowCache a non-expired cache entry short-circuits the network call.
// Returns nil with an error on failure; retry policy belongs to the caller.
func (r *Resolver) Resolve(ctx context.Context, track *queue.Track, tier quality.Tier, allowCache bool) (*Candidate, error) {
	if track == nil || track.ID == 0 {
		return nil, fmt.Errorf("resolve: track has no playable id")
	}
	effective := quality.Normalize(tier, track.MaxQuality)

	if allowCache {
		if entry := r.cache.Get(track.ID, effective); entry != nil {
			return &Candidate{
				TrackID:    track.ID,
				URL:        entry.URL,
				Tier:       effective,
				Source:     SourceCache,
				ReplayGain: entry.ReplayGain,
				SampleRate: entry.SampleRate,
				BitDepth:   entry.BitDepth,
				ResolvedAt: time.Now(),
			}, nil
		}
	}

	data, err := r.api.GetStreamData(ctx, track.ID, effective)
	if err != nil {
		return nil, fmt.Errorf("resolve track %d at %s: %w", track.ID, effective, err)
	}

	return &Candidate{
		TrackID:    track.ID,
		URL:        data.URL,
		Tier:       effective,
		Source:     SourceAPI,
		ReplayGain: data.ReplayGain,
		SampleRate: data.SampleRate,
		BitDepth:   data.BitDepth,
		ResolvedAt: time.Now(),
	}, nil
}

// Probe fires a short ranged GET against a resolved URL purely for
// diagnostics: latency and whether the origin honors partial content.
// Runs in the background and never blocks or gates playback.
func (r *Resolver) Probe(url string) {
	go func() {
		start := time.Now()
		resp, err := r.probe.R().
			SetHeader("Range", "bytes=0-1023").
			Get(url)
		if err != nil {
			log.Debug().Err(err).Msg("stream probe failed")
			return
		}
		log.Debug().
			Dur("latency", time.Since(start)).
			Int("status", resp.StatusCode()).
			Bool("partial", resp.StatusCode() == 206).
			Msg("stream probe")
	}()
}
