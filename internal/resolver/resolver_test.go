package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/hifi/internal/api"
	"github.com/llehouerou/hifi/internal/quality"
	"github.com/llehouerou/hifi/internal/queue"
	"github.com/llehouerou/hifi/internal/streamcache"
)

// fakeAPI scripts GetStreamData responses and records call counts.
type fakeAPI struct {
	streamData map[int64]*api.StreamData
	err        error
	calls      int
}

func (f *fakeAPI) GetStreamData(_ context.Context, trackID int64, _ quality.Tier) (*api.StreamData, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.streamData[trackID]
	if !ok {
		return nil, errors.New("track not found")
	}
	return data, nil
}

func (f *fakeAPI) GetDashManifestWithMetadata(context.Context, int64, quality.Tier) (*api.ManifestResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) GetTrack(context.Context, int64) (*api.TrackInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) InvalidateStreamData(int64, quality.Tier) {}

func newTestResolver(backend *fakeAPI) (*Resolver, *streamcache.Cache) {
	cache := streamcache.New(streamcache.Options{}, nil, nil)
	return New(backend, cache), cache
}

func TestResolveFromAPI(t *testing.T) {
	rg := -3.0
	backend := &fakeAPI{streamData: map[int64]*api.StreamData{
		1: {URL: "https://cdn.example.com/1.flac", ReplayGain: &rg},
	}}
	r, _ := newTestResolver(backend)

	track := &queue.Track{Kind: queue.FirstParty, ID: 1, MaxQuality: quality.Lossless}
	c, err := r.Resolve(context.Background(), track, quality.Lossless, true)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/1.flac", c.URL)
	assert.Equal(t, SourceAPI, c.Source)
	assert.Equal(t, quality.Lossless, c.Tier)
	require.NotNil(t, c.ReplayGain)
	assert.InDelta(t, -3.0, *c.ReplayGain, 1e-9)
}

func TestResolveCacheHitSkipsBackend(t *testing.T) {
	backend := &fakeAPI{}
	r, cache := newTestResolver(backend)
	cache.SetValidated(streamcache.ValidatedParams{
		TrackID: 1, Tier: quality.Lossless, URL: "https://cdn.example.com/cached",
	})

	track := &queue.Track{Kind: queue.FirstParty, ID: 1, MaxQuality: quality.Lossless}
	c, err := r.Resolve(context.Background(), track, quality.Lossless, true)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, c.Source)
	assert.Equal(t, "https://cdn.example.com/cached", c.URL)
	assert.Equal(t, 0, backend.calls)
}

func TestResolveCacheDisallowed(t *testing.T) {
	backend := &fakeAPI{streamData: map[int64]*api.StreamData{
		1: {URL: "https://cdn.example.com/fresh"},
	}}
	r, cache := newTestResolver(backend)
	cache.SetValidated(streamcache.ValidatedParams{
		TrackID: 1, Tier: quality.Lossless, URL: "https://cdn.example.com/cached",
	})

	track := &queue.Track{Kind: queue.FirstParty, ID: 1, MaxQuality: quality.Lossless}
	c, err := r.Resolve(context.Background(), track, quality.Lossless, false)
	require.NoError(t, err)
	assert.Equal(t, SourceAPI, c.Source)
	assert.Equal(t, "https://cdn.example.com/fresh", c.URL)
	assert.Equal(t, 1, backend.calls)
}

func TestResolveNormalizesTier(t *testing.T) {
	backend := &fakeAPI{streamData: map[int64]*api.StreamData{
		1: {URL: "u"},
	}}
	r, _ := newTestResolver(backend)

	track := &queue.Track{Kind: queue.FirstParty, ID: 1, MaxQuality: quality.High}
	c, err := r.Resolve(context.Background(), track, quality.HiResLossless, false)
	require.NoError(t, err)
	assert.Equal(t, quality.High, c.Tier, "downgraded to the track's intrinsic max")
}

func TestResolveBackendFailure(t *testing.T) {
	backend := &fakeAPI{err: errors.New("backend down")}
	r, _ := newTestResolver(backend)

	track := &queue.Track{Kind: queue.FirstParty, ID: 1, MaxQuality: quality.Lossless}
	_, err := r.Resolve(context.Background(), track, quality.Lossless, false)
	assert.ErrorContains(t, err, "backend down")
}

func TestResolveUnplayableTrack(t *testing.T) {
	r, _ := newTestResolver(&fakeAPI{})

	_, err := r.Resolve(context.Background(), nil, quality.Lossless, true)
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), &queue.Track{Kind: queue.ExternalLink}, quality.Lossless, true)
	assert.Error(t, err, "unconverted external link has no playable id")
}
