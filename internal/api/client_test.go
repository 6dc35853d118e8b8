package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/hifi/internal/quality"
)

func TestGetStreamData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/track/42/stream", r.URL.Path)
		assert.Equal(t, "LOSSLESS", r.URL.Query().Get("quality"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://cdn.example.com/42.flac","replayGain":-4.2,"sampleRate":44100,"bitDepth":16}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	data, err := c.GetStreamData(context.Background(), 42, quality.Lossless)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/42.flac", data.URL)
	require.NotNil(t, data.ReplayGain)
	assert.InDelta(t, -4.2, *data.ReplayGain, 1e-9)
	require.NotNil(t, data.SampleRate)
	assert.Equal(t, 44100, *data.SampleRate)
}

func TestGetStreamDataEmptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetStreamData(context.Background(), 1, quality.Lossless)
	assert.ErrorContains(t, err, "empty url")
}

func TestGetStreamDataServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetStreamData(context.Background(), 1, quality.Lossless)
	assert.ErrorContains(t, err, "status 502")
}

func TestGetDashManifestWithMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/track/7/manifest", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"result":{"kind":"dash","manifest":"<MPD/>","contentType":"application/dash+xml"},
			"trackInfo":{"id":7,"title":"T","audioQuality":"HI_RES_LOSSLESS"}
		}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).GetDashManifestWithMetadata(context.Background(), 7, quality.HiResLossless)
	require.NoError(t, err)
	assert.Equal(t, ManifestDash, resp.Result.Kind)
	assert.Equal(t, "<MPD/>", resp.Result.Manifest)
	assert.Equal(t, int64(7), resp.TrackInfo.ID)
	assert.Equal(t, quality.HiResLossless, resp.TrackInfo.MaxTier())
}

func TestGetTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/track/9", r.URL.Path)
		_, _ = w.Write([]byte(`{"track":{"id":9,"title":"Song","artist":"Artist","duration":215,"audioQuality":"LOSSLESS"}}`))
	}))
	defer srv.Close()

	track, err := NewClient(srv.URL).GetTrack(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "Song", track.Title)
	assert.Equal(t, 215.0, track.DurationSec)
	assert.Equal(t, quality.Lossless, track.MaxTier())
}

func TestResolveExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convert", r.URL.Path)
		assert.Equal(t, "https://open.spotify.com/track/x", r.URL.Query().Get("url"))
		_, _ = w.Write([]byte(`{"tidalId":1234,"track":{"id":1234,"title":"Converted"}}`))
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL).ResolveExternal(context.Background(), "https://open.spotify.com/track/x")
	require.NoError(t, err)
	require.NotNil(t, result.TidalID)
	assert.Equal(t, int64(1234), *result.TidalID)
	require.NotNil(t, result.Track)
	assert.Equal(t, "Converted", result.Track.Title)
}

func TestResolveExternalNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ResolveExternal(context.Background(), "nope")
	assert.Error(t, err)
}
