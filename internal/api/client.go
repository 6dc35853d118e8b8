// Package api provides the HTTP client for the lossless streaming backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/llehouerou/hifi/internal/quality"
)

const requestTimeout = 30 * time.Second

// StreamAPI is the backend contract the resolver and controller consume.
// All calls may fail; callers treat failure as recoverable.
type StreamAPI interface {
	GetStreamData(ctx context.Context, trackID int64, tier quality.Tier) (*StreamData, error)
	GetDashManifestWithMetadata(ctx context.Context, trackID int64, tier quality.Tier) (*ManifestResponse, error)
	GetTrack(ctx context.Context, trackID int64) (*TrackInfo, error)
	InvalidateStreamData(trackID int64, tier quality.Tier)
}

// LinkResolver converts an external (Songlink/Spotify) reference into a
// first-party track id.
type LinkResolver interface {
	ResolveExternal(ctx context.Context, externalID string) (*ConversionResult, error)
}

// Client is the resty-based implementation of StreamAPI and LinkResolver.
type Client struct {
	http *resty.Client
}

// Verify interfaces at compile time.
var (
	_ StreamAPI    = (*Client)(nil)
	_ LinkResolver = (*Client)(nil)
)

// NewClient creates a backend client with sensible defaults.
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(requestTimeout),
	}
}

// GetStreamData fetches a fresh stream URL for a track at the given tier.
func (c *Client) GetStreamData(ctx context.Context, trackID int64, tier quality.Tier) (*StreamData, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("quality", tier.String()).
		Get(fmt.Sprintf("/track/%d/stream", trackID))
	if err != nil {
		return nil, fmt.Errorf("fetch stream data for track %d: %w", trackID, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("stream data for track %d: status %d: %s", trackID, resp.StatusCode(), resp.Status())
	}

	var data StreamData
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, fmt.Errorf("parse stream data response: %w", err)
	}
	if data.URL == "" {
		return nil, fmt.Errorf("stream data for track %d: empty url", trackID)
	}
	return &data, nil
}

// GetDashManifestWithMetadata fetches the hi-res manifest (or FLAC fallback)
// for a track together with its metadata.
func (c *Client) GetDashManifestWithMetadata(ctx context.Context, trackID int64, tier quality.Tier) (*ManifestResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("quality", tier.String()).
		Get(fmt.Sprintf("/track/%d/manifest", trackID))
	if err != nil {
		return nil, fmt.Errorf("fetch manifest for track %d: %w", trackID, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("manifest for track %d: status %d: %s", trackID, resp.StatusCode(), resp.Status())
	}

	var manifest ManifestResponse
	if err := json.Unmarshal(resp.Body(), &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest response: %w", err)
	}
	return &manifest, nil
}

// GetTrack fetches track metadata by id.
func (c *Client) GetTrack(ctx context.Context, trackID int64) (*TrackInfo, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/track/%d", trackID))
	if err != nil {
		return nil, fmt.Errorf("fetch track %d: %w", trackID, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("track %d: status %d: %s", trackID, resp.StatusCode(), resp.Status())
	}

	var response struct {
		Track TrackInfo `json:"track"`
	}
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, fmt.Errorf("parse track response: %w", err)
	}
	return &response.Track, nil
}

// InvalidateStreamData drops any server-side cached URL for the pair. The
// backend treats this as advisory, so a failed call is ignored.
func (c *Client) InvalidateStreamData(trackID int64, tier quality.Tier) {
	_, _ = c.http.R().
		SetQueryParam("quality", tier.String()).
		Delete(fmt.Sprintf("/track/%d/stream/cache", trackID))
}

// ResolveExternal converts an external link reference to a first-party
// track id via the backend's conversion endpoint.
func (c *Client) ResolveExternal(ctx context.Context, externalID string) (*ConversionResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("url", externalID).
		Get("/convert")
	if err != nil {
		return nil, fmt.Errorf("resolve external link %q: %w", externalID, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("resolve external link %q: status %d: %s", externalID, resp.StatusCode(), resp.Status())
	}

	var result ConversionResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("parse conversion response: %w", err)
	}
	return &result, nil
}
