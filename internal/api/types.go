package api

import "github.com/llehouerou/hifi/internal/quality"

// StreamData is the backend response for a direct stream URL request.
type StreamData struct {
	URL        string   `json:"url"`
	ReplayGain *float64 `json:"replayGain,omitempty"`
	SampleRate *int     `json:"sampleRate,omitempty"`
	BitDepth   *int     `json:"bitDepth,omitempty"`
}

// ManifestKind discriminates the payload of a hi-res manifest response.
type ManifestKind string

const (
	ManifestFlac ManifestKind = "flac"
	ManifestDash ManifestKind = "dash"
)

// ManifestResult is the payload of a hi-res (DASH) manifest request. The
// backend may answer with a plain FLAC URL instead of a manifest when the
// track has no hi-res delivery.
type ManifestResult struct {
	Kind        ManifestKind `json:"kind"`
	URL         string       `json:"url,omitempty"`
	Manifest    string       `json:"manifest,omitempty"`
	ContentType string       `json:"contentType,omitempty"`
}

// TrackInfo is the backend's track metadata record.
type TrackInfo struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	Album       string   `json:"album"`
	DurationSec float64  `json:"duration"`
	MaxQuality  string   `json:"audioQuality"`
	ReplayGain  *float64 `json:"replayGain,omitempty"`
}

// MaxTier returns the track's best available quality tier. Unknown values
// fall back to Lossless, the tier every track is guaranteed to have.
func (t TrackInfo) MaxTier() quality.Tier {
	tier, err := quality.Parse(t.MaxQuality)
	if err != nil {
		return quality.Lossless
	}
	return tier
}

// ManifestResponse bundles a manifest result with the track metadata the
// backend returns alongside it.
type ManifestResponse struct {
	Result    ManifestResult `json:"result"`
	TrackInfo TrackInfo      `json:"trackInfo"`
}

// ConversionResult is the outcome of resolving an external link to a
// first-party track id. A nil TidalID means the content is unavailable.
type ConversionResult struct {
	TidalID *int64     `json:"tidalId"`
	Track   *TrackInfo `json:"track,omitempty"`
}
