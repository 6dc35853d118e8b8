package streamcache

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/llehouerou/hifi/internal/quality"
)

// Entry is a cached resolved stream URL with its audio metadata and the
// bookkeeping needed for expiry and failure eviction.
type Entry struct {
	TrackID int64
	Tier    quality.Tier

	URL        string
	ReplayGain *float64
	SampleRate *int
	BitDepth   *int

	FetchedAt   time.Time
	ValidatedAt time.Time
	LastUsedAt  time.Time
	ExpiresAt   time.Time // zero if the URL carries no expiry

	FailureCount  int
	LastFailureAt time.Time
}

// Key builds the cache key for a (track, quality) pair.
func Key(trackID int64, tier quality.Tier) string {
	return fmt.Sprintf("%d:%s", trackID, tier)
}

// parseURLExpiry extracts an expiry timestamp from signed-URL query
// parameters. Supports the `Expires=<unix>` convention and AWS SigV4
// (`X-Amz-Date` + `X-Amz-Expires`). Returns the zero time when the URL
// carries no recognizable expiry.
func parseURLExpiry(rawURL string) time.Time {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}
	}
	q := u.Query()

	if v := q.Get("Expires"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil && unix > 0 {
			return time.Unix(unix, 0)
		}
	}

	amzDate := q.Get("X-Amz-Date")
	amzExpires := q.Get("X-Amz-Expires")
	if amzDate != "" && amzExpires != "" {
		signed, err := time.Parse("20060102T150405Z", amzDate)
		if err != nil {
			return time.Time{}
		}
		seconds, err := strconv.ParseInt(amzExpires, 10, 64)
		if err != nil || seconds <= 0 {
			return time.Time{}
		}
		return signed.Add(time.Duration(seconds) * time.Second)
	}

	return time.Time{}
}
