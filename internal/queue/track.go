package queue

import (
	"fmt"
	"time"

	"github.com/llehouerou/hifi/internal/quality"
)

// Kind discriminates the track union. Every consumer switches on it
// exhaustively instead of shape-checking fields.
type Kind int

const (
	// FirstParty tracks carry a backend track id and are directly playable.
	FirstParty Kind = iota
	// ExternalLink tracks reference an external catalog entry and must be
	// converted to a first-party id before playback.
	ExternalLink
)

// Track is a queue entry. For ExternalLink tracks ID is zero until the
// conversion succeeds, at which point it is cached on the entry.
type Track struct {
	Kind       Kind
	ID         int64
	ExternalID string

	Title      string
	Artist     string
	Album      string
	Duration   time.Duration
	MaxQuality quality.Tier
}

// Identity returns a stable identity key for equality comparisons across
// queue mutations. Two tracks with the same identity are the same logical
// track regardless of queue position.
func (t Track) Identity() string {
	switch t.Kind {
	case ExternalLink:
		return "ext:" + t.ExternalID
	case FirstParty:
		return fmt.Sprintf("fp:%d", t.ID)
	default:
		return fmt.Sprintf("fp:%d", t.ID)
	}
}

// SameTrack reports whether two tracks share the same identity.
func SameTrack(a, b *Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Identity() == b.Identity()
}
