// Package queue holds the playback queue: ordered tracks, the current
// position, and the repeat/shuffle navigation rules including the shuffle
// bag.
package queue

import (
	"math/rand"
	"time"
)

// RepeatMode defines the repeat behavior.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Queue is the mutable playback queue. It is not safe for concurrent use;
// the controller serializes access through its command queue.
type Queue struct {
	tracks  []Track
	index   int // -1 if nothing current
	repeat  RepeatMode
	shuffle bool
	bag     *ShuffleBag
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		index: -1,
		bag:   NewShuffleBag(rand.New(rand.NewSource(time.Now().UnixNano()))),
	}
}

// NewWithRand creates an empty queue with a caller-provided RNG so shuffle
// order is reproducible in tests.
func NewWithRand(rng *rand.Rand) *Queue {
	return &Queue{index: -1, bag: NewShuffleBag(rng)}
}

// Tracks returns a copy of the queue contents.
func (q *Queue) Tracks() []Track {
	out := make([]Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int { return len(q.tracks) }

// IsEmpty reports whether the queue has no tracks.
func (q *Queue) IsEmpty() bool { return len(q.tracks) == 0 }

// CurrentIndex returns the current position, or -1.
func (q *Queue) CurrentIndex() int { return q.index }

// Current returns the current track, or nil.
func (q *Queue) Current() *Track {
	if q.index < 0 || q.index >= len(q.tracks) {
		return nil
	}
	return &q.tracks[q.index]
}

// Track returns the track at index, or nil when out of bounds.
func (q *Queue) Track(index int) *Track {
	if index < 0 || index >= len(q.tracks) {
		return nil
	}
	return &q.tracks[index]
}

// UpdateTrack overwrites the track at index in place. Used to cache a
// resolved first-party id back onto an external-link stub.
func (q *Queue) UpdateTrack(index int, t Track) {
	if index < 0 || index >= len(q.tracks) {
		return
	}
	q.tracks[index] = t
}

// Replace swaps the queue contents and jumps to start. A start of -1
// leaves nothing current.
func (q *Queue) Replace(tracks []Track, start int) *Track {
	q.tracks = make([]Track, len(tracks))
	copy(q.tracks, tracks)
	if start < 0 || start >= len(q.tracks) {
		q.index = -1
	} else {
		q.index = start
	}
	q.rebuildBag()
	return q.Current()
}

// Append adds tracks at the end and returns the index of the first added
// track, or -1 when tracks is empty.
func (q *Queue) Append(tracks ...Track) int {
	if len(tracks) == 0 {
		return -1
	}
	first := len(q.tracks)
	q.tracks = append(q.tracks, tracks...)
	q.rebuildBag()
	return first
}

// InsertAfterCurrent inserts tracks immediately after the current index.
// With nothing current the tracks are prepended.
func (q *Queue) InsertAfterCurrent(tracks ...Track) {
	if len(tracks) == 0 {
		return
	}
	at := q.index + 1
	rest := make([]Track, len(q.tracks[at:]))
	copy(rest, q.tracks[at:])
	q.tracks = append(q.tracks[:at], append(tracks, rest...)...)
	q.rebuildBag()
}

// RemoveAt removes the track at index. Reports whether the removed track
// was the current one; the caller decides whether to reload. When an entry
// below the current index is removed the pointer shifts down so the same
// logical track stays current. Removing the last remaining track leaves
// the queue empty with index -1.
func (q *Queue) RemoveAt(index int) (removedCurrent, ok bool) {
	if index < 0 || index >= len(q.tracks) {
		return false, false
	}
	removedCurrent = index == q.index
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)

	switch {
	case len(q.tracks) == 0:
		q.index = -1
	case q.index > index:
		q.index--
	case removedCurrent && q.index >= len(q.tracks):
		q.index = len(q.tracks) - 1
	}
	q.rebuildBag()
	return removedCurrent, true
}

// Clear removes everything.
func (q *Queue) Clear() {
	q.tracks = nil
	q.index = -1
	q.bag.Reset()
}

// JumpTo moves the current position to index and returns the track there.
func (q *Queue) JumpTo(index int) *Track {
	if index < 0 || index >= len(q.tracks) {
		return nil
	}
	q.index = index
	q.rebuildBag()
	return q.Current()
}

// RepeatMode returns the repeat mode.
func (q *Queue) RepeatMode() RepeatMode { return q.repeat }

// SetRepeatMode changes the repeat mode, resetting shuffle state.
func (q *Queue) SetRepeatMode(mode RepeatMode) {
	q.repeat = mode
	q.rebuildBag()
}

// Shuffle reports whether shuffle is enabled.
func (q *Queue) Shuffle() bool { return q.shuffle }

// SetShuffle toggles shuffle, resetting the bag and history.
func (q *Queue) SetShuffle(enabled bool) {
	q.shuffle = enabled
	q.rebuildBag()
}

// Bag exposes the shuffle bag for inspection.
func (q *Queue) Bag() *ShuffleBag { return q.bag }

// rebuildBag reseeds the shuffle pool after any structural or mode change.
// The current track never enters the pool and seeds the history so
// previous can return to it.
func (q *Queue) rebuildBag() {
	q.bag.Reset()
	if !q.shuffle || len(q.tracks) == 0 {
		return
	}
	q.bag.Fill(len(q.tracks), q.index)
	if q.index >= 0 {
		q.bag.RecordPlayed(q.index)
	}
}

// PeekNext derives the index that Advance would move to, without
// committing shuffle-bag consumption or moving the pointer. Returns false
// when playback would stop.
func (q *Queue) PeekNext() (int, bool) {
	if len(q.tracks) == 0 || q.index < 0 {
		return 0, false
	}
	if q.repeat == RepeatOne {
		return q.index, true
	}
	if q.shuffle {
		if q.bag.Empty() {
			// Refilling on exhaustion is idempotent with respect to a later
			// Advance, so peeking may trigger it.
			if q.repeat != RepeatAll || len(q.tracks) < 2 {
				return 0, false
			}
			q.bag.Fill(len(q.tracks), q.index)
		}
		return q.bag.Peek()
	}
	if q.index+1 < len(q.tracks) {
		return q.index + 1, true
	}
	if q.repeat == RepeatAll {
		return 0, true
	}
	return 0, false
}

// Advance commits the move PeekNext describes and returns the new index.
func (q *Queue) Advance() (int, bool) {
	next, ok := q.PeekNext()
	if !ok {
		return 0, false
	}
	if q.repeat == RepeatOne {
		return q.index, true
	}
	if q.shuffle {
		idx, ok := q.bag.Next()
		if !ok {
			return 0, false
		}
		q.index = idx
		return idx, true
	}
	q.index = next
	return next, true
}

// Retreat moves to the previous track: in shuffle mode it walks the play
// history backward, returning the abandoned index to the front of the pool;
// in linear mode it decrements with the symmetric wrap rule.
func (q *Queue) Retreat() (int, bool) {
	if len(q.tracks) == 0 || q.index < 0 {
		return 0, false
	}
	if q.shuffle {
		// Top of history is the current index.
		current, ok := q.bag.PopHistory()
		if !ok {
			return 0, false
		}
		prev, ok := q.bag.PopHistory()
		if !ok {
			// Nothing before the current track; restore and stay.
			q.bag.RecordPlayed(current)
			return 0, false
		}
		q.bag.RecordPlayed(prev)
		q.bag.PushFront(current)
		q.index = prev
		return prev, true
	}
	if q.index > 0 {
		q.index--
		return q.index, true
	}
	if q.repeat == RepeatAll {
		q.index = len(q.tracks) - 1
		return q.index, true
	}
	return 0, false
}
