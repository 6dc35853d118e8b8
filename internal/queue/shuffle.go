package queue

import (
	"math/rand"

	"github.com/samber/lo"
)

// ShuffleBag is a pre-shuffled pool of not-yet-played queue indices,
// consumed front-to-back so randomized playback visits every track once
// before any repeat. A history stack records consumed indices so previous
// can walk backward through actual play order.
type ShuffleBag struct {
	rng     *rand.Rand
	pool    []int
	history []int
}

// NewShuffleBag creates an empty bag driven by the given RNG.
func NewShuffleBag(rng *rand.Rand) *ShuffleBag {
	return &ShuffleBag{rng: rng}
}

// Fill rebuilds the pool with a Fisher-Yates permutation of all indices in
// [0, n) except exclude. History is preserved.
func (b *ShuffleBag) Fill(n, exclude int) {
	indices := lo.Filter(lo.Range(n), func(i, _ int) bool { return i != exclude })
	for i := len(indices) - 1; i > 0; i-- {
		j := b.rng.Intn(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}
	b.pool = indices
}

// Peek returns the next index without consuming it.
func (b *ShuffleBag) Peek() (int, bool) {
	if len(b.pool) == 0 {
		return 0, false
	}
	return b.pool[0], true
}

// Next consumes and returns the next index, recording it in history.
func (b *ShuffleBag) Next() (int, bool) {
	if len(b.pool) == 0 {
		return 0, false
	}
	idx := b.pool[0]
	b.pool = b.pool[1:]
	b.history = append(b.history, idx)
	return idx, true
}

// PushFront returns an index to the front of the pool so it plays again.
func (b *ShuffleBag) PushFront(idx int) {
	b.pool = append([]int{idx}, b.pool...)
}

// RecordPlayed appends an index to the history stack without touching the
// pool. Used for the starting track, which is never in the pool.
func (b *ShuffleBag) RecordPlayed(idx int) {
	b.history = append(b.history, idx)
}

// PopHistory removes and returns the most recent history entry.
func (b *ShuffleBag) PopHistory() (int, bool) {
	if len(b.history) == 0 {
		return 0, false
	}
	idx := b.history[len(b.history)-1]
	b.history = b.history[:len(b.history)-1]
	return idx, true
}

// Empty reports whether the pool is exhausted.
func (b *ShuffleBag) Empty() bool {
	return len(b.pool) == 0
}

// Reset clears both the pool and the history.
func (b *ShuffleBag) Reset() {
	b.pool = nil
	b.history = nil
}

// Remaining returns the number of unconsumed indices.
func (b *ShuffleBag) Remaining() int {
	return len(b.pool)
}
