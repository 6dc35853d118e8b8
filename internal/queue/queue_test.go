package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTracks(n int) []Track {
	tracks := make([]Track, n)
	for i := range tracks {
		tracks[i] = Track{Kind: FirstParty, ID: int64(i + 1)}
	}
	return tracks
}

func testQueue(n int) *Queue {
	q := NewWithRand(rand.New(rand.NewSource(1)))
	q.Replace(makeTracks(n), 0)
	return q
}

func TestReplace(t *testing.T) {
	q := New()
	current := q.Replace(makeTracks(3), 1)
	require.NotNil(t, current)
	assert.Equal(t, int64(2), current.ID)
	assert.Equal(t, 1, q.CurrentIndex())
	assert.Equal(t, 3, q.Len())
}

func TestReplaceWithoutStart(t *testing.T) {
	q := New()
	assert.Nil(t, q.Replace(makeTracks(3), -1))
	assert.Equal(t, -1, q.CurrentIndex())
	assert.Nil(t, q.Current())
}

func TestReplaceOutOfRangeStart(t *testing.T) {
	q := New()
	assert.Nil(t, q.Replace(makeTracks(3), 7))
	assert.Equal(t, -1, q.CurrentIndex())
}

func TestAppendReturnsFirstAddedIndex(t *testing.T) {
	q := testQueue(2)
	first := q.Append(makeTracks(2)...)
	assert.Equal(t, 2, first)
	assert.Equal(t, 4, q.Len())

	assert.Equal(t, -1, q.Append())
}

func TestInsertAfterCurrent(t *testing.T) {
	q := testQueue(3)
	q.JumpTo(1)
	q.InsertAfterCurrent(Track{Kind: FirstParty, ID: 99})

	tracks := q.Tracks()
	require.Len(t, tracks, 4)
	assert.Equal(t, int64(99), tracks[2].ID)
	assert.Equal(t, 1, q.CurrentIndex())
}

func TestInsertAfterCurrentEmptyQueue(t *testing.T) {
	q := New()
	q.InsertAfterCurrent(Track{Kind: FirstParty, ID: 99})
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, -1, q.CurrentIndex())
}

func TestRemoveAtBeforeCurrentShiftsPointer(t *testing.T) {
	q := testQueue(3)
	q.JumpTo(2)

	removedCurrent, ok := q.RemoveAt(0)
	require.True(t, ok)
	assert.False(t, removedCurrent)
	assert.Equal(t, 1, q.CurrentIndex())
	assert.Equal(t, int64(3), q.Current().ID)
}

func TestRemoveAtCurrent(t *testing.T) {
	q := testQueue(3)
	q.JumpTo(1)

	removedCurrent, ok := q.RemoveAt(1)
	require.True(t, ok)
	assert.True(t, removedCurrent)
	assert.Equal(t, 1, q.CurrentIndex())
	assert.Equal(t, int64(3), q.Current().ID)
}

func TestRemoveAtLastWhileCurrent(t *testing.T) {
	q := testQueue(2)
	q.JumpTo(1)

	removedCurrent, ok := q.RemoveAt(1)
	require.True(t, ok)
	assert.True(t, removedCurrent)
	assert.Equal(t, 0, q.CurrentIndex())
}

func TestRemoveAtOnlyTrack(t *testing.T) {
	q := testQueue(1)
	removedCurrent, ok := q.RemoveAt(0)
	require.True(t, ok)
	assert.True(t, removedCurrent)
	assert.Equal(t, -1, q.CurrentIndex())
	assert.True(t, q.IsEmpty())
}

func TestRemoveAtOutOfRange(t *testing.T) {
	q := testQueue(2)
	_, ok := q.RemoveAt(5)
	assert.False(t, ok)
	_, ok = q.RemoveAt(-1)
	assert.False(t, ok)
}

func TestUpdateTrack(t *testing.T) {
	q := testQueue(2)
	q.UpdateTrack(1, Track{Kind: FirstParty, ID: 42, Title: "Converted"})
	assert.Equal(t, int64(42), q.Track(1).ID)

	q.UpdateTrack(9, Track{ID: 7}) // out of range, ignored
	assert.Equal(t, 2, q.Len())
}

func TestAdvanceLinearNoRepeat(t *testing.T) {
	q := testQueue(3)

	idx, ok := q.Advance()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = q.Advance()
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = q.Advance()
	assert.False(t, ok)
	assert.Equal(t, 2, q.CurrentIndex(), "index stays on the last track at end of queue")
}

func TestAdvanceRepeatAllWraps(t *testing.T) {
	q := testQueue(2)
	q.SetRepeatMode(RepeatAll)
	q.JumpTo(1)

	idx, ok := q.Advance()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestAdvanceRepeatOneStays(t *testing.T) {
	q := testQueue(3)
	q.SetRepeatMode(RepeatOne)
	q.JumpTo(1)

	idx, ok := q.Advance()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 1, q.CurrentIndex())
}

func TestPeekNextDoesNotMove(t *testing.T) {
	q := testQueue(3)

	next, ok := q.PeekNext()
	require.True(t, ok)
	assert.Equal(t, 1, next)
	assert.Equal(t, 0, q.CurrentIndex())

	// Peek then advance land on the same index.
	idx, ok := q.Advance()
	require.True(t, ok)
	assert.Equal(t, next, idx)
}

func TestPeekNextAtEndNoRepeat(t *testing.T) {
	q := testQueue(2)
	q.JumpTo(1)
	_, ok := q.PeekNext()
	assert.False(t, ok)
}

func TestPeekNextEmptyQueue(t *testing.T) {
	q := New()
	_, ok := q.PeekNext()
	assert.False(t, ok)
}

func TestRetreatLinear(t *testing.T) {
	q := testQueue(3)
	q.JumpTo(2)

	idx, ok := q.Retreat()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestRetreatAtStartNoRepeat(t *testing.T) {
	q := testQueue(3)
	_, ok := q.Retreat()
	assert.False(t, ok)
	assert.Equal(t, 0, q.CurrentIndex())
}

func TestRetreatAtStartRepeatAllWraps(t *testing.T) {
	q := testQueue(3)
	q.SetRepeatMode(RepeatAll)

	idx, ok := q.Retreat()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestShuffleAdvanceVisitsEveryTrackOnce(t *testing.T) {
	const n = 10
	q := NewWithRand(rand.New(rand.NewSource(7)))
	q.Replace(makeTracks(n), 0)
	q.SetShuffle(true)

	seen := map[int]bool{0: true}
	for range n - 1 {
		idx, ok := q.Advance()
		require.True(t, ok)
		assert.False(t, seen[idx], "index %d visited twice", idx)
		seen[idx] = true
	}
	assert.Len(t, seen, n)

	// Without repeat the cycle ends here.
	_, ok := q.Advance()
	assert.False(t, ok)
}

func TestShuffleRepeatAllRefills(t *testing.T) {
	const n = 4
	q := NewWithRand(rand.New(rand.NewSource(3)))
	q.Replace(makeTracks(n), 0)
	q.SetRepeatMode(RepeatAll)
	q.SetShuffle(true)

	for range n - 1 {
		_, ok := q.Advance()
		require.True(t, ok)
	}

	// Pool exhausted; the next advance starts a fresh cycle.
	idx, ok := q.Advance()
	require.True(t, ok)
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, n)
}

func TestShufflePeekMatchesAdvance(t *testing.T) {
	q := NewWithRand(rand.New(rand.NewSource(5)))
	q.Replace(makeTracks(6), 0)
	q.SetShuffle(true)

	for range 5 {
		next, ok := q.PeekNext()
		require.True(t, ok)
		idx, ok := q.Advance()
		require.True(t, ok)
		assert.Equal(t, next, idx)
	}
}

func TestShuffleRetreatWalksHistory(t *testing.T) {
	q := NewWithRand(rand.New(rand.NewSource(11)))
	q.Replace(makeTracks(5), 0)
	q.SetShuffle(true)

	first, ok := q.Advance()
	require.True(t, ok)
	second, ok := q.Advance()
	require.True(t, ok)
	require.Equal(t, second, q.CurrentIndex())

	idx, ok := q.Retreat()
	require.True(t, ok)
	assert.Equal(t, first, idx)

	idx, ok = q.Retreat()
	require.True(t, ok)
	assert.Equal(t, 0, idx, "history bottoms out at the starting track")

	_, ok = q.Retreat()
	assert.False(t, ok, "nothing before the starting track")
	assert.Equal(t, 0, q.CurrentIndex())
}

func TestShuffleRetreatThenAdvanceReplaysAbandoned(t *testing.T) {
	q := NewWithRand(rand.New(rand.NewSource(13)))
	q.Replace(makeTracks(5), 0)
	q.SetShuffle(true)

	_, ok := q.Advance()
	require.True(t, ok)
	abandoned := q.CurrentIndex()
	second, ok := q.Advance()
	require.True(t, ok)
	_ = second

	prev, ok := q.Retreat()
	require.True(t, ok)
	assert.Equal(t, abandoned, prev)

	// The abandoned track went back to the front of the pool.
	idx, ok := q.Advance()
	require.True(t, ok)
	assert.Equal(t, second, idx)
}

func TestClear(t *testing.T) {
	q := testQueue(3)
	q.Clear()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, -1, q.CurrentIndex())
	assert.Nil(t, q.Current())
}

func TestTrackIdentity(t *testing.T) {
	fp := Track{Kind: FirstParty, ID: 42}
	ext := Track{Kind: ExternalLink, ExternalID: "spotify:track:abc"}

	assert.Equal(t, "fp:42", fp.Identity())
	assert.Equal(t, "ext:spotify:track:abc", ext.Identity())
}

func TestSameTrack(t *testing.T) {
	a := Track{Kind: FirstParty, ID: 1, Title: "A"}
	b := Track{Kind: FirstParty, ID: 1, Title: "renamed"}
	c := Track{Kind: FirstParty, ID: 2}

	assert.True(t, SameTrack(&a, &b))
	assert.False(t, SameTrack(&a, &c))
	assert.False(t, SameTrack(&a, nil))
	assert.True(t, SameTrack(nil, nil))
}
