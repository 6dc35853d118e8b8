package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainSlotEvent(t *testing.T, d *Dual) SlotEvent {
	t.Helper()
	select {
	case ev := <-d.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for slot event")
		return SlotEvent{}
	}
}

func expectNoSlotEvent(t *testing.T, d *Dual) {
	t.Helper()
	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected slot event: %v from active=%v", ev.Event.Type, ev.FromActive)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDualForwardsActiveEvents(t *testing.T) {
	a, b := NewMock(), NewMock()
	d := NewDual(a, b)
	defer d.Close()

	a.Load("u")

	ev := drainSlotEvent(t, d)
	assert.True(t, ev.FromActive)
	assert.Equal(t, EventLoadStart, ev.Event.Type)
}

func TestDualDropsInactiveEventsByDefault(t *testing.T) {
	a, b := NewMock(), NewMock()
	d := NewDual(a, b)
	defer d.Close()

	b.Load("next")
	expectNoSlotEvent(t, d)
}

func TestDualForwardsInactiveWhenEnabled(t *testing.T) {
	a, b := NewMock(), NewMock()
	d := NewDual(a, b)
	defer d.Close()

	d.SetInactiveForwarding(true)
	b.Load("next")

	ev := drainSlotEvent(t, d)
	assert.False(t, ev.FromActive)
	assert.Equal(t, EventLoadStart, ev.Event.Type)
}

func TestDualSwapActive(t *testing.T) {
	a, b := NewMock(), NewMock()
	d := NewDual(a, b)
	defer d.Close()

	require.Same(t, Engine(a), d.Active())
	require.Same(t, Engine(b), d.Inactive())

	previous := d.SwapActive()
	assert.Same(t, Engine(a), previous)
	assert.Same(t, Engine(b), d.Active())
	assert.Same(t, Engine(a), d.Inactive())
}

func TestDualSwapRetagsEventOrigin(t *testing.T) {
	a, b := NewMock(), NewMock()
	d := NewDual(a, b)
	defer d.Close()

	d.SwapActive()
	b.Load("u")

	ev := drainSlotEvent(t, d)
	assert.True(t, ev.FromActive, "slot b is active after the swap")
}

func TestDualUnlockPrimesActive(t *testing.T) {
	a, b := NewMock(), NewMock()
	d := NewDual(a, b)
	defer d.Close()

	d.Unlock()
	assert.Equal(t, 1, a.UnlockCalls())
	assert.Equal(t, 0, b.UnlockCalls())
}

func TestDualCloseIsIdempotent(t *testing.T) {
	d := NewDual(NewMock(), NewMock())
	d.Close()
	d.Close()
}
