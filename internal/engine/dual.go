package engine

import (
	"sync"
	"sync/atomic"
)

// SlotEvent is an engine event tagged with whether it came from the active
// slot. Inactive-slot events are only delivered while crossfade preparation
// has explicitly enabled them; otherwise the inactive engine has no
// listener, so a superseded load cannot double-deliver events.
type SlotEvent struct {
	FromActive bool
	Event      Event
}

// Dual owns two interchangeable engines. Exactly one is active at a time;
// the inactive one exists solely to pre-load the next track for crossfade.
type Dual struct {
	mu     sync.Mutex
	slots  [2]Engine
	active int

	forwardInactive atomic.Bool

	out    chan SlotEvent
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewDual creates a dual engine from two engine slots.
func NewDual(primary, secondary Engine) *Dual {
	d := &Dual{
		slots: [2]Engine{primary, secondary},
		out:   make(chan SlotEvent, 128),
		done:  make(chan struct{}),
	}
	for i := range d.slots {
		d.wg.Add(1)
		go d.forward(i)
	}
	return d
}

// forward pumps one slot's events to the shared channel, applying the
// active/inactive delivery rule.
func (d *Dual) forward(slot int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case ev, ok := <-d.slots[slot].Events():
			if !ok {
				return
			}
			fromActive := d.isActive(slot)
			if !fromActive && !d.forwardInactive.Load() {
				continue
			}
			select {
			case d.out <- SlotEvent{FromActive: fromActive, Event: ev}:
			case <-d.done:
				return
			}
		}
	}
}

func (d *Dual) isActive(slot int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active == slot
}

// Active returns the engine currently owning playback.
func (d *Dual) Active() Engine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[d.active]
}

// Inactive returns the standby engine used for crossfade preparation.
func (d *Dual) Inactive() Engine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[1-d.active]
}

// SwapActive atomically transfers ownership to the standby engine and
// returns the engine that was active before the swap.
func (d *Dual) SwapActive() Engine {
	d.mu.Lock()
	defer d.mu.Unlock()
	previous := d.slots[d.active]
	d.active = 1 - d.active
	return previous
}

// SetInactiveForwarding enables event delivery from the inactive slot for
// the duration of a crossfade preparation.
func (d *Dual) SetInactiveForwarding(enabled bool) {
	d.forwardInactive.Store(enabled)
}

// Events returns the merged, tagged event stream.
func (d *Dual) Events() <-chan SlotEvent {
	return d.out
}

// Unlock primes the active engine's audio pipeline.
func (d *Dual) Unlock() {
	d.Active().Unlock()
}

// Close shuts down both engines and the forwarding goroutines.
func (d *Dual) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	for _, e := range d.slots {
		e.Close()
	}
	d.wg.Wait()
}
