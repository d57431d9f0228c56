package watchhub

import (
	"sync"
	"time"

	"github.com/conflux-sh/conflux/internal/model"
)

// channel is a single watch key's fan-out point: a fixed-size ring buffer
// of the most recent events plus a monotonically increasing sequence
// counter. Every receiver tracks its own read cursor into the ring rather
// than holding a private copy queue, so a slow receiver cannot grow memory
// unboundedly: it instead falls behind and, once the writer wraps past its
// cursor, is told how many events it missed.
type channel struct {
	mu   sync.Mutex
	cond *sync.Cond

	capacity int
	buf      []model.ChangeEvent
	next     uint64 // sequence number the next published event will receive
	closed   bool

	receivers int
	idleSince time.Time
}

func newChannel(capacity int) *channel {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	c := &channel{
		capacity: capacity,
		buf:      make([]model.ChangeEvent, capacity),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// slot returns the ring index that sequence number seq is stored at.
func (c *channel) slot(seq uint64) int {
	return int(seq % uint64(c.capacity))
}

// oldest returns the lowest sequence number still held in the ring, or 0
// if the ring has never wrapped (i.e. nothing has been evicted yet).
func (c *channel) oldest() uint64 {
	if c.next < uint64(c.capacity) {
		return 0
	}
	return c.next - uint64(c.capacity)
}

func (c *channel) publish(event model.ChangeEvent) {
	c.mu.Lock()
	c.buf[c.slot(c.next)] = event
	c.next++
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *channel) newReceiver() *Receiver {
	c.mu.Lock()
	c.receivers++
	c.idleSince = time.Time{}
	cursor := c.next
	c.mu.Unlock()
	return &Receiver{ch: c, cursor: cursor}
}

// release decrements the live-receiver count; called once by Receiver.Close.
func (c *channel) release() {
	c.mu.Lock()
	c.receivers--
	if c.receivers == 0 {
		c.idleSince = time.Now()
	}
	c.mu.Unlock()
}

// reclaimable reports whether c has had zero receivers for at least grace.
// now is threaded in explicitly (rather than read via time.Now internally)
// so the reclamation sweep stays deterministic and testable.
func (c *channel) reclaimable(now time.Time, grace time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.receivers > 0 || c.idleSince.IsZero() {
		return false
	}
	return now.Sub(c.idleSince) >= grace
}

// Receiver is a single subscriber's handle on a channel: one cursor, one
// owner. It is not safe for concurrent use by multiple goroutines.
type Receiver struct {
	ch     *channel
	cursor uint64
	closed bool
}

// Next blocks until an event is available, the channel is closed, or stop
// fires, whichever happens first. It returns (event, lagged, ok): ok is
// false when stop fires, or once the channel has been closed with no
// further events pending; lagged is the number of events this receiver missed because the
// writer wrapped past its cursor before it could catch up.
func (r *Receiver) Next(stop <-chan struct{}) (event model.ChangeEvent, lagged uint64, ok bool) {
	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if oldest := c.oldest(); r.cursor < oldest {
			lagged = oldest - r.cursor
			r.cursor = oldest
		}
		if r.cursor < c.next {
			event = c.buf[c.slot(r.cursor)]
			r.cursor++
			return event, lagged, true
		}
		if c.closed {
			return model.ChangeEvent{}, lagged, false
		}

		// Wait for either a publish or stop. sync.Cond has no select-friendly
		// wait, so the wait runs on a helper goroutine. The helper re-checks
		// the sequence counter under the lock before waiting, so a publish
		// that lands between the unlock below and the helper's Wait is never
		// a lost wakeup.
		target := c.next
		aborted := false
		woke := make(chan struct{})
		go func() {
			c.mu.Lock()
			for c.next == target && !c.closed && !aborted {
				c.cond.Wait()
			}
			c.mu.Unlock()
			close(woke)
		}()
		c.mu.Unlock()
		select {
		case <-woke:
			c.mu.Lock()
		case <-stop:
			c.mu.Lock()
			aborted = true
			c.cond.Broadcast() // release the helper goroutine's Wait
			c.mu.Unlock()
			<-woke
			c.mu.Lock()
			return model.ChangeEvent{}, lagged, false
		}
	}
}

// Close releases the receiver's slot, allowing the underlying channel to
// become reclaimable once it is the last live receiver.
func (r *Receiver) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.ch.release()
}
