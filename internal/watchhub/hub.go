// Package watchhub implements the in-memory fan-out from state-machine
// ChangeEvents to subscribers, keyed by watch key ("tenant/app/env/name"),
// with a slow-consumer Lagged policy. The concurrent map from watch key to
// channel is github.com/puzpuzpuz/xsync/v3's MapOf, which already shards
// internally; the conditional-delete in Sweep uses MapOf.Compute so a
// check-then-delete cannot race a concurrent subscriber.
package watchhub

import (
	"context"
	"time"

	"github.com/conflux-sh/conflux/internal/confluxlog"
	"github.com/conflux-sh/conflux/internal/model"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = confluxlog.Get("watchhub")

// DefaultCapacity is the default number of events a channel buffers before a
// slow subscriber starts lagging.
const DefaultCapacity = 128

// DefaultIdleGrace is how long a channel with zero live receivers survives
// before the reclamation sweep removes it.
const DefaultIdleGrace = 5 * time.Minute

// Hub is the process-wide fan-out registry.
type Hub struct {
	channels *xsync.MapOf[string, *channel]
	capacity int
	grace    time.Duration
}

// Option configures a Hub.
type Option func(*Hub)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(h *Hub) { h.capacity = n }
}

// WithIdleGrace overrides DefaultIdleGrace.
func WithIdleGrace(d time.Duration) Option {
	return func(h *Hub) { h.grace = d }
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		channels: xsync.NewMapOf[string, *channel](),
		capacity: DefaultCapacity,
		grace:    DefaultIdleGrace,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe atomically gets-or-creates the channel for key and returns a
// new Receiver handle. Creation is idempotent: two concurrent subscribers
// to a new key both receive handles to the same channel.
func (h *Hub) Subscribe(key string) *Receiver {
	candidate := newChannel(h.capacity)
	ch, loaded := h.channels.LoadOrStore(key, candidate)
	if loaded {
		// Someone else won the race to create this key's channel; the
		// candidate we built is simply discarded.
		return ch.newReceiver()
	}
	return candidate.newReceiver()
}

// Publish fires events at every live subscriber of key. If no channel exists
// for key the event is silently dropped. Publish
// never blocks: appending to a channel's ring buffer only ever takes a
// short-held mutex, never waits on a slow reader, so the state-machine apply
// path that calls this is never stalled by a watch subscriber.
func (h *Hub) Publish(key string, event model.ChangeEvent) {
	ch, ok := h.channels.Load(key)
	if !ok {
		return
	}
	ch.publish(event)
}

// Sweep removes every channel with zero live receivers that has been idle
// beyond the Hub's grace period, preventing unbounded growth as short-lived
// watch keys accumulate.
func (h *Hub) Sweep(now time.Time) (removed int) {
	h.channels.Range(func(key string, ch *channel) bool {
		if ch.reclaimable(now, h.grace) {
			// Only delete if still reclaimable under the map's lock to avoid a
			// race against a subscriber that arrived between the check above
			// and the delete.
			h.channels.Compute(key, func(old *channel, loaded bool) (*channel, bool) {
				if !loaded {
					return nil, true
				}
				if old.reclaimable(now, h.grace) {
					removed++
					return nil, true // delete
				}
				return old, false
			})
		}
		return true
	})
	return removed
}

// RunReclamation starts a background goroutine that calls Sweep on the
// given interval until ctx is canceled.
func (h *Hub) RunReclamation(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				if n := h.Sweep(t); n > 0 {
					log.Debugf("watch hub reclamation removed %d idle channel(s)", n)
				}
			}
		}
	}()
}

// KeyCount returns the number of distinct watch keys currently registered,
// for metrics/tests.
func (h *Hub) KeyCount() int {
	return h.channels.Size()
}
