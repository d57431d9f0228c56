package watchhub

import (
	"testing"
	"time"

	"github.com/conflux-sh/conflux/internal/model"
)

func testEvent(name string) model.ChangeEvent {
	return model.ChangeEvent{
		Kind:         model.ChangeEventUpsert,
		Namespace:    model.Namespace{Tenant: "t", App: "a", Env: "prod"},
		ConfigName:   name,
		NewVersionID: 1,
	}
}

func TestSubscribePublishDelivers(t *testing.T) {
	h := New()
	key := model.WatchKey(model.Namespace{Tenant: "t", App: "a", Env: "prod"}, "db.yaml")

	r := h.Subscribe(key)
	defer r.Close()

	h.Publish(key, testEvent("db.yaml"))

	stop := make(chan struct{})
	event, lagged, ok := r.Next(stop)
	if !ok {
		t.Fatalf("expected an event")
	}
	if lagged != 0 {
		t.Fatalf("expected no lag, got %d", lagged)
	}
	if event.ConfigName != "db.yaml" {
		t.Fatalf("got %+v", event)
	}
}

func TestPublishWithNoSubscribersIsDropped(t *testing.T) {
	h := New()
	h.Publish("nobody-is-listening", testEvent("x"))
	if h.KeyCount() != 0 {
		t.Fatalf("publish to unknown key should not create a channel")
	}
}

func TestTwoConcurrentSubscribersShareOneChannel(t *testing.T) {
	h := New()
	key := "shared-key"

	r1 := h.Subscribe(key)
	defer r1.Close()
	r2 := h.Subscribe(key)
	defer r2.Close()

	if h.KeyCount() != 1 {
		t.Fatalf("expected exactly one channel for the key, got %d", h.KeyCount())
	}

	h.Publish(key, testEvent("shared"))

	stop := make(chan struct{})
	for _, r := range []*Receiver{r1, r2} {
		_, _, ok := r.Next(stop)
		if !ok {
			t.Fatalf("expected both receivers to observe the publish")
		}
	}
}

func TestSlowReceiverReportsLag(t *testing.T) {
	h := New(WithCapacity(2))
	key := "lag-key"

	r := h.Subscribe(key)
	defer r.Close()

	// Publish past the ring's capacity without ever reading, forcing a wrap.
	h.Publish(key, testEvent("1"))
	h.Publish(key, testEvent("2"))
	h.Publish(key, testEvent("3"))

	stop := make(chan struct{})
	event, lagged, ok := r.Next(stop)
	if !ok {
		t.Fatalf("expected an event")
	}
	if lagged != 1 {
		t.Fatalf("expected exactly one skipped event after the ring wrapped, got %d", lagged)
	}
	if event.ConfigName != "2" {
		t.Fatalf("expected the receiver to be fast-forwarded to the oldest retained event, got %+v", event)
	}
}

func TestNextUnblocksOnStop(t *testing.T) {
	h := New()
	r := h.Subscribe("idle-key")
	defer r.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _, ok := r.Next(stop)
		if ok {
			t.Errorf("expected Next to return !ok once stop fires")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Next did not unblock within 1s of stop firing")
	}
}

func TestSweepRemovesIdleChannelsAfterGrace(t *testing.T) {
	h := New(WithCapacity(4), WithIdleGrace(time.Minute))
	r := h.Subscribe("idle-sweep-key")

	start := time.Now()
	if n := h.Sweep(start); n != 0 {
		t.Fatalf("channel with a live receiver must never be swept, removed %d", n)
	}

	r.Close()
	if n := h.Sweep(start); n != 0 {
		t.Fatalf("channel should still be within its grace period, removed %d", n)
	}

	if n := h.Sweep(start.Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected 1 channel reclaimed past its grace period, got %d", n)
	}
	if h.KeyCount() != 0 {
		t.Fatalf("expected the channel to be gone after reclamation")
	}
}

func TestSweepDoesNotRemoveChannelsWithNewSubscriber(t *testing.T) {
	h := New(WithIdleGrace(time.Minute))
	r := h.Subscribe("re-subscribed-key")
	r.Close()

	// A fresh subscriber arrives before the sweep runs.
	r2 := h.Subscribe("re-subscribed-key")
	defer r2.Close()

	if n := h.Sweep(time.Now().Add(time.Hour)); n != 0 {
		t.Fatalf("channel with a live receiver must survive sweep even if once idle, removed %d", n)
	}
}
