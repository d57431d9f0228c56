package raftnode

import (
	"testing"
	"time"
)

func TestTokenBucketRefill(t *testing.T) {
	now := time.Unix(0, 0)
	b := newTokenBucket(2)
	b.now = func() time.Time { return now }
	b.lastFill = now

	if !b.allow() || !b.allow() {
		t.Fatalf("expected the initial burst of 2 to be allowed")
	}
	if b.allow() {
		t.Fatalf("expected the bucket to be empty")
	}

	now = now.Add(500 * time.Millisecond) // refills one token at 2/s
	if !b.allow() {
		t.Fatalf("expected a token after refill")
	}
	if b.allow() {
		t.Fatalf("expected only one token to have refilled")
	}

	now = now.Add(time.Hour)
	if !b.allow() || !b.allow() {
		t.Fatalf("expected refill to cap at burst, not accumulate for an hour")
	}
	if b.allow() {
		t.Fatalf("expected burst cap of 2")
	}
}

func TestInflightLimiter(t *testing.T) {
	l := newInflightLimiter(2)

	if !l.tryAcquire() || !l.tryAcquire() {
		t.Fatalf("expected 2 slots")
	}
	if l.tryAcquire() {
		t.Fatalf("expected the cap to hold")
	}
	l.release()
	if !l.tryAcquire() {
		t.Fatalf("expected a slot after release")
	}
}
