package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTokenBucketStartsFull(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 3, 1)

	for i := 0; i < 3; i++ {
		if !b.Allow(1) {
			t.Fatalf("Allow(1) #%d = false, want true from a full bucket", i+1)
		}
	}
	if b.Allow(1) {
		t.Fatal("Allow(1) = true with an empty bucket")
	}
}

func TestTokenBucketRefillsAtRate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 2, 2)

	if !b.Allow(2) {
		t.Fatal("Allow(2) = false from a full bucket")
	}
	if b.Allow(1) {
		t.Fatal("Allow(1) = true immediately after draining")
	}

	// 2 tokens/sec: half a second buys exactly one token.
	clock.advance(500 * time.Millisecond)
	if !b.Allow(1) {
		t.Fatal("Allow(1) = false after refill window")
	}
	if b.Allow(1) {
		t.Fatal("Allow(1) = true beyond the refilled amount")
	}
}

func TestTokenBucketCapsAtCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 2, 10)

	// A long idle gap must not bank more than the capacity.
	clock.advance(time.Hour)
	if !b.Allow(2) {
		t.Fatal("Allow(2) = false after long idle")
	}
	if b.Allow(1) {
		t.Fatal("Allow(1) = true beyond capacity")
	}
}

func TestTokenBucketBackwardsClock(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 1, 1)

	if !b.Allow(1) {
		t.Fatal("Allow(1) = false from a full bucket")
	}

	// Time going backwards must not grant tokens.
	clock.now = time.Unix(500, 0)
	if b.Allow(1) {
		t.Fatal("Allow(1) = true after clock went backwards")
	}

	clock.advance(time.Second)
	if !b.Allow(1) {
		t.Fatal("Allow(1) = false after forward progress resumed")
	}
}

func TestTokenBucketZeroCostAlwaysAllowed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, 0, 0)

	if !b.Allow(0) {
		t.Fatal("Allow(0) = false")
	}
	if b.Allow(1) {
		t.Fatal("Allow(1) = true on a zero-capacity bucket")
	}
}

func TestTokenBucketOverflowClamp(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clock, maxInt64, maxInt64)

	if !b.Allow(1) {
		t.Fatal("Allow(1) = false on a huge bucket")
	}
	clock.advance(time.Hour)
	if !b.Allow(1) {
		t.Fatal("Allow(1) = false after refill on a huge bucket")
	}
}
