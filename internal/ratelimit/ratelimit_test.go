package ratelimit

import "testing"

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(1000, 2)
	if !tb.Allow(2) {
		t.Fatal("expected burst of 2 to be allowed immediately")
	}
	if tb.Allow(1) {
		t.Fatal("expected bucket to be exhausted")
	}
}

func TestAcceptLimiterPerIP(t *testing.T) {
	l := NewAcceptLimiter(1000, 1)
	if !l.Allow("10.0.0.1") {
		t.Fatal("expected first connection from an IP to be allowed")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("expected a different IP to have its own budget")
	}
}
