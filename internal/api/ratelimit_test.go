package api

import (
	"testing"
	"time"
)

func TestRateLimiterExhaustsBurst(t *testing.T) {
	rl := newRateLimiter(0.001, 3)
	for i := 0; i < 3; i++ {
		if !rl.Allow("phone:16135550199") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if rl.Allow("phone:16135550199") {
		t.Error("request beyond burst allowed")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := newRateLimiter(0.001, 1)
	if !rl.Allow("phone:16135550199") {
		t.Fatal("first key denied")
	}
	if rl.Allow("phone:16135550199") {
		t.Error("first key allowed beyond burst")
	}
	if !rl.Allow("phone:16135550200") {
		t.Error("second key throttled by first key's bucket")
	}
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	rl := newRateLimiter(1, 1)
	rl.Allow("phone:16135550199")
	rl.visitors["phone:16135550199"].lastSeen = time.Now().Add(-2 * visitorTTL)

	rl.mu.Lock()
	rl.evictIdle()
	rl.mu.Unlock()

	if _, ok := rl.visitors["phone:16135550199"]; ok {
		t.Error("idle bucket not evicted")
	}
}
