package security

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinBurst(t *testing.T) {
	rl := CreateRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 3})
	defer rl.Close()

	for i := 0; i < 3; i++ {
		if !rl.Allow("user-1") {
			t.Fatalf("Allow() request %d = false, want true", i+1)
		}
	}
	if rl.Allow("user-1") {
		t.Error("Allow() beyond burst = true, want false")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := CreateRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	defer rl.Close()

	if !rl.Allow("user-1") {
		t.Fatal("Allow(user-1) = false, want true")
	}
	if rl.Allow("user-1") {
		t.Error("Allow(user-1) second call = true, want false")
	}
	if !rl.Allow("user-2") {
		t.Error("Allow(user-2) = false, want true")
	}
}

func TestRateLimiter_EvictsIdleKeys(t *testing.T) {
	rl := CreateRateLimiter(RateLimitConfig{RequestsPerSecond: 10, Burst: 20})
	defer rl.Close()

	rl.Allow("user-1")

	// The bucket is one token short of full, so the key survives a sweep.
	rl.evictIdle(time.Now())
	rl.mu.Lock()
	_, exists := rl.limiters["user-1"]
	rl.mu.Unlock()
	if !exists {
		t.Fatal("recently active key was evicted")
	}

	// Two idle seconds at 10 rps refills the bucket past Burst.
	rl.evictIdle(time.Now().Add(2 * time.Second))
	rl.mu.Lock()
	_, exists = rl.limiters["user-1"]
	rl.mu.Unlock()
	if exists {
		t.Error("idle key was not evicted after its bucket refilled")
	}
}
