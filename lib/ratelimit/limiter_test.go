package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedLimiterBurst(t *testing.T) {
	kl := NewKeyed(1, 5, time.Minute)
	defer kl.Close()

	for i := 0; i < 5; i++ {
		if !kl.Allow("alice") {
			t.Errorf("request %d should be allowed", i)
		}
	}
	if kl.Allow("alice") {
		t.Error("6th request should be denied")
	}
}

func TestKeyedLimiterIndependentKeys(t *testing.T) {
	kl := NewKeyed(1, 1, time.Minute)
	defer kl.Close()

	if !kl.Allow("alice") {
		t.Fatal("alice first request should pass")
	}
	if kl.Allow("alice") {
		t.Error("alice second request should be denied")
	}
	if !kl.Allow("bob") {
		t.Error("bob has his own bucket")
	}
	if kl.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", kl.Len())
	}
}

func TestKeyedLimiterRefill(t *testing.T) {
	kl := NewKeyed(100, 2, time.Minute)
	defer kl.Close()

	kl.Allow("k")
	kl.Allow("k")
	if kl.Allow("k") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(50 * time.Millisecond)
	if !kl.Allow("k") {
		t.Error("bucket should have refilled")
	}
}

func TestKeyedLimiterSweep(t *testing.T) {
	kl := NewKeyed(1000, 1, time.Second)
	defer kl.Close()

	base := time.Now()
	kl.now = func() time.Time { return base }
	kl.Allow("idle")

	kl.now = func() time.Time { return base.Add(2 * time.Second) }
	kl.Sweep()
	if kl.Len() != 0 {
		t.Errorf("idle full bucket should be swept, %d left", kl.Len())
	}
}

func TestKeyedLimiterDefaults(t *testing.T) {
	kl := NewKeyed(1, 0, 0)
	defer kl.Close()

	if kl.burst != 1 {
		t.Errorf("burst should be at least 1, got %d", kl.burst)
	}
	if kl.cleanup != DefaultCleanupInterval {
		t.Errorf("unexpected cleanup interval %v", kl.cleanup)
	}
}

func TestKeyedLimiterCloseIdempotent(t *testing.T) {
	kl := NewKeyed(1, 1, time.Minute)
	kl.Close()
	kl.Close()
}

func TestKeyedLimiterConcurrent(t *testing.T) {
	kl := NewKeyed(0, 100, time.Minute)
	defer kl.Close()

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if kl.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if allowed != 100 {
		t.Errorf("expected exactly burst (100) allowed with zero refill, got %d", allowed)
	}
}
