package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

func keyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z0-9]{8,32}@restmail\.net`)
}

// =============================================================================
// Property: Requests within burst succeed
// =============================================================================

func testRateLimiter_RequestsWithinBurst(t *rapid.T) {
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	rl := NewRateLimiter(Config{Interval: time.Hour, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	key := keyGenerator().Draw(t, "key")
	for i := 0; i < burst; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d of %d should have been allowed", i+1, burst)
		}
	}
	if rl.Allow(key) {
		t.Fatalf("request %d should have been blocked after burst", burst+1)
	}
}

func TestRateLimiter_RequestsWithinBurst(t *testing.T) {
	rapid.Check(t, testRateLimiter_RequestsWithinBurst)
}

func FuzzRateLimiter_RequestsWithinBurst(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_RequestsWithinBurst))
}

// =============================================================================
// Property: Different keys have independent limits
// =============================================================================

func testRateLimiter_KeyIndependence(t *rapid.T) {
	rl := NewRateLimiter(Config{Interval: time.Hour, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	a := keyGenerator().Draw(t, "a")
	b := keyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	if !rl.Allow(a) {
		t.Fatal("first request for a should pass")
	}
	if rl.Allow(a) {
		t.Fatal("second request for a should be paced")
	}
	if !rl.Allow(b) {
		t.Fatal("exhausting a must not affect b")
	}
}

func TestRateLimiter_KeyIndependence(t *testing.T) {
	rapid.Check(t, testRateLimiter_KeyIndependence)
}

func FuzzRateLimiter_KeyIndependence(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_KeyIndependence))
}

// =============================================================================
// Property: GetLimiter returns the same limiter for the same key
// =============================================================================

func testRateLimiter_GetLimiterConsistency(t *rapid.T) {
	rl := NewRateLimiter(DefaultConfig)
	defer rl.Stop()

	key := keyGenerator().Draw(t, "key")
	if rl.GetLimiter(key) != rl.GetLimiter(key) {
		t.Fatal("GetLimiter returned different limiters for one key")
	}
	if rl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", rl.Len())
	}
}

func TestRateLimiter_GetLimiterConsistency(t *testing.T) {
	rapid.Check(t, testRateLimiter_GetLimiterConsistency)
}

// =============================================================================
// Idle limiters get cleaned up, active ones stay
// =============================================================================

func TestRateLimiter_IdleLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(Config{Interval: time.Millisecond, Burst: 1, CleanupInterval: 20 * time.Millisecond})
	defer rl.Stop()

	rl.GetLimiter("idle@restmail.net")
	time.Sleep(30 * time.Millisecond)
	rl.GetLimiter("active@restmail.net")
	rl.Cleanup()

	if rl.Len() != 1 {
		t.Fatalf("Len() after cleanup = %d, want 1", rl.Len())
	}
}

// =============================================================================
// Wait paces requests at the configured interval
// =============================================================================

func TestRateLimiter_WaitPaces(t *testing.T) {
	interval := 40 * time.Millisecond
	rl := NewRateLimiter(Config{Interval: interval, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(context.Background(), "pace@restmail.net"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*interval-5*time.Millisecond {
		t.Fatalf("three waits took %v, want >= %v", elapsed, 2*interval)
	}
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(Config{Interval: time.Hour, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	rl.Allow("k")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx, "k"); err == nil {
		t.Fatal("Wait should fail once the context cannot cover the next token")
	}
}

// =============================================================================
// Concurrent access
// =============================================================================

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(Config{Interval: time.Hour, Burst: 10, CleanupInterval: time.Hour})
	defer rl.Stop()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 10 {
		t.Fatalf("allowed = %d, want exactly the burst of 10", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultConfig)
	rl.Stop()
	rl.Stop()
}

// =============================================================================
// Middleware
// =============================================================================

func TestMiddleware_ThrottlesPerKey(t *testing.T) {
	rl := NewRateLimiter(Config{Interval: time.Hour, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	h := Middleware(rl, func(r *http.Request) string { return r.URL.Query().Get("k") })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	do := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	if rec := do("/?k=a"); rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := do("/?k=a")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec := do("/?k=b"); rec.Code != http.StatusNoContent {
		t.Fatalf("other key status = %d", rec.Code)
	}
	for i := 0; i < 5; i++ {
		if rec := do("/"); rec.Code != http.StatusNoContent {
			t.Fatalf("unkeyed request status = %d", rec.Code)
		}
	}
}
