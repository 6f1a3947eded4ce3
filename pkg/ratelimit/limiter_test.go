package ratelimit

import (
	"testing"
	"time"
)

func testLimiter(t *testing.T, config Config) (*Limiter, *time.Time) {
	t.Helper()

	limiter := NewLimiter(config, nil)
	t.Cleanup(limiter.Close)

	now := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return now }
	return limiter, &now
}

func TestBurstEscalatesToBan(t *testing.T) {
	limiter, now := testLimiter(t, Config{
		Limit:        3,
		Window:       time.Second,
		BanThreshold: 2,
		BanDuration:  time.Minute,
	})

	// Ten calls within ten milliseconds: 3 allowed, 2 denied with a
	// window-based retry, the 6th triggers the ban, the rest see it.
	decisions := []Decision{}
	for i := 0; i < 10; i++ {
		decisions = append(decisions, limiter.Check("x"))
		*now = now.Add(time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		if !decisions[i].Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	for i := 3; i < 5; i++ {
		d := decisions[i]
		if d.Allowed {
			t.Fatalf("call %d should be denied", i)
		}
		if d.RetryAfter <= 0 || d.RetryAfter > time.Second {
			t.Fatalf("call %d should carry a window-based retryAfter, got %s", i, d.RetryAfter)
		}
	}
	if decisions[5].Allowed || decisions[5].RetryAfter != time.Minute {
		t.Fatalf("call 5 should trigger the ban, got %+v", decisions[5])
	}
	for i := 6; i < 10; i++ {
		d := decisions[i]
		if d.Allowed {
			t.Fatalf("call %d should be denied during ban", i)
		}
		// Monotonically non-increasing retryAfter until unban.
		if d.RetryAfter > decisions[i-1].RetryAfter {
			t.Fatalf("retryAfter must not grow during a ban: %s > %s", d.RetryAfter, decisions[i-1].RetryAfter)
		}
	}
}

func TestBanExpires(t *testing.T) {
	limiter, now := testLimiter(t, Config{
		Limit:        1,
		Window:       time.Second,
		BanThreshold: 1,
		BanDuration:  time.Minute,
	})

	limiter.Check("x")
	limiter.Check("x")
	if d := limiter.Check("x"); d.Allowed {
		t.Fatal("expected a ban")
	}

	*now = now.Add(2 * time.Minute)
	if d := limiter.Check("x"); !d.Allowed {
		t.Fatalf("ban should have expired, got %+v", d)
	}
}

func TestWindowSlides(t *testing.T) {
	limiter, now := testLimiter(t, Config{
		Limit:        2,
		Window:       time.Second,
		BanThreshold: 10,
		BanDuration:  time.Minute,
	})

	limiter.Check("x")
	limiter.Check("x")
	if d := limiter.Check("x"); d.Allowed {
		t.Fatal("third request within the window should be denied")
	}

	*now = now.Add(1100 * time.Millisecond)
	if d := limiter.Check("x"); !d.Allowed {
		t.Fatal("request after the window slid should be allowed")
	}
}

func TestRemainingCountsDown(t *testing.T) {
	limiter, _ := testLimiter(t, Config{
		Limit:        3,
		Window:       time.Second,
		BanThreshold: 1,
		BanDuration:  time.Minute,
	})

	for expected := 2; expected >= 0; expected-- {
		d := limiter.Check("x")
		if !d.Allowed || d.Remaining != expected {
			t.Fatalf("expected remaining=%d, got %+v", expected, d)
		}
	}
}

func TestResetClearsHistoryAndBan(t *testing.T) {
	limiter, _ := testLimiter(t, Config{
		Limit:        1,
		Window:       time.Second,
		BanThreshold: 1,
		BanDuration:  time.Minute,
	})

	limiter.Check("x")
	limiter.Check("x")
	limiter.Check("x")

	limiter.Reset("x")
	if d := limiter.Check("x"); !d.Allowed {
		t.Fatalf("reset should clear the ban, got %+v", d)
	}
}

func TestObservers(t *testing.T) {
	limiter, _ := testLimiter(t, Config{
		Limit:        1,
		Window:       time.Second,
		BanThreshold: 1,
		BanDuration:  time.Minute,
	})

	limiter.Check("a")
	limiter.Check("b")
	limiter.Check("b")
	limiter.Check("b")

	stats := limiter.GetStats()
	if stats.TrackedIdentifiers != 2 || stats.BannedIdentifiers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	banned := limiter.GetBanned()
	if len(banned) != 1 || banned[0] != "b" {
		t.Fatalf("unexpected banned list: %v", banned)
	}

	if limiter.Size() != 2 {
		t.Fatalf("unexpected size: %d", limiter.Size())
	}
}

func TestPurgeDropsIdleEntries(t *testing.T) {
	limiter, now := testLimiter(t, Config{
		Limit:        1,
		Window:       time.Second,
		BanThreshold: 1,
		BanDuration:  time.Minute,
	})

	limiter.Check("idle")
	*now = now.Add(time.Hour)
	limiter.purge()

	if limiter.Size() != 0 {
		t.Fatalf("idle entry should have been purged, size=%d", limiter.Size())
	}
}
