package application

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/community-events/internal/testfixtures"
)

func TestRateLimiterCooldown(t *testing.T) {
	clock := testfixtures.NewClock(time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(10, 5*time.Minute, clock.NowFunc())

	if _, err := limiter.Reserve("Maija"); err != nil {
		t.Fatalf("expected first creation to be allowed, got %v", err)
	}

	clock.Advance(4 * time.Minute)
	_, err := limiter.Reserve("maija ")
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected cooldown refusal, got %v", err)
	}
	if rlErr.Reason != "please wait 1 minute before creating another event" {
		t.Fatalf("unexpected reason %q", rlErr.Reason)
	}
	if rlErr.Remaining != 9 {
		t.Fatalf("expected 9 remaining, got %d", rlErr.Remaining)
	}

	if _, err := limiter.Reserve("Pekka"); err != nil {
		t.Fatalf("other suggesters must not be limited, got %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := limiter.Reserve("Maija"); err != nil {
		t.Fatalf("expected creation after cooldown, got %v", err)
	}
}

func TestRateLimiterMonthlyQuota(t *testing.T) {
	clock := testfixtures.NewClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(3, 0, clock.NowFunc())

	for i := 0; i < 3; i++ {
		if _, err := limiter.Reserve("Maija"); err != nil {
			t.Fatalf("creation %d refused: %v", i+1, err)
		}
		clock.Advance(time.Hour)
	}
	if got := limiter.Stats("Maija").Remaining; got != 0 {
		t.Fatalf("expected no remaining quota, got %d", got)
	}
	if _, err := limiter.Reserve("Maija"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected monthly limit, got %v", err)
	}

	clock.NextMonth()
	stats := limiter.Stats("Maija")
	if stats.Remaining != 3 || stats.MonthCount != 0 || stats.Total != 3 {
		t.Fatalf("expected a fresh month with the lifetime total kept, got %+v", stats)
	}
	if _, err := limiter.Reserve("Maija"); err != nil {
		t.Fatalf("expected quota reset in a new month, got %v", err)
	}
}

func TestRateLimiterReleaseRestoresQuota(t *testing.T) {
	clock := testfixtures.NewClock(time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(2, 5*time.Minute, clock.NowFunc())

	if _, err := limiter.Reserve("Maija"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	first := clock.Current()

	clock.Advance(10 * time.Minute)
	release, err := limiter.Reserve("Maija")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	release()
	release()

	stats := limiter.Stats("Maija")
	if stats.MonthCount != 1 || stats.Total != 1 {
		t.Fatalf("expected one counted creation after release, got %+v", stats)
	}
	if stats.LastCreatedAt == nil || !stats.LastCreatedAt.Equal(first) {
		t.Fatalf("expected the earlier creation to be the last one, got %v", stats.LastCreatedAt)
	}
	if _, err := limiter.Reserve("Maija"); err != nil {
		t.Fatalf("a released reservation must not trigger the cooldown, got %v", err)
	}
}

func TestRateLimiterStats(t *testing.T) {
	clock := testfixtures.NewClock(time.Date(2025, 12, 20, 9, 30, 0, 0, time.UTC))
	limiter := NewRateLimiter(10, 0, clock.NowFunc())

	empty := limiter.Stats(" Aino ")
	if empty.Suggester != "Aino" || empty.MonthCount != 0 || empty.LastCreatedAt != nil || empty.MonthlyLimit != 10 {
		t.Fatalf("unexpected stats for an unseen suggester %+v", empty)
	}
	if want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC); !empty.ResetsAt.Equal(want) {
		t.Fatalf("expected reset on %s, got %s", want, empty.ResetsAt)
	}

	if _, err := limiter.Reserve("Aino"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	stats := limiter.Stats("aino")
	if stats.MonthCount != 1 || stats.Total != 1 || stats.Remaining != 9 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.LastCreatedAt == nil || !stats.LastCreatedAt.Equal(clock.Current()) {
		t.Fatalf("unexpected last creation %v", stats.LastCreatedAt)
	}
}

func TestRateLimiterConcurrentReservations(t *testing.T) {
	limiter := NewRateLimiter(1, 0, nil)

	const workers = 16
	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := limiter.Reserve("Maija"); err == nil {
				granted.Add(1)
			} else if !errors.Is(err, ErrRateLimited) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := granted.Load(); got != 1 {
		t.Fatalf("expected exactly one reservation, got %d", got)
	}
}

func TestRateLimiterNilAllowsEverything(t *testing.T) {
	var limiter *RateLimiter
	release, err := limiter.Reserve("anyone")
	if err != nil {
		t.Fatalf("nil limiter must allow, got %v", err)
	}
	release()
	if stats := limiter.Stats("anyone"); stats.MonthCount != 0 {
		t.Fatalf("nil limiter has no stats, got %+v", stats)
	}
}
