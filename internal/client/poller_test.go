package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/community-events/internal/testfixtures"
)

func TestPoller_Tick(t *testing.T) {
	ctx := context.Background()
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	var refreshes int
	poller := NewPoller(func(context.Context) error {
		refreshes++
		return nil
	}, WithPollerClock(clock.NowFunc()))

	tests := []struct {
		name    string
		prepare func()
		want    bool
	}{
		{name: "untouched and visible", prepare: func() {}, want: true},
		{name: "right after interaction", prepare: poller.Touch, want: false},
		{name: "inside the quiet period", prepare: func() { clock.Advance(DefaultQuietPeriod - time.Millisecond) }, want: false},
		{name: "after the quiet period", prepare: func() { clock.Advance(time.Millisecond) }, want: true},
		{name: "hidden", prepare: func() { poller.SetVisible(false) }, want: false},
		{name: "visible again", prepare: func() { poller.SetVisible(true) }, want: true},
	}

	expected := 0
	for _, tc := range tests {
		tc.prepare()
		ran, err := poller.Tick(ctx)
		if err != nil {
			t.Fatalf("%s: Tick failed: %v", tc.name, err)
		}
		if ran != tc.want {
			t.Fatalf("%s: expected ran=%v, got %v", tc.name, tc.want, ran)
		}
		if ran {
			expected++
		}
	}
	if refreshes != expected {
		t.Fatalf("expected %d refreshes, got %d", expected, refreshes)
	}
}

func TestPoller_PendingRefreshSkipsQuietPeriod(t *testing.T) {
	ctx := context.Background()
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	pending := false
	poller := NewPoller(func(context.Context) error { return nil },
		WithPollerClock(clock.NowFunc()),
		WithPendingRefresh(func() bool { return pending }))

	poller.Touch()
	if poller.Due() {
		t.Fatalf("expected the quiet period to hold")
	}
	pending = true
	if !poller.Due() {
		t.Fatalf("expected a pending refresh to be due right away")
	}
	poller.SetVisible(false)
	if ran, _ := poller.Tick(ctx); ran {
		t.Fatalf("hidden pollers never refresh")
	}
}

func TestPoller_StartStop(t *testing.T) {
	var refreshes atomic.Int32
	fired := make(chan struct{}, 1)
	poller := NewPoller(func(context.Context) error {
		refreshes.Add(1)
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}, WithInterval(5*time.Millisecond))

	poller.Start(context.Background())
	poller.Start(context.Background())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller never refreshed")
	}

	poller.Stop()
	stopped := refreshes.Load()
	time.Sleep(20 * time.Millisecond)
	if refreshes.Load() != stopped {
		t.Fatalf("poller kept refreshing after Stop")
	}
	poller.Stop()
}
