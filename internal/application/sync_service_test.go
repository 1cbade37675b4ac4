package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/community-events/internal/external"
	"github.com/example/community-events/internal/poll"
	"github.com/example/community-events/internal/testfixtures"
)

type sourceStub struct {
	listings []external.Descriptor
	err      error
	filter   external.Filter
}

func (s *sourceStub) Name() string { return "MyHelsinki" }

func (s *sourceStub) ListEvents(ctx context.Context, filter external.Filter) ([]external.Descriptor, error) {
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	return filter.Apply(s.listings), nil
}

type syncObserverStub struct {
	runs  int
	added int
	err   error
}

func (o *syncObserverStub) ObserveSync(trigger string, added int, err error) {
	o.runs++
	o.added += added
	o.err = err
}

func listing(id, title string, starts *time.Time) external.Descriptor {
	return external.Descriptor{
		ID:       id,
		Name:     map[string]string{"en": title},
		Locality: "Turku",
		StartsAt: starts,
	}
}

func TestSyncService_Run(t *testing.T) {
	now := testfixtures.ReferenceTime()
	clock := testfixtures.NewClock(now)
	inWindow := now.Add(5 * 24 * time.Hour)
	tooLate := now.Add(45 * 24 * time.Hour)

	source := &sourceStub{listings: []external.Descriptor{
		listing("1", "Jazz by the river", &inWindow),
		listing("2", "Autumn market", nil),
		listing("3", "Next season opera", &tooLate),
	}}
	repos := testfixtures.NewMemoryRepositories()
	observer := &syncObserverStub{}
	svc := NewSyncService(SyncConfig{
		Events:      repos.Events,
		Source:      source,
		Observer:    observer,
		IDGenerator: testfixtures.NewIDGenerator("x").NextFunc(),
		Now:         clock.NowFunc(),
	})

	result, err := svc.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Fetched != 2 || result.Added != 2 {
		t.Fatalf("expected 2 fetched and added, got %+v", result)
	}
	if source.filter.Max != SyncMaxEvents || source.filter.Until == nil || !source.filter.Until.Equal(now.Add(SyncWindow)) {
		t.Fatalf("unexpected filter %+v", source.filter)
	}

	jazz := result.Events[0]
	if jazz.ID != "turku-monthly-1-x-1" || jazz.IsExternal || jazz.Source != SyncSource || jazz.SuggestedBy != SyncSuggestedBy {
		t.Fatalf("unexpected synced event %+v", jazz)
	}
	if jazz.SuggestedTimeSlot != poll.SlotEvening || jazz.SuggestedTime != SyncDefaultTime {
		t.Fatalf("dated events get an evening 18:00 suggestion, got %q %q", jazz.SuggestedTimeSlot, jazz.SuggestedTime)
	}
	market := result.Events[1]
	if market.SuggestedTime != "" || market.SuggestedTimeSlot != poll.SlotEvening {
		t.Fatalf("undated events keep only the slot, got %q %q", market.SuggestedTimeSlot, market.SuggestedTime)
	}

	clock.Advance(time.Hour)
	source.listings[0].Name = map[string]string{"en": "JAZZ BY THE RIVER"}
	again, err := svc.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if again.Added != 0 {
		t.Fatalf("expected (title, source) dedupe, got %+v", again)
	}

	stored, err := repos.Events.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(stored))
	}

	status := svc.Status()
	if status.Schedule != DefaultSchedule || status.LastRun == nil || !status.LastRun.Equal(clock.Current()) {
		t.Fatalf("unexpected status %+v", status)
	}
	if observer.runs != 2 || observer.added != 2 {
		t.Fatalf("unexpected observer counts %+v", observer)
	}
}

func TestSyncService_RunListingsWithoutUpstreamID(t *testing.T) {
	now := testfixtures.ReferenceTime()
	source := &sourceStub{listings: []external.Descriptor{
		listing("", "Harbour market", nil),
		listing("", "Cathedral concert", nil),
	}}
	svc := NewSyncService(SyncConfig{
		Events:      testfixtures.NewMemoryRepositories().Events,
		Source:      source,
		IDGenerator: func() string { return "same" },
		Now:         testfixtures.NewClock(now).NowFunc(),
	})

	result, err := svc.Run(context.Background(), "test")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Added != 2 || result.Events[0].ID == result.Events[1].ID {
		t.Fatalf("expected two events with distinct ids, got %+v", result.Events)
	}
	want := "turku-monthly-" + external.ListingID("MyHelsinki", source.listings[0]) + "-same"
	if result.Events[0].ID != want {
		t.Fatalf("expected %q, got %q", want, result.Events[0].ID)
	}
}

func TestSyncService_RunRecordsFailures(t *testing.T) {
	source := &sourceStub{err: errors.New("upstream 502")}
	svc := NewSyncService(SyncConfig{Events: testfixtures.NewMemoryRepositories().Events, Source: source})

	if _, err := svc.Run(context.Background(), "cron"); err == nil {
		t.Fatalf("expected upstream failure")
	}
	if svc.Status().LastError == "" {
		t.Fatalf("expected last error to be recorded")
	}
}

func TestSyncService_VerifySecret(t *testing.T) {
	hash, err := HashSecret("s3cret", testArgon2idParams)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	svc := NewSyncService(SyncConfig{SecretHash: hash})

	if err := svc.VerifySecret("s3cret"); err != nil {
		t.Fatalf("expected secret to verify, got %v", err)
	}
	for _, token := range []string{"", "wrong"} {
		if err := svc.VerifySecret(token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %q, got %v", token, err)
		}
	}
	if err := NewSyncService(SyncConfig{}).VerifySecret("s3cret"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unconfigured secret must reject, got %v", err)
	}
}
