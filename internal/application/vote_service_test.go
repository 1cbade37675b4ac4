package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/community-events/internal/poll"
	"github.com/example/community-events/internal/testfixtures"
)

type voteObserverStub struct {
	mu     sync.Mutex
	ok     map[string]int
	failed map[string]int
}

func (o *voteObserverStub) ObserveVote(action string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ok == nil {
		o.ok = map[string]int{}
		o.failed = map[string]int{}
	}
	if err != nil {
		o.failed[action]++
		return
	}
	o.ok[action]++
}

func TestVoteService_ApplyVote(t *testing.T) {
	ctx := context.Background()

	t.Run("walks the funnel on the stored counters", func(t *testing.T) {
		repos := testfixtures.NewMemoryRepositories()
		event := testfixtures.NewEventFixture().Event()
		repos.SeedEvents(t, event)
		observer := &voteObserverStub{}
		svc := NewVoteService(repos.Events, observer)

		steps := []poll.Action{
			poll.Interested(),
			poll.ChooseSlot(poll.SlotEvening),
			poll.ChooseTime("", "18:30"),
		}
		var updated poll.Event
		for _, action := range steps {
			var err error
			updated, err = svc.ApplyVote(ctx, VoteParams{EventID: event.ID, Action: action})
			if err != nil {
				t.Fatalf("ApplyVote(%s) failed: %v", action.Kind, err)
			}
		}

		if updated.InterestedCount != 1 {
			t.Fatalf("expected 1 interested vote, got %d", updated.InterestedCount)
		}
		evening := updated.TimeSlots[poll.SlotEvening]
		if evening.Votes != 1 || evening.SpecificTimes["18:30"] != 1 {
			t.Fatalf("unexpected evening tally %+v", evening)
		}
		if err := updated.CheckCounters(); err != nil {
			t.Fatalf("counters inconsistent: %v", err)
		}
		if observer.ok[string(poll.ActionChooseTime)] != 1 {
			t.Fatalf("expected observer to see the time vote, got %+v", observer.ok)
		}
	})

	t.Run("rejects invalid slot and time combinations", func(t *testing.T) {
		repos := testfixtures.NewMemoryRepositories()
		event := testfixtures.NewEventFixture().Event()
		repos.SeedEvents(t, event)
		svc := NewVoteService(repos.Events, nil)

		_, err := svc.ApplyVote(ctx, VoteParams{EventID: event.ID, Action: poll.ChooseTime(poll.SlotMorning, "20:00")})
		if !errors.Is(err, poll.ErrTimeOutsideSlot) {
			t.Fatalf("expected ErrTimeOutsideSlot, got %v", err)
		}
		_, err = svc.ApplyVote(ctx, VoteParams{EventID: event.ID, Action: poll.ChooseSlot("brunch")})
		if !errors.Is(err, poll.ErrUnknownSlot) {
			t.Fatalf("expected ErrUnknownSlot, got %v", err)
		}

		stored, err := repos.Events.GetEvent(ctx, event.ID)
		if err != nil {
			t.Fatalf("GetEvent failed: %v", err)
		}
		if stored.TotalVotes() != 0 || stored.TimeSlots[poll.SlotMorning].Votes != 0 {
			t.Fatalf("rejected votes must not change counters, got %+v", stored)
		}
	})

	t.Run("refuses external and unknown events", func(t *testing.T) {
		repos := testfixtures.NewMemoryRepositories()
		svc := NewVoteService(repos.Events, nil)

		if _, err := svc.ApplyVote(ctx, VoteParams{EventID: "external-MyHelsinki-1", Action: poll.Interested()}); !errors.Is(err, ErrExternalEvent) {
			t.Fatalf("expected ErrExternalEvent, got %v", err)
		}
		if _, err := svc.ApplyVote(ctx, VoteParams{EventID: "evt-missing", Action: poll.Interested()}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		var vErr *ValidationError
		if _, err := svc.ApplyVote(ctx, VoteParams{Action: poll.Interested()}); !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("concurrent votes are all counted", func(t *testing.T) {
		repos := testfixtures.NewMemoryRepositories()
		event := testfixtures.NewEventFixture().Event()
		repos.SeedEvents(t, event)
		svc := NewVoteService(repos.Events, nil)

		const voters = 8
		var wg sync.WaitGroup
		errs := make(chan error, voters)
		for i := 0; i < voters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.ApplyVote(ctx, VoteParams{EventID: event.ID, Action: poll.Interested()})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		applied := 0
		for err := range errs {
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ErrStorageBusy):
			default:
				t.Fatalf("unexpected error %v", err)
			}
		}

		stored, err := repos.Events.GetEvent(ctx, event.ID)
		if err != nil {
			t.Fatalf("GetEvent failed: %v", err)
		}
		if stored.InterestedCount != applied {
			t.Fatalf("expected %d stored votes, got %d", applied, stored.InterestedCount)
		}
	})
}

func TestVoteService_ConcurrentVotesOnSQLite(t *testing.T) {
	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	event := testfixtures.NewEventFixture().Event()
	harness.SeedEvents(t, event)
	svc := NewVoteService(harness.Events, nil)

	const voters = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyVote(ctx, VoteParams{EventID: event.ID, Action: poll.Interested()})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded++
		}()
	}
	wg.Wait()

	for _, err := range failures {
		if !errors.Is(err, ErrStorageBusy) {
			t.Fatalf("only retry exhaustion may fail a vote, got %v", err)
		}
	}
	if succeeded == 0 {
		t.Fatalf("expected at least one vote to land")
	}
	stored, err := harness.Events.GetEvent(ctx, event.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if stored.InterestedCount != succeeded {
		t.Fatalf("expected %d stored votes, got %d", succeeded, stored.InterestedCount)
	}
}
