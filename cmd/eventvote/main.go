// Command eventvote is a terminal client for the event poll API. Votes are
// gated by a ledger file on this machine.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/example/community-events/internal/client"
	"github.com/example/community-events/internal/ledger"
	"github.com/example/community-events/internal/poll"
)

const usage = `usage: eventvote [flags] <command> [args]

commands:
  list                      show the board and external listings
  show <event-id>           show one event with its voting options
  interested <event-id>     vote interested
  not-interested <event-id> vote not interested
  slot <event-id> <slot>    choose morning, afternoon, evening or night
  time <event-id> <HH:MM>   choose a specific time
  voted                     list the votes recorded on this machine
  forget <event-id>         drop the local record of a vote
  stats <name>              show a suggester's event creation quota
  watch                     refresh the board until interrupted; while
                            watching, any input line pauses polling for a
                            moment, "hide" stops it and "show" resumes it
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "eventvote:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	server   string
	ledger   string
	interval time.Duration
	verbose  bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("eventvote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage, "\nflags:\n")
		fs.PrintDefaults()
	}

	var opts options
	fs.StringVar(&opts.server, "server", envOr("EVENTPOLL_SERVER", "http://localhost:8080"), "event poll API base URL")
	fs.StringVar(&opts.ledger, "ledger", envOr("EVENTPOLL_LEDGER", defaultLedgerPath()), "path of the local vote ledger")
	fs.DurationVar(&opts.interval, "interval", client.DefaultPollInterval, "refresh interval for watch")
	fs.BoolVar(&opts.verbose, "v", false, "log requests and votes to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	api, err := client.NewHTTPClient(opts.server, nil)
	if err != nil {
		return err
	}
	l, err := ledger.Open(ctx, ledger.NewFileStore(opts.ledger), ledger.WithRetention(ledger.DefaultRetention))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	session := client.NewSession(api, l, client.WithSessionLogger(logger))

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "voted":
		return printVoted(stdout, session.Voted())
	case "forget":
		id, err := argAt(rest, 0, "event-id")
		if err != nil {
			return err
		}
		if err := session.Forget(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "forgot vote on %s\n", id)
		return nil
	case "stats":
		name, err := argAt(rest, 0, "name")
		if err != nil {
			return err
		}
		stats, err := api.CreationStats(ctx, name)
		if err != nil {
			return err
		}
		return printStats(stdout, stats)
	}

	snapshot, err := session.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	switch cmd {
	case "list":
		return printSnapshot(stdout, snapshot, time.Now())
	case "show":
		id, err := argAt(rest, 0, "event-id")
		if err != nil {
			return err
		}
		view, err := session.View(id)
		if err != nil {
			return err
		}
		return printView(stdout, view)
	case "interested", "not-interested", "slot", "time":
		id, err := argAt(rest, 0, "event-id")
		if err != nil {
			return err
		}
		action, err := parseAction(cmd, rest[1:])
		if err != nil {
			return err
		}
		if _, err := session.Vote(ctx, id, action); err != nil {
			return err
		}
		view, err := session.View(id)
		if err != nil {
			return err
		}
		return printView(stdout, view)
	case "watch":
		return watch(ctx, session, opts.interval, stdin, stdout, logger)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseAction(cmd string, args []string) (poll.Action, error) {
	switch cmd {
	case "interested":
		return poll.Interested(), nil
	case "not-interested":
		return poll.NotInterested(), nil
	case "slot":
		value, err := argAt(args, 0, "slot")
		if err != nil {
			return poll.Action{}, err
		}
		slot, err := poll.ParseSlot(value)
		if err != nil {
			return poll.Action{}, err
		}
		return poll.ChooseSlot(slot), nil
	default:
		value, err := argAt(args, 0, "HH:MM")
		if err != nil {
			return poll.Action{}, err
		}
		return poll.ChooseTime("", value), nil
	}
}

func watch(ctx context.Context, session *client.Session, interval time.Duration, in io.Reader, out io.Writer, logger *slog.Logger) error {
	var mu sync.Mutex
	poller := client.NewPoller(func(ctx context.Context) error {
		snapshot, err := session.Refresh(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		return printSnapshot(out, snapshot, time.Now())
	}, client.WithInterval(interval), client.WithPollerLogger(logger), client.WithPendingRefresh(session.NeedsRefresh))

	if err := printSnapshot(out, session.Current(), time.Now()); err != nil {
		return err
	}
	poller.Start(ctx)
	defer poller.Stop()

	lines := make(chan string)
	if in != nil {
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				select {
				case lines <- strings.TrimSpace(scanner.Text()):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			switch line {
			case "hide":
				poller.SetVisible(false)
				mu.Lock()
				fmt.Fprintln(out, "polling paused")
				mu.Unlock()
			case "show":
				poller.SetVisible(true)
				mu.Lock()
				fmt.Fprintln(out, "polling resumed")
				mu.Unlock()
			default:
				poller.Touch()
			}
		}
	}
}

func printStats(out io.Writer, stats client.CreationStats) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\n", stats.Suggester)
	fmt.Fprintf(w, "this month\t%d of %d\n", stats.MonthCount, stats.MonthlyLimit)
	fmt.Fprintf(w, "remaining\t%d\n", stats.Remaining)
	fmt.Fprintf(w, "total\t%d\n", stats.Total)
	last := "never"
	if stats.LastCreatedAt != nil {
		last = stats.LastCreatedAt.Format("2 Jan 2006 15:04")
	}
	fmt.Fprintf(w, "last created\t%s\n", last)
	fmt.Fprintf(w, "resets on\t%s\n", stats.ResetsAt.Format("2 Jan 2006"))
	return w.Flush()
}

func printSnapshot(out io.Writer, snapshot client.Snapshot, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	sections := []struct {
		title  string
		events []poll.Event
	}{
		{"Happening soon", snapshot.Board.HappeningSoon},
		{"Upcoming", snapshot.Board.Upcoming},
		{"No date yet", snapshot.Board.NoDate},
		{"Past", snapshot.Board.Past},
		{"Around Turku", snapshot.External},
	}
	for _, section := range sections {
		if len(section.events) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", section.title)
		for _, event := range section.events {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%d%% of %d\n", event.ID, event.Title, formatDate(event.EventDate, now), event.InterestPercentage(), event.TotalVotes())
		}
	}
	return w.Flush()
}

func printView(out io.Writer, view client.EventView) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	event := view.Event
	fmt.Fprintf(w, "%s\n", event.Title)
	if event.Description != "" {
		fmt.Fprintf(w, "%s\n", event.Description)
	}
	if event.IsExternal {
		fmt.Fprintf(w, "source\t%s\n", event.Source)
		if event.ExternalURL != "" {
			fmt.Fprintf(w, "link\t%s\n", event.ExternalURL)
		}
	} else if event.SuggestedBy != "" {
		fmt.Fprintf(w, "suggested by\t%s\n", event.SuggestedBy)
	}
	fmt.Fprintf(w, "interested\t%d (%d%%)\n", event.InterestedCount, view.InterestPercentage)
	fmt.Fprintf(w, "not interested\t%d\n", event.NotInterestedCount)
	fmt.Fprintf(w, "your vote\t%s\n", view.Stage)
	for _, option := range view.Slots {
		line := fmt.Sprintf("  %s\t%s\t%d votes", option.Slot, option.Range, option.Votes)
		if top := view.Leaderboard[option.Slot]; len(top) > 0 {
			parts := make([]string, 0, len(top))
			for _, tally := range top {
				parts = append(parts, fmt.Sprintf("%s (%d)", tally.Time, tally.Votes))
			}
			line += "\ttop: " + strings.Join(parts, ", ")
		}
		fmt.Fprintln(w, line)
	}
	if len(view.Times) > 0 {
		parts := make([]string, 0, len(view.Times))
		for _, tally := range view.Times {
			parts = append(parts, fmt.Sprintf("%s:%d", tally.Time, tally.Votes))
		}
		fmt.Fprintf(w, "times\t%s\n", strings.Join(parts, " "))
	}
	return w.Flush()
}

func printVoted(out io.Writer, records []poll.VoteRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "no votes recorded")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, record := range records {
		stage := poll.StateOf(&record).Stage
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", record.EventID, stage, record.TimeSlot, record.SpecificTime)
	}
	return w.Flush()
}

func formatDate(date *time.Time, now time.Time) string {
	if date == nil {
		return "-"
	}
	local := date.In(now.Location())
	if local.Year() == now.Year() {
		return local.Format("Mon 2 Jan")
	}
	return local.Format("2 Jan 2006")
}

func argAt(args []string, i int, name string) (string, error) {
	if len(args) <= i || strings.TrimSpace(args[i]) == "" {
		return "", fmt.Errorf("missing <%s>", name)
	}
	return strings.TrimSpace(args[i]), nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func defaultLedgerPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "eventvote-ledger.json"
	}
	return filepath.Join(dir, "eventvote", "ledger.json")
}
