package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	scoped := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		name     string
		ctx      context.Context
		fallback *slog.Logger
		want     *slog.Logger
	}{
		{name: "context wins", ctx: ContextWithLogger(context.Background(), scoped), fallback: fallback, want: scoped},
		{name: "fallback", ctx: context.Background(), fallback: fallback, want: fallback},
		{name: "default", ctx: context.Background(), want: slog.Default()},
		{name: "nil logger keeps context", ctx: ContextWithLogger(context.Background(), nil), fallback: fallback, want: fallback},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Resolve(tc.ctx, tc.fallback); got != tc.want {
				t.Fatalf("Resolve picked the wrong logger")
			}
		})
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := ContextWithLogger(context.Background(), base.With("request_id", 7))

	Component(ctx, nil, "service", "VoteService", "ApplyVote", "event_id", "evt-1").Info("vote applied")

	line := buf.String()
	for _, want := range []string{"request_id=7", "service=VoteService", "operation=ApplyVote", "event_id=evt-1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}

	buf.Reset()
	Component(context.Background(), base, "handler", "SyncHandler", "").Info("status")
	if strings.Contains(buf.String(), "operation=") {
		t.Fatalf("empty operation must be omitted, got %q", buf.String())
	}
}
