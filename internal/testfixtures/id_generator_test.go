package testfixtures

import (
	"slices"
	"testing"
)

func TestIDGenerator(t *testing.T) {
	gen := NewIDGenerator("evt")
	next := gen.NextFunc()

	if first, second := next(), next(); first != "evt-1" || second != "evt-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if issued := gen.Issued(); !slices.Equal(issued, []string{"evt-1", "evt-2"}) {
		t.Fatalf("unexpected issued list %v", issued)
	}

	gen.Reset()
	if id := gen.Next(); id != "evt-1" {
		t.Fatalf("expected evt-1 after Reset, got %q", id)
	}

	if id := NewIDGenerator("").Next(); id != "id-1" {
		t.Fatalf("expected default prefix, got %q", id)
	}
	var missing *IDGenerator
	if id := missing.NextFunc()(); id != "" {
		t.Fatalf("nil generator must yield empty ids, got %q", id)
	}
}
