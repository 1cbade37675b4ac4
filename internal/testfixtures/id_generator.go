package testfixtures

import (
	"fmt"
	"sync"
)

// IDGenerator hands out "<prefix>-<n>" identifiers, starting at 1, and
// remembers what it issued.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	issued []string
}

// NewIDGenerator returns a generator for prefix, "id" when empty.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next issues the next identifier.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%d", g.prefix, len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// NextFunc returns Next for injection. A nil generator yields empty ids.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued returns the identifiers handed out so far, in order.
func (g *IDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}

// Reset forgets issued identifiers so the sequence restarts at 1.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.issued = nil
	g.mu.Unlock()
}
