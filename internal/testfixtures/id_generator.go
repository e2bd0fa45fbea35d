package testfixtures

import (
	"fmt"
	"sync"
)

// RunIDs produces deterministic run identifiers for tests.
type RunIDs struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

// NewRunIDs yields identifiers with the given prefix. When prefix is empty,
// "run" is used.
func NewRunIDs(prefix string) *RunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &RunIDs{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *RunIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}
