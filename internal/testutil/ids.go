package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator generates the same id every time.
//
// Unlike chat.FixedGenerator which returns ids in sequence, this generator
// always returns the same id. Identity tests use it to check that a stored
// client id is reused rather than regenerated.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a new fixed id generator.
//
// If id is empty, Generate() returns "test-id-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-id-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
//
// Implements chat.IDGenerator interface.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

// SequenceGenerator returns prefix-1, prefix-2, ... and never runs out.
// Scenario runs use it so ids in golden files are stable.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator for prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
