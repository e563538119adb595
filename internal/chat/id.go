package chat

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces message and client ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7.
// Panics if the system randomness source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for testing.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("m1", "m2")
//	gen.Generate() // "m1"
//	gen.Generate() // "m2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id. Panics when exhausted, which
// catches tests that create more messages than they expect.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// UUIDv4Generator generates random UUIDv4 ids. Client ids use it; they
// carry no ordering.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv4Generator struct{}

// Generate returns a hyphenated UUIDv4.
// Panics if the system randomness source fails.
func (UUIDv4Generator) Generate() string {
	return uuid.NewString()
}
