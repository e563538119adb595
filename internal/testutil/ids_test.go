package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/chatsync/internal/chat"
)

func TestFixedIDGenerator_ReturnsSameID(t *testing.T) {
	gen := NewFixedIDGenerator("client-123")

	assert.Equal(t, "client-123", gen.Generate())
	assert.Equal(t, "client-123", gen.Generate())
}

func TestFixedIDGenerator_EmptyIDDefault(t *testing.T) {
	gen := NewFixedIDGenerator("")

	assert.Equal(t, "test-id-default", gen.Generate())
}

func TestSequenceGenerator_Counts(t *testing.T) {
	gen := NewSequenceGenerator("alice")

	assert.Equal(t, "alice-1", gen.Generate())
	assert.Equal(t, "alice-2", gen.Generate())
	assert.Equal(t, "alice-3", gen.Generate())
}

func TestSequenceGenerator_Concurrent(t *testing.T) {
	gen := NewSequenceGenerator("x")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50, "ids must be unique")
}

func TestGenerators_ImplementIDGenerator(t *testing.T) {
	var _ chat.IDGenerator = NewFixedIDGenerator("x")
	var _ chat.IDGenerator = NewSequenceGenerator("x")
}
