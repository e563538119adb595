package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualScheduler_StartsAtZero(t *testing.T) {
	s := NewManualScheduler()
	assert.Equal(t, time.Duration(0), s.Now())
	assert.Equal(t, 0, s.Pending())
}

func TestManualScheduler_RunsDueCallbacksInOrder(t *testing.T) {
	s := NewManualScheduler()
	var order []string

	s.Schedule(300*time.Millisecond, func() { order = append(order, "c") })
	s.Schedule(100*time.Millisecond, func() { order = append(order, "a") })
	s.Schedule(100*time.Millisecond, func() { order = append(order, "b") })

	s.Advance(99 * time.Millisecond)
	assert.Empty(t, order)

	s.Advance(time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, s.Pending())

	s.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 1300*time.Millisecond, s.Now())
}

func TestManualScheduler_Cancel(t *testing.T) {
	s := NewManualScheduler()
	fired := false

	cancel := s.Schedule(time.Second, func() { fired = true })
	require.True(t, cancel())
	assert.False(t, cancel())

	s.Advance(time.Hour)
	assert.False(t, fired)
	assert.Equal(t, 0, s.Pending())
}

func TestManualScheduler_CancelAfterFireReportsFalse(t *testing.T) {
	s := NewManualScheduler()

	cancel := s.Schedule(time.Second, func() {})
	s.Advance(time.Second)

	assert.False(t, cancel())
}

func TestManualScheduler_CallbackMaySchedule(t *testing.T) {
	s := NewManualScheduler()
	var hits []time.Duration

	s.Schedule(time.Second, func() {
		hits = append(hits, s.Now())
		s.Schedule(time.Second, func() { hits = append(hits, s.Now()) })
	})

	s.Advance(5 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, hits)
}

func TestManualScheduler_Reset(t *testing.T) {
	s := NewManualScheduler()
	s.Schedule(time.Second, func() { t.Fatal("reset timer must not fire") })
	s.Advance(500 * time.Millisecond)

	s.Reset()
	s.Advance(time.Hour)

	assert.Equal(t, time.Hour, s.Now())
}
