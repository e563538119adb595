package bootstrap

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/codec"
	"github.com/roach88/chatsync/internal/testutil"
)

const timeout = 4 * time.Second

// newMachine wires the timer straight into OnTimeout, the way a session
// would after routing the callback through its event loop.
func newMachine(t *testing.T) (*Machine, *testutil.ManualScheduler, *[]Outcome) {
	t.Helper()
	sched := testutil.NewManualScheduler()
	var outcomes []Outcome
	var m *Machine
	m = New(sched, timeout, func() {
		if out, ok := m.OnTimeout(); ok {
			outcomes = append(outcomes, out)
		}
	})
	return m, sched, &outcomes
}

func TestMachine_StartsAwaiting(t *testing.T) {
	m, sched, _ := newMachine(t)

	assert.Equal(t, AwaitingSnapshot, m.Phase())
	assert.Equal(t, 0, sched.Pending(), "timer is armed by Start, not New")

	m.Start()
	m.Start()
	assert.Equal(t, 1, sched.Pending())
}

func TestMachine_SnapshotWins(t *testing.T) {
	m, sched, outcomes := newMachine(t)
	m.Start()

	out, ok := m.OnSnapshot([]byte(`[{"id":"m1","text":"hi","senderId":"A"}]`))
	require.True(t, ok)
	assert.Equal(t, SourceSnapshot, out.Source)
	assert.Equal(t, []string{"m1"}, out.Log.IDs())
	assert.NoError(t, out.Err)
	assert.Equal(t, Live, m.Phase())
	assert.True(t, m.Received())

	assert.Equal(t, 0, sched.Pending(), "winning transition cancels the timer")
	sched.Advance(timeout)
	assert.Empty(t, *outcomes)
}

func TestMachine_TimeoutWinsExactlyOnce(t *testing.T) {
	m, sched, outcomes := newMachine(t)
	m.Start()

	sched.Advance(timeout - time.Millisecond)
	assert.Equal(t, AwaitingSnapshot, m.Phase())

	sched.Advance(time.Millisecond)
	require.Len(t, *outcomes, 1)
	assert.Equal(t, SourceTimeout, (*outcomes)[0].Source)
	assert.Equal(t, 0, (*outcomes)[0].Log.Len())
	assert.Equal(t, Live, m.Phase())

	// Late snapshot and a duplicate timer event are both stale.
	_, ok := m.OnSnapshot([]byte(`[{"id":"m1","text":"late","senderId":"A"}]`))
	assert.False(t, ok)
	_, ok = m.OnTimeout()
	assert.False(t, ok)
	assert.False(t, m.Received())
	assert.Len(t, *outcomes, 1)
}

func TestMachine_ClearedSentinel(t *testing.T) {
	m, _, _ := newMachine(t)
	m.Start()

	out, ok := m.OnSnapshot([]byte{})

	require.True(t, ok)
	assert.True(t, out.Cleared)
	assert.Equal(t, 0, out.Log.Len())
	assert.NoError(t, out.Err)
}

func TestMachine_MalformedSnapshotDegradesToEmpty(t *testing.T) {
	m, _, _ := newMachine(t)
	m.Start()

	out, ok := m.OnSnapshot([]byte(`{not json`))

	require.True(t, ok)
	assert.Equal(t, Live, m.Phase())
	assert.Equal(t, 0, out.Log.Len())
	assert.True(t, codec.IsDecodeError(out.Err))
}

func TestMachine_Failure(t *testing.T) {
	m, sched, _ := newMachine(t)
	m.Start()
	boom := errors.New("history unavailable")

	out, ok := m.OnFailure(boom)

	require.True(t, ok)
	assert.Equal(t, SourceFailure, out.Source)
	assert.ErrorIs(t, out.Err, boom)
	assert.Equal(t, 0, sched.Pending())

	_, ok = m.OnFailure(boom)
	assert.False(t, ok)
}

func TestMachine_StopCancelsTimer(t *testing.T) {
	m, sched, outcomes := newMachine(t)
	m.Start()

	m.Stop()
	sched.Advance(timeout)

	assert.Empty(t, *outcomes)
	assert.Equal(t, AwaitingSnapshot, m.Phase())
}

func TestMachine_SnapshotBeforeStart(t *testing.T) {
	m, sched, _ := newMachine(t)

	_, ok := m.OnSnapshot([]byte(`[]`))
	require.True(t, ok)

	m.Start()
	assert.Equal(t, 0, sched.Pending(), "Start after Live must not arm a timer")
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "awaiting_snapshot", AwaitingSnapshot.String())
	assert.Equal(t, "live", Live.String())
	assert.Equal(t, "unknown", Phase(9).String())
}
