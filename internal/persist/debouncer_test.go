package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/testutil"
)

const delay = 1500 * time.Millisecond

type recordingWriter struct {
	mu     sync.Mutex
	writes [][]chat.Message
	err    error
}

func (w *recordingWriter) Write(_ context.Context, msgs []chat.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, msgs)
	return nil
}

func (w *recordingWriter) ids() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]string, len(w.writes))
	for i, msgs := range w.writes {
		out[i] = []string{}
		for _, m := range msgs {
			out[i] = append(out[i], m.ID)
		}
	}
	return out
}

func msgs(ids ...string) []chat.Message {
	out := make([]chat.Message, len(ids))
	for i, id := range ids {
		out[i] = chat.Message{ID: id, Text: id, SenderID: "A"}
	}
	return out
}

func newDebouncer(t *testing.T, opts ...Option) (*Debouncer, *testutil.ManualScheduler, *recordingWriter) {
	t.Helper()
	sched := testutil.NewManualScheduler()
	w := &recordingWriter{}
	return NewDebouncer(sched, delay, w, opts...), sched, w
}

func TestDebouncer_GatedUntilEnabled(t *testing.T) {
	d, sched, w := newDebouncer(t)

	assert.False(t, d.Schedule(msgs("m1")))
	sched.Advance(time.Hour)
	assert.Empty(t, w.ids())

	require.NoError(t, d.Flush(context.Background(), msgs("m1")))
	assert.Empty(t, w.ids(), "flush while gated writes nothing")

	d.Enable()
	assert.True(t, d.Enabled())
	assert.True(t, d.Schedule(msgs("m1")))
	sched.Advance(delay)
	assert.Equal(t, [][]string{{"m1"}}, w.ids())
}

func TestDebouncer_CoalescesToLastView(t *testing.T) {
	d, sched, w := newDebouncer(t)
	d.Enable()

	d.Schedule(msgs("m1"))
	sched.Advance(time.Second)
	d.Schedule(msgs("m1", "m2"))
	sched.Advance(time.Second)
	d.Schedule(msgs("m1", "m2", "m3"))

	assert.Empty(t, w.ids(), "quiet period restarts on every mutation")

	sched.Advance(delay)
	assert.Equal(t, [][]string{{"m1", "m2", "m3"}}, w.ids())
	assert.Equal(t, 0, sched.Pending())
}

func TestDebouncer_FiltersLocalMessages(t *testing.T) {
	d, sched, w := newDebouncer(t)
	d.Enable()

	view := []chat.Message{
		{ID: "m1", Text: "hi", SenderID: "A"},
		{ID: "e1", Text: "publish failed", SenderID: "A", IsError: true},
		{ID: "s1", Text: "B joined", SenderID: chat.SystemSender},
	}
	d.Schedule(view)
	sched.Advance(delay)

	assert.Equal(t, [][]string{{"m1"}}, w.ids())
}

func TestDebouncer_SkipsUnchangedView(t *testing.T) {
	var results []Result
	d, sched, w := newDebouncer(t, WithObserver(func(r Result, _ error) {
		results = append(results, r)
	}))
	d.Enable()

	d.Schedule(msgs("m1"))
	sched.Advance(delay)
	d.Schedule(msgs("m1"))
	sched.Advance(delay)

	assert.Len(t, w.ids(), 1)
	assert.Equal(t, []Result{ResultWritten, ResultUnchanged}, results)
}

func TestDebouncer_FailedWriteRetriedByNextCycle(t *testing.T) {
	var errs []error
	d, sched, w := newDebouncer(t, WithObserver(func(_ Result, err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}))
	d.Enable()

	w.err = errors.New("broker unavailable")
	d.Schedule(msgs("m1"))
	sched.Advance(delay)
	require.Len(t, errs, 1)
	assert.Empty(t, w.ids())
	assert.Equal(t, 0, sched.Pending(), "failures are not retried by the debouncer itself")

	w.err = nil
	d.Schedule(msgs("m1"))
	sched.Advance(delay)
	assert.Equal(t, [][]string{{"m1"}}, w.ids(), "same view is written once the store recovers")
}

func TestDebouncer_FlushCancelsPendingWrite(t *testing.T) {
	d, sched, w := newDebouncer(t)
	d.Enable()

	d.Schedule(msgs("m1"))
	require.NoError(t, d.Flush(context.Background(), msgs("m1", "m2")))
	sched.Advance(delay)

	assert.Equal(t, [][]string{{"m1", "m2"}}, w.ids())
}

func TestDebouncer_StopThenFinalFlush(t *testing.T) {
	d, sched, w := newDebouncer(t)
	d.Enable()

	d.Schedule(msgs("m1"))
	d.Stop()
	sched.Advance(delay)
	assert.Empty(t, w.ids(), "stop cancels the pending write")

	assert.False(t, d.Schedule(msgs("m1", "m2")))

	require.NoError(t, d.Flush(context.Background(), msgs("m1", "m2")))
	assert.Equal(t, [][]string{{"m1", "m2"}}, w.ids())
}

func TestDebouncer_FlushReturnsWriterError(t *testing.T) {
	d, _, w := newDebouncer(t)
	d.Enable()
	boom := errors.New("disk full")
	w.err = boom

	err := d.Flush(context.Background(), msgs("m1"))

	assert.ErrorIs(t, err, boom)
}

func TestDebouncer_EmptyLogIsWritten(t *testing.T) {
	d, sched, w := newDebouncer(t)
	d.Enable()

	d.Schedule(msgs("m1"))
	sched.Advance(delay)
	d.Schedule(nil)
	sched.Advance(delay)

	assert.Equal(t, [][]string{{"m1"}, {}}, w.ids())
}
