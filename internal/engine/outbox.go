package engine

import (
	"context"
	"sync"

	"github.com/roach88/chatsync/internal/transport"
)

// outboxItem is a payload to publish, or a marker whose done channel is
// answered once everything queued before it was handed to the transport.
type outboxItem struct {
	payload []byte
	done    chan commandResult
}

// outbox publishes local actions in order on its own goroutine, so the
// loop never waits for a broker acknowledgement.
type outbox struct {
	s    *Session
	ch   chan outboxItem
	wg   sync.WaitGroup
	once sync.Once
}

func newOutbox(s *Session, size int) *outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	o := &outbox{s: s, ch: make(chan outboxItem, size)}
	o.wg.Add(1)
	go o.run()
	return o
}

// push queues payload. It reports false if the outbox is full.
// Called only from the loop goroutine, before close.
func (o *outbox) push(payload []byte) bool {
	select {
	case o.ch <- outboxItem{payload: payload}:
		return true
	default:
		return false
	}
}

// mark queues a marker answered on done. A full outbox answers at once.
func (o *outbox) mark(done chan commandResult) {
	select {
	case o.ch <- outboxItem{done: done}:
	default:
		done <- commandResult{}
	}
}

// close publishes what is queued, then stops the goroutine.
func (o *outbox) close() {
	o.once.Do(func() {
		close(o.ch)
		o.wg.Wait()
	})
}

func (o *outbox) run() {
	defer o.wg.Done()
	s := o.s
	for item := range o.ch {
		if item.done != nil {
			item.done <- commandResult{}
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
		err := s.conn.Publish(ctx, s.liveTopic, item.payload, transport.PublishOptions{QoS: s.qos})
		cancel()
		if err != nil {
			s.metrics.PublishErrors.Inc()
			s.logger.Warn("publish failed", "topic", s.liveTopic, "error", err)
			s.queue.Enqueue(event{kind: evPublishFailed, payload: item.payload})
		}
	}
}
