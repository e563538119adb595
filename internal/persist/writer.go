package persist

import (
	"context"
	"fmt"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/codec"
)

// Writer stores a durable snapshot.
type Writer interface {
	Write(ctx context.Context, msgs []chat.Message) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, msgs []chat.Message) error

func (f WriterFunc) Write(ctx context.Context, msgs []chat.Message) error {
	return f(ctx, msgs)
}

// Publisher publishes a retained payload.
type Publisher interface {
	PublishRetained(ctx context.Context, payload []byte) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, payload []byte) error

func (f PublisherFunc) PublishRetained(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// RetainedWriter writes snapshots as retained messages. An empty log is
// published as the empty "cleared" sentinel.
type RetainedWriter struct {
	pub Publisher
}

// NewRetainedWriter returns a Writer that publishes through pub.
func NewRetainedWriter(pub Publisher) *RetainedWriter {
	return &RetainedWriter{pub: pub}
}

func (w *RetainedWriter) Write(ctx context.Context, msgs []chat.Message) error {
	payload, err := codec.EncodeSnapshot(Filter(msgs))
	if err != nil {
		return fmt.Errorf("retained write: %w", err)
	}
	if err := w.pub.PublishRetained(ctx, payload); err != nil {
		return fmt.Errorf("retained write: %w", err)
	}
	return nil
}

// Filter drops messages that never leave the session: error diagnostics
// and system notices. The result is never nil.
func Filter(msgs []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Durable() {
			out = append(out, m)
		}
	}
	return out
}
