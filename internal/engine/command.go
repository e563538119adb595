package engine

import (
	"context"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/codec"
	"github.com/roach88/chatsync/internal/policy"
)

type commandKind int

const (
	cmdSend commandKind = iota + 1
	cmdDelete
	cmdReact
	cmdClear
	cmdSync
)

// command is a local action request. The loop answers on reply, which is
// buffered so the loop never blocks on a caller that gave up.
type command struct {
	kind    commandKind
	text    string
	replyTo string
	id      string
	emoji   string
	reply   chan commandResult
}

type commandResult struct {
	msg chat.Message
	err error
}

// Send appends a message authored by this session and publishes it.
// replyTo, if not empty, must name a message in the log; its current text
// is quoted into the new message.
func (s *Session) Send(ctx context.Context, text, replyTo string) (chat.Message, error) {
	res, err := s.do(ctx, &command{kind: cmdSend, text: text, replyTo: replyTo})
	return res.msg, err
}

// Delete removes one of this session's own messages.
func (s *Session) Delete(ctx context.Context, id string) error {
	_, err := s.do(ctx, &command{kind: cmdDelete, id: id})
	return err
}

// ToggleReaction adds or removes this session's emoji reaction on a
// message.
func (s *Session) ToggleReaction(ctx context.Context, id, emoji string) error {
	_, err := s.do(ctx, &command{kind: cmdReact, id: id, emoji: emoji})
	return err
}

// ClearAll empties the log for every participant.
func (s *Session) ClearAll(ctx context.Context) error {
	_, err := s.do(ctx, &command{kind: cmdClear})
	return err
}

// Sync returns once every event enqueued before the call has been applied
// and every action published before it has been handed to the transport.
func (s *Session) Sync(ctx context.Context) error {
	_, err := s.do(ctx, &command{kind: cmdSync})
	return err
}

func (s *Session) do(ctx context.Context, cmd *command) (commandResult, error) {
	cmd.reply = make(chan commandResult, 1)
	if !s.queue.Enqueue(event{kind: evCommand, cmd: cmd}) {
		return commandResult{}, ErrStopped
	}
	select {
	case res := <-cmd.reply:
		return res, res.err
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	}
}

// handleCommand validates a local action, applies it, then publishes it.
// CRITICAL: Called only from the loop goroutine.
func (s *Session) handleCommand(ev event) commandResult {
	if err := policy.CheckReady(s.boot.Phase()); err != nil {
		return commandResult{err: err}
	}

	cmd := ev.cmd
	var (
		a   chat.Action
		msg chat.Message
	)
	switch cmd.kind {
	case cmdSend:
		if err := policy.CheckSend(s.log, s.self, cmd.text, cmd.replyTo); err != nil {
			return commandResult{err: err}
		}
		msg = chat.Message{
			ID:       s.ids.Generate(),
			Text:     cmd.text,
			SenderID: s.self,
		}
		if cmd.replyTo != "" {
			quoted, _ := s.log.Get(cmd.replyTo)
			msg.ReplyTo = chat.QuoteOf(quoted)
		}
		a = chat.NewMessage{Message: msg}

	case cmdDelete:
		if err := policy.CheckDelete(s.log, s.self, cmd.id); err != nil {
			return commandResult{err: err}
		}
		a = chat.DeleteMessage{MessageID: cmd.id}

	case cmdReact:
		if err := policy.CheckReact(s.log, s.self, cmd.id, cmd.emoji); err != nil {
			return commandResult{err: err}
		}
		a = chat.ToggleReaction{MessageID: cmd.id, Emoji: chat.NormalizeEmoji(cmd.emoji), ActorID: s.self}

	case cmdClear:
		if err := policy.CheckClear(s.self); err != nil {
			return commandResult{err: err}
		}
		a = chat.ClearAllHistory{}
	}

	payload, err := codec.Encode(a)
	if err != nil {
		return commandResult{err: err}
	}

	s.apply(ev.seq, a, OriginLocal)
	s.publish(a, payload)
	return commandResult{msg: msg}
}

// publish hands payload to the outbox. Actions taken while the connection
// is down are kept locally and not published.
func (s *Session) publish(a chat.Action, payload []byte) {
	if !s.status.CanPublish() {
		s.metrics.PublishDropped.Inc()
		s.logger.Warn("not connected, action kept locally", "action", chat.Label(a), "status", s.status.String())
		return
	}
	if _, ok := a.(chat.ToggleReaction); ok {
		s.echoes[string(payload)]++
	}
	if !s.out.push(payload) {
		s.forgetEcho(payload)
		s.metrics.PublishDropped.Inc()
		s.logger.Warn("outbox full, action kept locally", "action", chat.Label(a))
	}
}

// consumeEcho reports whether payload matches an own toggle still in
// flight, and consumes one match.
func (s *Session) consumeEcho(payload []byte) bool {
	key := string(payload)
	n := s.echoes[key]
	if n == 0 {
		return false
	}
	s.forgetEcho(payload)
	return true
}

func (s *Session) forgetEcho(payload []byte) {
	key := string(payload)
	switch n := s.echoes[key]; {
	case n > 1:
		s.echoes[key] = n - 1
	case n == 1:
		delete(s.echoes, key)
	}
}
