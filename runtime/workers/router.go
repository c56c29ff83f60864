package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/protocol"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var _ contract.Worker = (*MessageRouter)(nil)

// MessageRouter is the single consumer of the message queue.
// Each entry is processed to completion before the next one is popped:
// this is the only ordering guarantee of the relay, and what keeps the side
// effects of two concurrent messages (deliveries, transcript lines) from interleaving.
// Run it under exactly one supervisor slot.
type MessageRouter struct {
	log         *slog.Logger
	queue       contract.IMessageQueue
	registry    contract.IRegistry
	transcripts contract.ITranscriptStore
}

func NewMessageRouter(log *slog.Logger, queue contract.IMessageQueue,
	registry contract.IRegistry, transcripts contract.ITranscriptStore) *MessageRouter {
	return &MessageRouter{
		log:         log,
		queue:       queue,
		registry:    registry,
		transcripts: transcripts,
	}
}

func (r *MessageRouter) Run(ctx context.Context) error {
	for {
		entry, err := r.queue.Pop(ctx)
		if err != nil {
			if stderrors.Is(err, errors.ErrQueueClosed) || ctx.Err() != nil {
				r.log.Debug("Message router stopped")
				return nil
			}
			return err
		}
		r.Route(entry)
	}
}

// Route decodes one entry and applies its side effects.
// Malformed or unexpected frames are logged and discarded, nobody gets a reply.
func (r *MessageRouter) Route(entry domain.QueueEntry) {
	frame, err := protocol.Decode(entry.Raw)
	if err != nil {
		r.log.Warn("Discarding frame", "sender", entry.Sender, "seq", entry.Seq, "error", err)
		return
	}

	switch f := frame.(type) {
	case domain.PublicMessage:
		r.broadcast(entry.Sender, protocol.MustEncode(domain.PublicNotice(entry.Sender, f.Text)))
		r.record(entry.Sender, f.Text, domain.BroadcastDestination)
		r.log.Info(fmt.Sprintf("%s sent a public message", entry.Sender), "seq", entry.Seq)
	case domain.PrivateMessage:
		delivered := r.deliver(f.To, protocol.MustEncode(domain.PrivateNotice(entry.Sender, f.Text)))
		r.record(entry.Sender, f.Text, f.To)
		r.log.Info(fmt.Sprintf("%s sent a private message to %s", entry.Sender, f.To),
			"seq", entry.Seq, "delivered", delivered)
	case domain.FileTransfer:
		r.relayFile(entry, f)
	default:
		r.log.Warn("Discarding frame not allowed from a client",
			"sender", entry.Sender, "seq", entry.Seq, "tag", frame.Tag())
	}
}

func (r *MessageRouter) relayFile(entry domain.QueueEntry, f domain.FileTransfer) {
	line := protocol.MustEncode(domain.FileTransfer{
		Peer:     entry.Sender,
		Filename: f.Filename,
		Payload:  f.Payload,
	})
	delivered := true
	if strings.EqualFold(f.Peer, domain.BroadcastDestination) {
		r.broadcast(entry.Sender, line)
	} else {
		delivered = r.deliver(f.Peer, line)
	}
	r.record(entry.Sender, fmt.Sprintf("Archivo enviado: %s", f.Filename), f.Peer)
	r.log.Info(fmt.Sprintf("%s sent a file to %s", entry.Sender, f.Peer),
		"seq", entry.Seq,
		"filename", f.Filename,
		"size", len(f.Payload),
		"mime", mimetype.Detect(f.Payload).String(),
		"delivered", delivered)
}

// broadcast sends to every session except the sender while the registry lock is held.
// A failing recipient does not stop the others.
func (r *MessageRouter) broadcast(sender, line string) {
	r.registry.Fanout(func(sessions []contract.Session) {
		for _, s := range sessions {
			if s.Alias == sender {
				continue
			}
			if err := s.Conn.WriteFrame(line); err != nil {
				r.log.Debug("Dropping delivery", "recipient", s.Alias, "error", err)
			}
		}
	})
}

// deliver sends to a single alias. An offline recipient is silently dropped.
func (r *MessageRouter) deliver(to, line string) bool {
	session, err := r.registry.Lookup(to)
	if err != nil {
		r.log.Debug("Recipient offline, dropping", "recipient", to)
		return false
	}
	if err := session.Conn.WriteFrame(line); err != nil {
		r.log.Debug("Dropping delivery", "recipient", to, "error", err)
		return false
	}
	return true
}

func (r *MessageRouter) record(alias, text, destination string) {
	if err := r.transcripts.Append(alias, text, destination); err != nil {
		r.log.Error("Transcript append failed", "alias", alias, "error", err)
	}
}
