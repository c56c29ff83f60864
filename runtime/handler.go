package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/protocol"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

type HandlerState int

const (
	AwaitingAlias HandlerState = iota
	Connected
	Closed
)

func (s HandlerState) String() string {
	switch s {
	case AwaitingAlias:
		return "awaiting_alias"
	case Connected:
		return "connected"
	default:
		return "closed"
	}
}

// ConnectionHandler drives one client connection:
// the alias handshake first, then a blocking receive loop feeding the message queue.
// Reads have no timeout: a handler only ends when its own connection does.
type ConnectionHandler struct {
	conn     contract.Conn
	registry contract.IRegistry
	queue    contract.IMessageQueue
	history  contract.IHistoryStore
	users    *UserListBroadcaster
	log      *slog.Logger
	now      func() time.Time
	state    HandlerState
}

func NewConnectionHandler(log *slog.Logger, conn contract.Conn, registry contract.IRegistry,
	queue contract.IMessageQueue, history contract.IHistoryStore, users *UserListBroadcaster) *ConnectionHandler {
	return &ConnectionHandler{
		conn:     conn,
		registry: registry,
		queue:    queue,
		history:  history,
		users:    users,
		log:      log.With("remote", conn.RemoteAddr()),
		now:      time.Now,
		state:    AwaitingAlias,
	}
}

func (h *ConnectionHandler) State() HandlerState {
	return h.state
}

// Run blocks until the connection is closed.
// It returns nil for a clean end (EOF or leave command) and the read error otherwise.
func (h *ConnectionHandler) Run() error {
	session, err := h.handshake()
	if err != nil {
		h.state = Closed
		_ = h.conn.Close()
		if isEndOfStream(err) {
			h.log.Debug("Connection closed during handshake")
			return nil
		}
		return fmt.Errorf("handshake: %w", err)
	}

	h.state = Connected
	h.log.Info(fmt.Sprintf("%s connected", session.Alias), "code", session.Code)
	h.users.Broadcast()

	err = h.receive(session)
	h.cleanup(session)
	if err != nil && !isEndOfStream(err) {
		return fmt.Errorf("receive %s: %w", session.Alias, err)
	}
	return nil
}

// handshake loops on the prompt until an alias is accepted.
// No Session exists until Admit succeeds, and the welcome is its first frame.
func (h *ConnectionHandler) handshake() (contract.Session, error) {
	for {
		if err := h.conn.WriteFrame(protocol.MustEncode(domain.SystemPrompt{Text: domain.AliasPrompt})); err != nil {
			return contract.Session{}, err
		}
		line, err := h.conn.ReadFrame()
		if err != nil {
			return contract.Session{}, err
		}

		alias := protocol.DecodeAlias(line)
		session, err := h.registry.Admit(alias, h.conn, h.conn.RemoteAddr(), func(s contract.Session) error {
			return h.conn.WriteFrame(protocol.MustEncode(domain.Welcome{Alias: s.Alias}))
		})
		switch {
		case stderrors.Is(err, errors.ErrAliasTaken), stderrors.Is(err, errors.ErrInvalidAlias):
			h.log.Info("Alias rejected", "alias", alias, "reason", err)
			if err := h.conn.WriteFrame(protocol.MustEncode(domain.AliasTaken{})); err != nil {
				return contract.Session{}, err
			}
			continue
		case err != nil:
			return contract.Session{}, err
		}

		if err := h.history.RecordConnect(session.Alias, session.Code, session.RemoteAddr, session.ConnectedAt); err != nil {
			h.log.Error("Connection record failed", "alias", session.Alias, "error", err)
		}
		return session, nil
	}
}

// receive pushes every read line onto the queue until EOF, leave, or an error.
func (h *ConnectionHandler) receive(session contract.Session) error {
	for {
		line, err := h.conn.ReadFrame()
		if err != nil {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(line), string(domain.TagLeave)) {
			h.log.Debug("Leave command received", "alias", session.Alias)
			return nil
		}
		entry := h.queue.Push(session.Alias, line)
		h.log.Debug("Frame enqueued", "alias", session.Alias, "seq", entry.Seq)
	}
}

// cleanup always runs, whatever ended the receive loop.
func (h *ConnectionHandler) cleanup(session contract.Session) {
	h.state = Closed
	h.registry.Remove(session.Alias)
	if err := h.history.RecordDisconnect(session.Alias, session.ConnectedAt, h.now()); err != nil {
		h.log.Error("Disconnection record failed", "alias", session.Alias, "error", err)
	}
	_ = h.conn.Close()
	h.log.Info(fmt.Sprintf("%s disconnected", session.Alias))
	h.users.Broadcast()
}

func isEndOfStream(err error) bool {
	return stderrors.Is(err, io.EOF) || stderrors.Is(err, errors.ErrConnClosed)
}
