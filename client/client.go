// Package client is the relay's client side: the alias handshake, the send operations
// and the receive loop that stores files and classifies frames.
package client

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/protocol"
	"chat-relay/transport"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// AnonymousAlias replaces a blank answer to the prompt.
const AnonymousAlias = "Anónimo"

// AliasSource asks the user for an alias.
// taken is true when the previous answer was refused.
type AliasSource func(prompt string, taken bool) (string, error)

type Client struct {
	log   *slog.Logger
	conn  contract.Conn
	mu    sync.RWMutex
	alias string
}

func New(log *slog.Logger, conn contract.Conn) *Client {
	return &Client{log: log, conn: conn}
}

// Dial connects over TCP to addr, "host:port".
func Dial(log *slog.Logger, addr string, maxFrameBytes int) (*Client, error) {
	conn, err := transport.DialTCP(addr, maxFrameBytes)
	if err != nil {
		return nil, err
	}
	return New(log, conn), nil
}

// DialWebSocket connects to the relay's WebSocket transport.
func DialWebSocket(ctx context.Context, log *slog.Logger, addr string, maxFrameBytes int) (*Client, error) {
	conn, err := transport.DialWebSocket(ctx, addr, maxFrameBytes)
	if err != nil {
		return nil, err
	}
	return New(log, conn), nil
}

func (c *Client) Alias() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alias
}

// Handshake answers prompts until the server welcomes us, and returns the accepted alias.
// Cancelling ctx closes the connection.
func (c *Client) Handshake(ctx context.Context, source AliasSource) (string, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	taken := false
	for {
		line, err := c.conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("handshake: %w", err)
		}
		frame, err := protocol.Decode(line)
		if err != nil {
			c.log.Debug("Ignoring frame during handshake", "line", line, "error", err)
			continue
		}

		switch f := frame.(type) {
		case domain.SystemPrompt:
			alias, err := source(f.Text, taken)
			if err != nil {
				return "", err
			}
			alias = strings.TrimSpace(alias)
			if alias == "" {
				alias = AnonymousAlias
			}
			taken = false
			if err := c.conn.WriteFrame(protocol.MustEncode(domain.Hello{Alias: alias})); err != nil {
				return "", fmt.Errorf("handshake: %w", err)
			}
		case domain.AliasTaken:
			taken = true
		case domain.Welcome:
			c.mu.Lock()
			c.alias = f.Alias
			c.mu.Unlock()
			c.log.Debug("Handshake done", "alias", f.Alias)
			return f.Alias, nil
		default:
			c.log.Debug("Ignoring frame during handshake", "tag", frame.Tag())
		}
	}
}

func (c *Client) SendPublic(text string) error {
	return c.send(domain.PublicMessage{Text: text})
}

func (c *Client) SendPrivate(to, text string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("%w: empty recipient", errors.ErrInvalidAlias)
	}
	return c.send(domain.PrivateMessage{To: to, Text: text})
}

// SendFile reads path and sends it whole. An empty destination means everybody.
func (c *Client) SendFile(to, path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	to = strings.TrimSpace(to)
	if to == "" {
		to = domain.BroadcastDestination
	}
	return c.send(domain.FileTransfer{Peer: to, Filename: filepath.Base(path), Payload: payload})
}

// Leave tells the server we are going away. The server closes the connection afterwards.
func (c *Client) Leave() error {
	return c.send(domain.Leave{})
}

// Receiver builds the receive loop on this client's connection.
func (c *Client) Receiver(inboxDir string, callbacks Callbacks) *Receiver {
	return NewReceiver(c.log, c.conn, inboxDir, callbacks)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(frame domain.Frame) error {
	line, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	return c.conn.WriteFrame(line)
}
