// Package transport carries newline framed lines over TCP and WebSocket.
// Both sides expose the same contract.Conn, so the relay never knows which one it serves.
package transport

import (
	"bufio"
	"chat-relay/contract"
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

const DefaultMaxFrameBytes = 16 * 1024 * 1024

const initialReadBuffer = 64 * 1024

var (
	_ contract.Conn     = (*LineConn)(nil)
	_ contract.Listener = (*TCPListener)(nil)
)

// LineConn reads and writes one frame per line.
// Reads come from a single goroutine, writes may come from many.
type LineConn struct {
	conn     net.Conn
	scanner  *bufio.Scanner
	maxFrame int
	writeMu  sync.Mutex
}

// NewLineConn accepts frames of at most maxFrameBytes, terminator excluded,
// the same bound WSConn puts on a message.
func NewLineConn(conn net.Conn, maxFrameBytes int) *LineConn {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	// The scanner caps a token at the larger of its max and the initial buffer
	// capacity, and needs room for "\r\n" before it can see the end of a line.
	limit := maxFrameBytes + 2
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(initialReadBuffer, limit)), limit)
	return &LineConn{conn: conn, scanner: scanner, maxFrame: maxFrameBytes}
}

// ReadFrame returns the next line without its terminator.
// A peer closing the stream yields io.EOF, even mid line.
func (c *LineConn) ReadFrame() (string, error) {
	if c.scanner.Scan() {
		line := strings.TrimSuffix(c.scanner.Text(), "\r")
		if len(line) > c.maxFrame {
			return "", errors.ErrFrameTooLarge
		}
		return line, nil
	}
	err := c.scanner.Err()
	switch {
	case err == nil:
		return "", io.EOF
	case stderrors.Is(err, bufio.ErrTooLong):
		return "", errors.ErrFrameTooLarge
	case stderrors.Is(err, net.ErrClosed):
		return "", errors.ErrConnClosed
	default:
		return "", err
	}
}

// WriteFrame writes frame followed by a newline, atomically.
func (c *LineConn) WriteFrame(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := io.WriteString(c.conn, frame+"\n"); err != nil {
		if stderrors.Is(err, net.ErrClosed) {
			return errors.ErrConnClosed
		}
		return err
	}
	return nil
}

func (c *LineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *LineConn) Close() error {
	if err := c.conn.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

type TCPListener struct {
	listener      net.Listener
	maxFrameBytes int
}

// ListenTCP binds addr, "host:port". Port 0 picks a free one.
func ListenTCP(addr string, maxFrameBytes int) (*TCPListener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &TCPListener{listener: l, maxFrameBytes: maxFrameBytes}, nil
}

func (l *TCPListener) Accept() (contract.Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		if stderrors.Is(err, net.ErrClosed) {
			return nil, errors.ErrConnClosed
		}
		return nil, err
	}
	return NewLineConn(conn, l.maxFrameBytes), nil
}

func (l *TCPListener) Addr() string {
	return l.listener.Addr().String()
}

func (l *TCPListener) Close() error {
	return l.listener.Close()
}

// DialTCP opens a client side line connection.
func DialTCP(addr string, maxFrameBytes int) (*LineConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewLineConn(conn, maxFrameBytes), nil
}
