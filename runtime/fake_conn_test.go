package runtime

import (
	"chat-relay/errors"
	"io"
	"sync"
	"time"
)

// fakeConn is an in-memory contract.Conn.
// Frames written by the server are kept in order and also pushed on written.
type fakeConn struct {
	in        chan string
	written   chan string
	mu        sync.Mutex
	out       []string
	closed    chan struct{}
	closeOnce sync.Once
	addr      string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan string, 64),
		written: make(chan string, 1024),
		closed:  make(chan struct{}),
		addr:    "127.0.0.1:50000",
	}
}

func (c *fakeConn) ReadFrame() (string, error) {
	select {
	case line, ok := <-c.in:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-c.closed:
		return "", errors.ErrConnClosed
	}
}

func (c *fakeConn) WriteFrame(frame string) error {
	select {
	case <-c.closed:
		return errors.ErrConnClosed
	default:
	}
	c.mu.Lock()
	c.out = append(c.out, frame)
	c.mu.Unlock()
	select {
	case c.written <- frame:
	default:
	}
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.out...)
}

// next waits for the next frame written to the connection.
func (c *fakeConn) next(timeout time.Duration) (string, bool) {
	select {
	case frame := <-c.written:
		return frame, true
	case <-time.After(timeout):
		return "", false
	}
}
