package transport

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const WebSocketPath = "/ws"

var (
	_ contract.Conn     = (*WSConn)(nil)
	_ contract.Listener = (*WSListener)(nil)
)

// WSConn maps one text message to one frame.
type WSConn struct {
	socket    *websocket.Conn
	remote    string
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewWSConn(socket *websocket.Conn, remote string, maxFrameBytes int) *WSConn {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	socket.SetReadLimit(int64(maxFrameBytes))
	if remote == "" {
		remote = socket.RemoteAddr().String()
	}
	return &WSConn{socket: socket, remote: remote}
}

func (c *WSConn) ReadFrame() (string, error) {
	for {
		kind, data, err := c.socket.ReadMessage()
		if err != nil {
			return "", wsError(err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (c *WSConn) WriteFrame(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.socket.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return wsError(err)
	}
	return nil
}

func (c *WSConn) RemoteAddr() string {
	return c.remote
}

// Close sends a close message when possible, then drops the socket.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.socket.Close()
	})
	if err != nil && !stderrors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func wsError(err error) error {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		return io.EOF
	case stderrors.Is(err, websocket.ErrReadLimit):
		return errors.ErrFrameTooLarge
	case stderrors.Is(err, net.ErrClosed), stderrors.Is(err, websocket.ErrCloseSent):
		return errors.ErrConnClosed
	case stderrors.Is(err, io.ErrUnexpectedEOF):
		return io.EOF
	default:
		return err
	}
}

// WSListener upgrades HTTP requests on WebSocketPath and queues the resulting connections for Accept.
type WSListener struct {
	log       *slog.Logger
	server    *http.Server
	listener  net.Listener
	upgrader  websocket.Upgrader
	maxFrame  int
	conns     chan contract.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func ListenWebSocket(log *slog.Logger, addr string, maxFrameBytes int) (*WSListener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	ws := &WSListener{
		log:      log,
		listener: l,
		maxFrame: maxFrameBytes,
		conns:    make(chan contract.Conn),
		done:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			// Terminal and script clients send no Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, ws.upgrade)
	ws.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := ws.server.Serve(l); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("WebSocket server stopped", "error", err)
		}
	}()
	return ws, nil
}

func (l *WSListener) upgrade(w http.ResponseWriter, r *http.Request) {
	socket, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := NewWSConn(socket, r.RemoteAddr, l.maxFrame)
	select {
	case l.conns <- conn:
	case <-l.done:
		_ = conn.Close()
	}
}

func (l *WSListener) Accept() (contract.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, errors.ErrConnClosed
	}
}

func (l *WSListener) Addr() string {
	return l.listener.Addr().String()
}

// Close stops accepting. Connections already handed out stay open.
func (l *WSListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
	})
	return err
}

// DialWebSocket connects to ws://addr/ws.
func DialWebSocket(ctx context.Context, addr string, maxFrameBytes int) (*WSConn, error) {
	url := fmt.Sprintf("ws://%s%s", addr, WebSocketPath)
	socket, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWSConn(socket, "", maxFrameBytes), nil
}
