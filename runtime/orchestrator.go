// Package runtime wires the relay together: registry, queue, connection handlers
// and the supervised workers. It holds no protocol rules of its own.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/runtime/workers"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       *Registry
	queue          *MessageQueue
	history        contract.IHistoryStore
	transcripts    contract.ITranscriptStore
	users          *UserListBroadcaster
	statsInterval  time.Duration
	conns          map[contract.Conn]struct{}
	handlers       sync.WaitGroup
	cancel         context.CancelFunc
	supervisorDone chan struct{}
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry *Registry, queue *MessageQueue,
	history contract.IHistoryStore, transcripts contract.ITranscriptStore,
	statsInterval time.Duration, observers ...contract.IUserListObserver) *Orchestrator {
	return &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		queue:          queue,
		history:        history,
		transcripts:    transcripts,
		users:          NewUserListBroadcaster(log, registry, observers...),
		statsInterval:  statsInterval,
		conns:          make(map[contract.Conn]struct{}),
		supervisorDone: make(chan struct{}),
	}
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Start launches the single message router, plus the heartbeat when an interval is set.
// It returns immediately; the workers stop when ctx is done or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.supervisor.Add(workers.NewMessageRouter(o.log, o.queue, o.registry, o.transcripts))
	if o.statsInterval > 0 {
		o.supervisor.Add(workers.NewHeartbeatWorker(o.log, o.registry, o.queue, o.statsInterval))
	}

	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	go func() {
		defer close(o.supervisorDone)
		o.supervisor.Run(ctx)
	}()
}

// Serve accepts connections until ctx is done or the listener fails.
// Each connection gets its own handler goroutine.
func (o *Orchestrator) Serve(ctx context.Context, listener contract.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()

	o.log.Info("Accepting connections", "address", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, errors.ErrConnClosed) {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", listener.Addr(), err)
		}
		o.handle(conn)
	}
}

func (o *Orchestrator) handle(conn contract.Conn) {
	o.mu.Lock()
	o.conns[conn] = struct{}{}
	o.mu.Unlock()

	o.handlers.Add(1)
	go func() {
		defer o.handlers.Done()
		defer func() {
			o.mu.Lock()
			delete(o.conns, conn)
			o.mu.Unlock()
		}()

		handler := NewConnectionHandler(o.log, conn, o.registry, o.queue, o.history, o.users)
		if err := handler.Run(); err != nil {
			o.log.Warn("Connection ended with error", "remote", conn.RemoteAddr(), "error", err)
		}
	}()
}

// Stop closes every connection, waits for their cleanup, then stops the router.
// Frames still queued at that point are discarded.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")

	o.mu.Lock()
	for conn := range o.conns {
		_ = conn.Close()
	}
	cancel := o.cancel
	o.mu.Unlock()
	o.handlers.Wait()

	o.queue.Close()
	o.supervisor.Stop()
	if cancel != nil {
		cancel()
		<-o.supervisorDone
	}
	o.log.Debug("Orchestrator stopped")
}
