package main

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the relay and blocks until a signal arrives or a listener fails.
// Every resource opened here is released by a defer before run returns.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	// Every log record also goes to the feed; the console is one view of it
	feed := observability.NewFeed()
	if config.Console {
		defer feed.Subscribe(observability.NewConsole(os.Stderr, config.Colours))()
	}
	log := slog.New(observability.NewFeedHandler(logs.GetLoggerFromString(config.LogLevel).Handler(), feed))

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Relay core
	history := repositories.NewHistoryRepository(db, log)
	transcripts := repositories.NewTranscriptRepository(db, log)
	orchestrator := runtime.NewOrchestrator(
		log, workers.NewSupervisor(log, config.RestartInterval),
		runtime.NewRegistry(), runtime.NewMessageQueue(),
		history, transcripts, config.StatsInterval, feed,
	)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Listeners
	listeners := []contract.Listener{}
	tcp, err := transport.ListenTCP(config.Address(config.Port), config.MaxFrameBytes)
	if err != nil {
		return err
	}
	listeners = append(listeners, tcp)
	if config.WSPort > 0 {
		ws, err := transport.ListenWebSocket(log, config.Address(config.WSPort), config.MaxFrameBytes)
		if err != nil {
			_ = tcp.Close()
			return err
		}
		listeners = append(listeners, ws)
	}

	var health *observability.HealthServer
	if config.HealthPort > 0 {
		health, err = observability.NewHealthServer(log, config.Address(config.HealthPort))
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return err
		}
	}

	// 6. Start the engine, then serve every transport
	orchestrator.Start(ctx)
	errChan := make(chan error, len(listeners)+1)
	var serving sync.WaitGroup
	for _, l := range listeners {
		serving.Add(1)
		go func(l contract.Listener) {
			defer serving.Done()
			if err := orchestrator.Serve(ctx, l); err != nil {
				errChan <- err
			}
		}(l)
	}
	if health != nil {
		go func() {
			if err := health.Serve(); err != nil {
				errChan <- err
			}
		}()
		health.SetServing(true)
	}
	log.Info("Relay started", "tcp", tcp.Addr(), "ws_port", config.WSPort, "health_port", config.HealthPort)

	// 7. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		log.Error("Listener failed, shutting down", "error", runErr)
		stop()
	}

	// 8. Final Cleanup: listeners, then connections and router, then health
	serving.Wait()
	orchestrator.Stop()
	if health != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		health.Stop(shutdownCtx)
		cancel()
	}
	log.Info("Program stopped cleanly")
	return runErr
}
