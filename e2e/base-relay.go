package e2e

import (
	"chat-relay/client"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
	stop   func()
}

// SetupSuite loads the environment configuration and, without RELAY_ADDR, starts a relay in process.
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.startRelay()
	}
}

func (s *BaseRelaySuite) TearDownSuite() {
	if s.stop != nil {
		s.stop()
	}
}

func (s *BaseRelaySuite) startRelay() {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)

	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 0),
		runtime.NewRegistry(), runtime.NewMessageQueue(),
		repositories.NewHistoryRepository(db, log), repositories.NewTranscriptRepository(db, log), 0)
	listener, err := transport.ListenTCP("127.0.0.1:0", s.Config.MaxFrameBytes)
	s.Require().NoError(err)
	health, err := observability.NewHealthServer(log, "127.0.0.1:0")
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator.Start(ctx)
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = orchestrator.Serve(ctx, listener)
	}()
	go func() { _ = health.Serve() }()
	health.SetServing(true)

	s.Config.RelayAddr = listener.Addr()
	s.Config.HealthAddr = health.Addr()
	s.stop = func() {
		cancel()
		<-served
		orchestrator.Stop()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		health.Stop(stopCtx)
		_ = db.Close()
	}
}

// Step prints a colorized header for one scenario step
func (s *BaseRelaySuite) Step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Join connects a client and completes the handshake under alias.
func (s *BaseRelaySuite) Join(alias string) *client.Client {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	c, err := client.Dial(log, s.Config.RelayAddr, s.Config.MaxFrameBytes)
	s.Require().NoError(err, "Failed to connect to relay at "+s.Config.RelayAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	accepted, err := c.Handshake(ctx, func(string, bool) (string, error) { return alias, nil })
	s.Require().NoError(err)
	s.Require().Equal(alias, accepted)
	return c
}

// GrpcConn initializes a gRPC connection with logging, colors, and JSON debugging
func (s *BaseRelaySuite) GrpcConn(t *testing.T, name string, addr string) *grpc.ClientConn {
	s.Step(t, name)

	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))

			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+addr)
	return conn
}

// WithHealth provides a health client within a contextual test step
func (s *BaseRelaySuite) WithHealth(name string, fn func(ctx context.Context, client grpc_health_v1.HealthClient)) {
	if s.Config.HealthAddr == "" {
		s.T().Skip("HEALTH_ADDR not set")
	}
	conn := s.GrpcConn(s.T(), name, s.Config.HealthAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, grpc_health_v1.NewHealthClient(conn))
}
