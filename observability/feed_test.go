package observability

import (
	"bytes"
	"chat-relay/domain"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type recordingSubscriber struct {
	mu    sync.Mutex
	lines []Line
	users [][]domain.UserEntry
}

func (r *recordingSubscriber) OnLine(line Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recordingSubscriber) OnUsers(users []domain.UserEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, users)
}

func TestFeedHandler_Forwards_To_Feed_And_Next(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	feed := NewFeed()
	sub := &recordingSubscriber{}
	unsubscribe := feed.Subscribe(sub)

	log := slog.New(NewFeedHandler(slog.NewTextHandler(&buf, nil), feed))

	// When the relay logs through the handler
	log.With("remote", "10.0.0.2:1").WithGroup("client").Info("Ana connected", "code", "481")

	// Then the subscriber sees the record with its attributes
	req.Len(sub.lines, 1)
	line := sub.lines[0]
	req.Equal("Ana connected", line.Message)
	req.Equal(slog.LevelInfo, line.Level)
	req.Equal("10.0.0.2:1", line.Attrs["remote"])
	req.Equal("481", line.Attrs["client.code"])
	// And the wrapped handler still writes it
	req.Contains(buf.String(), "Ana connected")

	// When the subscriber leaves
	unsubscribe()
	unsubscribe()
	log.Info("Beto connected")
	req.Len(sub.lines, 1)
}

func TestFeedHandler_Respects_Level(t *testing.T) {
	req := require.New(t)
	feed := NewFeed()
	sub := &recordingSubscriber{}
	feed.Subscribe(sub)
	log := slog.New(NewFeedHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}), feed))

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")

	req.Len(sub.lines, 1)
	req.Equal("kept", sub.lines[0].Message)
}

func TestFeed_Replays_Users_To_New_Subscribers(t *testing.T) {
	req := require.New(t)
	feed := NewFeed()
	early := &recordingSubscriber{}
	feed.Subscribe(early)

	users := []domain.UserEntry{{Code: "100", Alias: "Ana"}, {Code: "200", Alias: "Beto"}}
	feed.PublishUsers(users)
	req.Equal([][]domain.UserEntry{users}, early.users)

	late := &recordingSubscriber{}
	feed.Subscribe(late)
	req.Equal([][]domain.UserEntry{users}, late.users)
}

func TestConsole_Prints_Lines_And_Users(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	console := NewConsole(&buf, false)

	console.OnLine(Line{
		At:      time.Date(2026, 3, 1, 10, 4, 5, 0, time.UTC),
		Level:   slog.LevelWarn,
		Message: "Alias rejected",
		Attrs:   map[string]string{"reason": "taken", "alias": "Ana"},
	})
	console.OnUsers([]domain.UserEntry{{Code: "100", Alias: "Ana"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	req.Len(lines, 2)
	req.Equal("10:04:05 WARN  Alias rejected alias=Ana reason=taken", lines[0])
	req.Equal("Usuarios conectados (1): Ana (100)", lines[1])
}

func TestHealthServer_Reports_Serving_Status(t *testing.T) {
	req := require.New(t)
	server, err := NewHealthServer(slog.Default(), "127.0.0.1:0")
	req.NoError(err)
	go func() { _ = server.Serve() }()

	conn, err := grpc.NewClient(server.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: RelayService})
	req.NoError(err)
	req.Equal(grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	server.SetServing(true)
	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	req.NoError(err)
	req.Equal(grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())

	server.Stop(ctx)
}
