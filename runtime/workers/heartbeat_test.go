package workers

import (
	"chat-relay/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHeartbeatWorker_Reports_Load(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockIRegistry(ctrl)
	queue := mocks.NewMockIMessageQueue(ctrl)
	registry.EXPECT().Len().Return(3).MinTimes(1)
	queue.EXPECT().Len().Return(7).MinTimes(1)

	worker := NewHeartbeatWorker(slog.Default(), registry, queue, 10*time.Millisecond)
	reports := make(chan RelayStats, 16)
	worker.report = func(stats RelayStats) {
		select {
		case reports <- stats:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	select {
	case stats := <-reports:
		req.Equal(3, stats.Sessions)
		req.Equal(7, stats.QueueDepth)
	case <-time.After(time.Second):
		t.Fatal("no heartbeat reported")
	}

	cancel()
	req.NoError(<-done)
}
