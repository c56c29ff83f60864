package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HeartbeatWorker)(nil)

type RelayStats struct {
	Sessions   int
	QueueDepth int
	RSS        uint64
	CPUPercent float64
	Status     string
}

// HeartbeatWorker logs the relay load on a fixed interval:
// online sessions, pending queue entries and the process memory and CPU.
type HeartbeatWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	queue    contract.IMessageQueue
	interval time.Duration
	report   func(RelayStats)
}

func NewHeartbeatWorker(log *slog.Logger, registry contract.IRegistry,
	queue contract.IMessageQueue, interval time.Duration) *HeartbeatWorker {
	w := &HeartbeatWorker{log: log, registry: registry, queue: queue, interval: interval}
	w.report = w.logStats
	return w
}

// Run executes the main loop of the worker until ctx is done.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting relay heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := RelayStats{
				Sessions:   w.registry.Len(),
				QueueDepth: w.queue.Len(),
			}
			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
			} else {
				stats.RSS, stats.CPUPercent, stats.Status = rss, cpu, status
			}
			w.report(stats)
		}
	}
}

func (w *HeartbeatWorker) logStats(stats RelayStats) {
	w.log.Info("Relay heartbeat",
		"sessions", stats.Sessions,
		"queue_depth", stats.QueueDepth,
		"rss_bytes", stats.RSS,
		"cpu_percent", stats.CPUPercent,
		"status", stats.Status)
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
