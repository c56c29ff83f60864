package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"sync"
	"time"
)

// MessageQueue is an unbounded FIFO shared by every connection handler.
// Push never blocks, so a slow consumer never stalls a connection read.
// There is no backpressure: under sustained overload the queue grows without limit.
type MessageQueue struct {
	mu      sync.Mutex
	entries []domain.QueueEntry
	notify  chan struct{} // signaled, never closed, when entries goes from empty to non-empty
	done    chan struct{}
	once    sync.Once
	seq     uint64
	now     func() time.Time
}

var _ contract.IMessageQueue = (*MessageQueue)(nil)

func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Push appends the raw frame and returns the entry with its arrival number.
// Entries pushed after Close are dropped.
func (q *MessageQueue) Push(sender, raw string) domain.QueueEntry {
	q.mu.Lock()
	q.seq++
	entry := domain.QueueEntry{Seq: q.seq, Sender: sender, Raw: raw, At: q.now()}
	select {
	case <-q.done:
		q.mu.Unlock()
		return entry
	default:
	}
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return entry
}

// Pop removes the oldest entry, waiting while the queue is empty.
// It returns ErrQueueClosed once the queue is closed, and ctx.Err() when ctx is done.
func (q *MessageQueue) Pop(ctx context.Context) (domain.QueueEntry, error) {
	for {
		q.mu.Lock()
		select {
		case <-q.done:
			q.mu.Unlock()
			return domain.QueueEntry{}, errors.ErrQueueClosed
		default:
		}
		if len(q.entries) > 0 {
			entry := q.entries[0]
			q.entries[0] = domain.QueueEntry{}
			q.entries = q.entries[1:]
			q.mu.Unlock()
			return entry, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.QueueEntry{}, ctx.Err()
		case <-q.done:
			return domain.QueueEntry{}, errors.ErrQueueClosed
		case <-q.notify:
		}
	}
}

func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close wakes up a blocked Pop. Pending entries are discarded.
func (q *MessageQueue) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}
