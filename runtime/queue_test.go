package runtime

import (
	"chat-relay/errors"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageQueue_FIFO_Single_Producer(t *testing.T) {
	req := require.New(t)
	queue := NewMessageQueue()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		queue.Push("Ana", fmt.Sprintf("MSG_ALL:%d", i))
	}
	req.Equal(10, queue.Len())

	for i := 0; i < 10; i++ {
		entry, err := queue.Pop(ctx)
		req.NoError(err)
		req.Equal(uint64(i+1), entry.Seq)
		req.Equal(fmt.Sprintf("MSG_ALL:%d", i), entry.Raw)
		req.Equal("Ana", entry.Sender)
	}
	req.Zero(queue.Len())
}

func TestMessageQueue_Total_Order_Across_Producers(t *testing.T) {
	req := require.New(t)
	queue := NewMessageQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	producers, perProducer := 8, 500
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				queue.Push(fmt.Sprintf("user-%d", p), fmt.Sprintf("MSG_ALL:%d", i))
			}
		}(p)
	}

	// Then entries come out by arrival number, each one exactly once,
	// and each producer's own messages keep their order
	lastPerSender := make(map[string]int)
	var lastSeq uint64
	for n := 0; n < producers*perProducer; n++ {
		entry, err := queue.Pop(ctx)
		req.NoError(err)
		req.Equal(lastSeq+1, entry.Seq)
		lastSeq = entry.Seq

		var i int
		_, err = fmt.Sscanf(entry.Raw, "MSG_ALL:%d", &i)
		req.NoError(err)
		if prev, ok := lastPerSender[entry.Sender]; ok {
			req.Equal(prev+1, i)
		}
		lastPerSender[entry.Sender] = i
	}
	wg.Wait()
	req.Zero(queue.Len())
}

func TestMessageQueue_Pop_Waits_For_Push(t *testing.T) {
	req := require.New(t)
	queue := NewMessageQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		queue.Push("Ana", "MSG_ALL:hola")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	entry, err := queue.Pop(ctx)
	req.NoError(err)
	req.Equal("MSG_ALL:hola", entry.Raw)
}

func TestMessageQueue_Pop_Context_Canceled(t *testing.T) {
	req := require.New(t)
	queue := NewMessageQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := queue.Pop(ctx)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestMessageQueue_Close_Wakes_Consumer(t *testing.T) {
	req := require.New(t)
	queue := NewMessageQueue()

	done := make(chan error, 1)
	go func() {
		_, err := queue.Pop(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	queue.Close()
	queue.Close()

	select {
	case err := <-done:
		req.ErrorIs(err, errors.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer still blocked after Close")
	}

	// Pushing on a closed queue is dropped
	queue.Push("Ana", "MSG_ALL:late")
	req.Zero(queue.Len())
}

func TestMessageQueue_Close_Discards_Pending_Entries(t *testing.T) {
	req := require.New(t)
	queue := NewMessageQueue()
	queue.Push("Ana", "MSG_ALL:uno")
	queue.Push("Ana", "MSG_ALL:dos")

	// When the queue is closed with entries still waiting
	queue.Close()

	// Then Pop reports the close right away and later pushes are dropped
	_, err := queue.Pop(t.Context())
	req.ErrorIs(err, errors.ErrQueueClosed)
	queue.Push("Beto", "MSG_ALL:tres")
	_, err = queue.Pop(t.Context())
	req.ErrorIs(err, errors.ErrQueueClosed)
}
