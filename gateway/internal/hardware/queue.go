package hardware

import (
	"context"
	"sync"
	"time"
)

// commandQueue is an unbounded FIFO with many producers and one consumer.
// Once closed, push refuses new items so nothing is queued after the
// consumer has gone.
type commandQueue struct {
	mu     sync.Mutex
	items  [][]byte
	closed bool
	wake   chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{wake: make(chan struct{}, 1)}
}

// push appends item. It returns false if the queue is closed.
func (q *commandQueue) push(item []byte) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// pop returns the head of the queue, waiting up to wait for one to arrive.
func (q *commandQueue) pop(ctx context.Context, wait time.Duration) ([]byte, bool) {
	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		if timeout == nil {
			return nil, false
		}
		select {
		case <-q.wake:
		case <-timeout:
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}

// close stops further pushes and hands back the items still queued.
func (q *commandQueue) close() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
