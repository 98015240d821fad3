package execution

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// queue is an unbounded FIFO of job ids. Pushing never blocks, so it is safe
// while holding the graph lock; consumers wait on a one-slot notify channel.
type queue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(id string) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) tryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return id, true
}

// pop waits up to timeout for an id.
func (q *queue) pop(ctx context.Context, clock clockwork.Clock, timeout time.Duration) (string, bool) {
	if id, ok := q.tryPop(); ok {
		return id, true
	}
	timer := clock.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.notify:
			if id, ok := q.tryPop(); ok {
				return id, true
			}
		case <-timer.Chan():
			return q.tryPop()
		case <-ctx.Done():
			return "", false
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
