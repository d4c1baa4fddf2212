package stream

import "context"

// DefaultQueueDepth bounds the event queue. The producer blocks once the
// consumer falls this far behind.
const DefaultQueueDepth = 256

// Queue is the single-producer/single-consumer FIFO between the model
// invocation task and the poll loop.
type Queue struct {
	ch chan Event
}

// NewQueue creates a queue with the given depth; depth <= 0 uses the
// default.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Queue{ch: make(chan Event, depth)}
}

// Publish enqueues an event, blocking while the queue is full.
func (q *Queue) Publish(ctx context.Context, e Event) error {
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryRecv dequeues without waiting.
func (q *Queue) TryRecv() (Event, bool) {
	select {
	case e := <-q.ch:
		return e, true
	default:
		return nil, false
	}
}
