package net

import "sync"

// eventQueue delivers the events of a connection in order, on a channel,
// without ever blocking the producer. It stops, and closes the channel, after
// delivering EventClose.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	notify chan struct{}
	out    chan Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
	}
	go q.run()
	return q
}

// push enqueues an event. Events pushed after EventClose are dropped. It
// reports whether the event was accepted.
func (q *eventQueue) push(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	if ev.Kind == EventClose {
		q.closed = true
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *eventQueue) run() {
	defer close(q.out)

	for range q.notify {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		q.mu.Unlock()

		for _, ev := range batch {
			q.out <- ev
			if ev.Kind == EventClose {
				return
			}
		}
	}
}

func (q *eventQueue) events() <-chan Event {
	return q.out
}
