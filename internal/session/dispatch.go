package session

import (
	"sync"

	"liveassist/internal/domain"
)

// Listener observes session events. It runs on whichever goroutine is draining the event
// queue and may call back into the Manager.
type Listener func(domain.Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// dispatcher delivers events one at a time, in the order they were enqueued.
//
// enqueue is called with the Manager lock held so queue order matches transition order;
// flush is called after that lock is released. Whichever goroutine finds the queue idle
// drains it, so reentrant publishes from a listener are appended rather than delivered
// recursively.
type dispatcher struct {
	mu        sync.Mutex
	queue     []domain.Event
	listeners []listenerEntry
	nextID    uint64
	draining  bool
	closed    bool
}

func (d *dispatcher) subscribe(fn Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return func() {}
	}
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, entry := range d.listeners {
			if entry.id == id {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

func (d *dispatcher) enqueue(event domain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, event)
}

func (d *dispatcher) flush() {
	d.mu.Lock()
	if d.draining || d.closed || len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	d.draining = true
	d.mu.Unlock()

	for {
		d.mu.Lock()
		if d.closed || len(d.queue) == 0 {
			d.draining = false
			d.mu.Unlock()
			return
		}
		event := d.queue[0]
		d.queue[0] = domain.Event{}
		d.queue = d.queue[1:]
		listeners := append([]listenerEntry(nil), d.listeners...)
		d.mu.Unlock()

		for _, entry := range listeners {
			if d.isClosed() {
				break
			}
			entry.fn(event)
		}
	}
}

func (d *dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// close drops undelivered events and stops delivery. A listener that is already running
// finishes its current call.
func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.queue = nil
	d.listeners = nil
}
