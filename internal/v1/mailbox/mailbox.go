// Package mailbox provides the unbounded FIFO queues that connect the
// actors in this server. Sends never block the producer; the consumer
// drains through a channel so it can be combined with other sources in
// a select.
package mailbox

import "sync"

// Mailbox is an unbounded single-consumer queue. Push is safe for
// concurrent producers. After Close, Push reports false and the output
// channel is closed once the buffered backlog has been drained. The
// consumer must keep receiving from Out until it is closed, otherwise
// the pump goroutine cannot exit; callers that want to discard the
// backlog drain it with an empty range loop.
type Mailbox[T any] struct {
	mu     sync.Mutex
	closed bool

	in  chan T
	out chan T
}

// New creates a Mailbox and starts its pump goroutine. The goroutine
// exits when Close is called and the backlog has been delivered or
// abandoned by the consumer.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go m.pump()
	return m
}

func (m *Mailbox[T]) pump() {
	var backlog []T
	for {
		if len(backlog) == 0 {
			v, ok := <-m.in
			if !ok {
				close(m.out)
				return
			}
			backlog = append(backlog, v)
			continue
		}

		select {
		case v, ok := <-m.in:
			if !ok {
				// Flush what we can; the consumer may already be gone,
				// in which case the backlog is dropped with the queue.
				for _, pending := range backlog {
					m.out <- pending
				}
				close(m.out)
				return
			}
			backlog = append(backlog, v)
		case m.out <- backlog[0]:
			backlog = backlog[1:]
		}
	}
}

// Push enqueues v. It reports false if the mailbox has been closed, in
// which case v is discarded. It never blocks beyond the pump handoff.
func (m *Mailbox[T]) Push(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.in <- v
	return true
}

// Out returns the consumer side of the queue. It is closed after Close
// once the backlog has drained.
func (m *Mailbox[T]) Out() <-chan T {
	return m.out
}

// Close stops the mailbox. Idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.in)
}
