// Package mailbox implements the thread-safe cross-thread wakeup queue of
// spec.md §4.5: any goroutine may enqueue a (connection id, payload)
// record; the poll loop drains it on the owner thread.
//
// The queue itself is github.com/eapache/queue.Queue (the same FIFO the
// teacher uses for its executor task queue in
// internal/concurrency/executor.go), wrapped in a mutex here because the
// teacher's own use of that queue is not otherwise synchronized and this
// mailbox is the one component spec.md requires to be genuinely
// multi-producer safe.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package mailbox

import (
	"sync"

	"github.com/eapache/queue"
)

// Record is one pending wakeup: the target connection id and its payload.
type Record struct {
	ConnID uint64
	Data   []byte
}

// Mailbox is a single-producer-friendly, multi-producer-safe queue paired
// with a signal channel. The mailbox itself owns no OS descriptor; the
// Manager relays each signal to its own self-pipe, whose read end the
// poller watches.
type Mailbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	signal chan struct{}
}

// New constructs an empty, enabled mailbox.
func New() *Mailbox {
	return &Mailbox{
		q:      queue.New(),
		signal: make(chan struct{}, 1),
	}
}

// Post appends a record and returns true. Safe from any goroutine. Never
// blocks: the signal channel has capacity 1 and a pending signal is
// coalesced, matching the self-pipe "write one byte" semantics where
// multiple pending wakeups still only need one readability edge.
func (m *Mailbox) Post(connID uint64, data []byte) bool {
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.q.Add(Record{ConnID: connID, Data: cp})
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// Signal returns the channel that receives one coalesced value whenever
// records are pending; a reader of it learns of mailbox readiness.
func (m *Mailbox) Signal() <-chan struct{} { return m.signal }

// Drain removes and returns every currently queued record, in submission
// order. Called once per poll tick by the owner thread.
func (m *Mailbox) Drain() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.q.Length()
	if n == 0 {
		return nil
	}
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, m.q.Peek().(Record))
		m.q.Remove()
	}
	return out
}
