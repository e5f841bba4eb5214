package history

import (
	"sync"
	"time"
)

// Exchange is one question and the pipeline's reply.
type Exchange struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Question    string    `json:"question"`
	SQL         string    `json:"sql,omitempty"`
	Answer      string    `json:"answer"`
	FailureKind string    `json:"failure_kind,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store interface {
	Append(exchange Exchange)
	// Recent returns up to n exchanges, oldest first. n <= 0 returns all.
	Recent(n int) []Exchange
	Len() int
}

// RingStore keeps the newest capacity exchanges. It is safe for concurrent
// use.
type RingStore struct {
	mu       sync.Mutex
	items    []Exchange
	next     int
	full     bool
	capacity int
}

func NewRingStore(capacity int) *RingStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingStore{items: make([]Exchange, capacity), capacity: capacity}
}

func (r *RingStore) Append(exchange Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = exchange
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
}

func (r *RingStore) Recent(n int) []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.lenLocked()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Exchange, 0, n)
	start := r.next - n
	if start < 0 {
		start += r.capacity
	}
	for i := 0; i < n; i++ {
		out = append(out, r.items[(start+i)%r.capacity])
	}
	return out
}

func (r *RingStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

func (r *RingStore) lenLocked() int {
	if r.full {
		return r.capacity
	}
	return r.next
}
