package history

import (
	"container/list"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	ID    string
	store Store
}

// Record stamps the exchange with an id, the session id and a creation time
// when missing, then appends it.
func (s *Session) Record(exchange Exchange) Exchange {
	if exchange.ID == "" {
		exchange.ID = uuid.NewString()
	}
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = time.Now().UTC()
	}
	exchange.SessionID = s.ID
	s.store.Append(exchange)
	return exchange
}

func (s *Session) Exchanges(limit int) []Exchange {
	return s.store.Recent(limit)
}

func (s *Session) Len() int {
	return s.store.Len()
}

type RegistryConfig struct {
	// Capacity bounds the exchanges kept per session.
	Capacity int
	// MaxSessions bounds live sessions; the least recently used is evicted.
	MaxSessions int
	// OnChange receives the total number of retained exchanges.
	OnChange func(total int)
}

// Registry owns chat sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	cfg      RegistryConfig
	sessions map[string]*list.Element
	order    *list.List
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 50
	}
	return &Registry{
		cfg:      cfg,
		sessions: map[string]*list.Element{},
		order:    list.New(),
	}
}

// Open returns the session for id, or a new session when id is empty.
// A non-empty unknown id yields ErrSessionNotFound.
func (r *Registry) Open(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		return r.Get(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	session := &Session{ID: uuid.NewString(), store: NewRingStore(r.cfg.Capacity)}
	r.sessions[session.ID] = r.order.PushFront(session)
	if r.cfg.MaxSessions > 0 {
		for r.order.Len() > r.cfg.MaxSessions {
			oldest := r.order.Back()
			r.order.Remove(oldest)
			delete(r.sessions, oldest.Value.(*Session).ID)
		}
	}
	return session, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	element, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	r.order.MoveToFront(element)
	return element.Value.(*Session), nil
}

// Record appends to the session and reports the new retained total.
func (r *Registry) Record(session *Session, exchange Exchange) Exchange {
	recorded := session.Record(exchange)
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(r.Total())
	}
	return recorded
}

func (r *Registry) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for element := r.order.Front(); element != nil; element = element.Next() {
		total += element.Value.(*Session).Len()
	}
	return total
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
