package chat

import (
	"context"
	"errors"
	"sync"

	"livechat-console/internal/domain"
	"livechat-console/internal/transport"
)

// ErrNoSession is returned by customer actions before a session is resolved.
var ErrNoSession = errors.New("no chat session")

// Connector is the per-role live channel. *transport.Manager implements it.
type Connector interface {
	Connect(ctx context.Context, role domain.Role, onEvent func([]byte)) (*transport.Handle, error)
	Send(role domain.Role, frame domain.Frame) error
	Disconnect(role domain.Role)
	State(role domain.Role) transport.State
}

type HistoryFetcher interface {
	History(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// AdminBackend is the REST surface used by the agent console.
type AdminBackend interface {
	HistoryFetcher
	AdminHistory(ctx context.Context) ([]domain.Session, error)
	UpdateSession(ctx context.Context, sessionID string, update domain.SessionUpdate) (domain.SessionUpdateResult, error)
}

// CustomerBackend is the REST surface used by the guest widget.
type CustomerBackend interface {
	HistoryFetcher
	CreateSession(ctx context.Context) (string, error)
	CheckSession(ctx context.Context, sessionID string) (string, error)
	SubmitRating(ctx context.Context, sessionID string, rating domain.RatingRequest) error
	CheckRating(ctx context.Context, sessionID string) (bool, error)
}

// SessionStore persists the guest's session id between runs.
type SessionStore interface {
	SessionID(ctx context.Context) (string, error)
	SetSessionID(ctx context.Context, id string) error
	ClearSessionID(ctx context.Context) error
}

// EventSink receives console activity records. Publish may block; callers
// run it off the loop.
type EventSink interface {
	Publish(ctx context.Context, event domain.ConsoleEvent) error
}

// MemoryStore is a process-local SessionStore.
type MemoryStore struct {
	mu sync.Mutex
	id string
}

func NewMemoryStore(id string) *MemoryStore {
	return &MemoryStore{id: id}
}

func (s *MemoryStore) SessionID(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

func (s *MemoryStore) SetSessionID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}

func (s *MemoryStore) ClearSessionID(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	return nil
}

// observers fans snapshots out to subscribers. emit runs on the loop, so
// subscribers must not block or call back into the console synchronously.
type observers[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (o *observers[T]) add(fn func(T)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(T))
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.fns, id)
	}
}

func (o *observers[T]) emit(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
