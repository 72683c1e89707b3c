package chat

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livechat-console/internal/domain"
	"livechat-console/internal/transport"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return &fakeTimerHandle{clock: c, t: t}
}

// Advance moves time forward and runs every due timer in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeTimerHandle struct {
	clock *fakeClock
	t     *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	active := !h.t.stopped && !h.t.fired
	h.t.stopped = true
	return active
}

type fakeConn struct {
	mu       sync.Mutex
	states   map[domain.Role]transport.State
	handlers map[domain.Role]func([]byte)
	connects map[domain.Role]int
	sent     []domain.Frame
	sendErr  error
	connErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		states:   make(map[domain.Role]transport.State),
		handlers: make(map[domain.Role]func([]byte)),
		connects: make(map[domain.Role]int),
	}
}

func (f *fakeConn) Connect(_ context.Context, role domain.Role, onEvent func([]byte)) (*transport.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connErr != nil {
		return nil, f.connErr
	}
	f.connects[role]++
	f.handlers[role] = onEvent
	f.states[role] = transport.StateOpen
	return nil, nil
}

func (f *fakeConn) Send(_ domain.Role, frame domain.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return f.sendErr
}

func (f *fakeConn) Disconnect(role domain.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, role)
	f.states[role] = transport.StateClosed
}

func (f *fakeConn) State(role domain.Role) transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[role]
}

func (f *fakeConn) setState(role domain.Role, s transport.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[role] = s
}

func (f *fakeConn) frames() []domain.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Frame(nil), f.sent...)
}

func (f *fakeConn) connectCount(role domain.Role) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects[role]
}

// push delivers a frame the way the transport read loop would.
func (f *fakeConn) push(t *testing.T, role domain.Role, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f.mu.Lock()
	h := f.handlers[role]
	f.mu.Unlock()
	require.NotNil(t, h, "no handler connected for %s", role)
	h(data)
}

type fakeBackend struct {
	mu           sync.Mutex
	historyCalls map[string]int

	history      func(ctx context.Context, id string) ([]domain.Message, error)
	adminHistory func(ctx context.Context) ([]domain.Session, error)
	update       func(ctx context.Context, id string, u domain.SessionUpdate) (domain.SessionUpdateResult, error)
	create       func(ctx context.Context) (string, error)
	check        func(ctx context.Context, id string) (string, error)
	rate         func(ctx context.Context, id string, r domain.RatingRequest) error
	checkRating  func(ctx context.Context, id string) (bool, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{historyCalls: make(map[string]int)}
}

func (b *fakeBackend) History(ctx context.Context, id string) ([]domain.Message, error) {
	b.mu.Lock()
	b.historyCalls[id]++
	fn := b.history
	b.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, id)
}

func (b *fakeBackend) calls(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.historyCalls[id]
}

func (b *fakeBackend) AdminHistory(ctx context.Context) ([]domain.Session, error) {
	if b.adminHistory == nil {
		return nil, nil
	}
	return b.adminHistory(ctx)
}

func (b *fakeBackend) UpdateSession(ctx context.Context, id string, u domain.SessionUpdate) (domain.SessionUpdateResult, error) {
	if b.update == nil {
		return domain.SessionUpdateResult{}, nil
	}
	return b.update(ctx, id, u)
}

func (b *fakeBackend) CreateSession(ctx context.Context) (string, error) {
	if b.create == nil {
		return "", nil
	}
	return b.create(ctx)
}

func (b *fakeBackend) CheckSession(ctx context.Context, id string) (string, error) {
	if b.check == nil {
		return id, nil
	}
	return b.check(ctx, id)
}

func (b *fakeBackend) SubmitRating(ctx context.Context, id string, r domain.RatingRequest) error {
	if b.rate == nil {
		return nil
	}
	return b.rate(ctx, id, r)
}

func (b *fakeBackend) CheckRating(ctx context.Context, id string) (bool, error) {
	if b.checkRating == nil {
		return false, nil
	}
	return b.checkRating(ctx, id)
}

type fakeSink struct {
	mu     sync.Mutex
	events []domain.ConsoleEvent
}

func (s *fakeSink) Publish(_ context.Context, ev domain.ConsoleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

// countingPost wraps a loop's post and counts scheduled closures.
type countingPost struct {
	l     *loop
	posts atomic.Int32
}

func (p *countingPost) post(fn func()) bool {
	ok := p.l.post(fn)
	p.posts.Add(1)
	return ok
}

func msg(session string, sender domain.SenderType, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:         session + "-" + content,
		SessionID:  session,
		SenderType: sender,
		Content:    content,
		CreatedAt:  at,
	}
}

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond
