package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"livechat-console/internal/domain"

	"github.com/gorilla/websocket"
)

type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Handle is one live channel. It is created in StateConnecting and ends in
// StateClosed; a closed handle is never reopened.
type Handle struct {
	role  domain.Role
	url   string
	state atomic.Int32

	// writeMu serialises writes and guards conn.
	writeMu   sync.Mutex
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newHandle(role domain.Role, url string) *Handle {
	h := &Handle{role: role, url: url, done: make(chan struct{})}
	h.state.Store(int32(StateConnecting))
	return h
}

func (h *Handle) Role() domain.Role { return h.role }

func (h *Handle) URL() string { return h.url }

func (h *Handle) State() State { return State(h.state.Load()) }

// Done is closed once the handle is closed.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) attach(conn *websocket.Conn) bool {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if !h.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return false
	}
	h.conn = conn
	return true
}

func (h *Handle) write(data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.conn == nil || h.isClosed() {
		return ErrNotConnected
	}
	return h.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handle) isClosed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) close() {
	h.closeOnce.Do(func() {
		h.state.Store(int32(StateClosed))
		close(h.done)

		h.writeMu.Lock()
		defer h.writeMu.Unlock()
		if h.conn != nil {
			_ = h.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = h.conn.Close()
		}
	})
}
