// Package transport owns the live websocket channel of each console role.
//
// A Manager holds at most one Handle per role. Connect is fire-and-forget:
// the dial and the read loop run in a goroutine and every inbound frame that
// is valid JSON is handed to the registered callback. Send never queues and
// never reconnects; a closed or still-connecting channel drops the frame.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"livechat-console/internal/domain"
	"livechat-console/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotConnected is returned by Send when the role has no open channel.
	ErrNotConnected = errors.New("channel not open")
	// ErrNoSession is returned by Connect when the customer has no persisted
	// session id to scope the channel with.
	ErrNoSession = errors.New("no persisted session id")
)

// SessionIDSource supplies the persisted customer session id.
type SessionIDSource interface {
	SessionID(ctx context.Context) (string, error)
}

type Config struct {
	// BaseURL is the backend websocket root, e.g. ws://localhost:8000.
	BaseURL          string
	HandshakeTimeout time.Duration
	Header           http.Header
	// OnOpen and OnClose are invoked from the channel goroutine.
	OnOpen  func(role domain.Role)
	OnClose func(role domain.Role)
}

type Manager struct {
	cfg      Config
	dialer   *websocket.Dialer
	sessions SessionIDSource
	log      *logrus.Entry

	mu      sync.Mutex
	handles map[domain.Role]*Handle
}

func NewManager(cfg Config, sessions SessionIDSource) *Manager {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		sessions: sessions,
		log:      logger.Get("transport"),
		handles:  make(map[domain.Role]*Handle),
	}
}

// Connect opens the channel for role. If one already exists it is returned
// unchanged. ctx bounds only the session id lookup; the dial runs in the
// background.
func (m *Manager) Connect(ctx context.Context, role domain.Role, onEvent func([]byte)) (*Handle, error) {
	if h := m.handle(role); h != nil {
		m.log.WithField("role", role).Info("channel already connected")
		return h, nil
	}

	endpoint, err := m.endpoint(ctx, role)
	if err != nil {
		m.log.WithField("role", role).WithError(err).Error("cannot build channel endpoint")
		return nil, err
	}

	m.mu.Lock()
	if h, ok := m.handles[role]; ok {
		m.mu.Unlock()
		m.log.WithField("role", role).Info("channel already connected")
		return h, nil
	}
	h := newHandle(role, endpoint)
	m.handles[role] = h
	m.mu.Unlock()

	go m.run(h, onEvent)
	return h, nil
}

// Send transmits frame on the role's channel if it is open.
func (m *Manager) Send(role domain.Role, frame domain.Frame) error {
	h := m.handle(role)
	if h == nil || h.State() != StateOpen {
		m.log.WithFields(logrus.Fields{
			"role":       role,
			"session_id": frame.SessionID.String(),
		}).Error("channel not ready, message dropped")
		return ErrNotConnected
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := h.write(data); err != nil {
		m.log.WithField("role", role).WithError(err).Error("failed to send frame")
		return err
	}
	m.log.WithFields(logrus.Fields{
		"role":       role,
		"session_id": frame.SessionID.String(),
	}).Debug("frame sent")
	return nil
}

// Disconnect closes the role's channel, if any, and forgets it so a later
// Connect dials again.
func (m *Manager) Disconnect(role domain.Role) {
	m.mu.Lock()
	h, ok := m.handles[role]
	delete(m.handles, role)
	m.mu.Unlock()

	if ok {
		h.close()
		m.log.WithField("role", role).Info("channel disconnected")
	}
}

// State reports the channel state for role.
func (m *Manager) State(role domain.Role) State {
	if h := m.handle(role); h != nil {
		return h.State()
	}
	return StateClosed
}

func (m *Manager) handle(role domain.Role) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[role]
}

// release drops h if it is still the stored handle for its role.
func (m *Manager) release(h *Handle) {
	m.mu.Lock()
	if m.handles[h.role] == h {
		delete(m.handles, h.role)
	}
	m.mu.Unlock()
}

func (m *Manager) run(h *Handle, onEvent func([]byte)) {
	log := m.log.WithField("role", h.role)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic in channel loop: %v", r)
			h.close()
			m.release(h)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	conn, _, err := m.dialer.DialContext(ctx, h.url, m.cfg.Header)
	cancel()
	if err != nil {
		log.WithError(err).Error("channel dial failed")
		m.finish(h)
		return
	}
	if !h.attach(conn) {
		// Disconnected while dialing.
		conn.Close()
		m.release(h)
		return
	}

	log.Info("channel connected")
	if m.cfg.OnOpen != nil {
		m.cfg.OnOpen(h.role)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !h.isClosed() {
				log.WithError(err).Warn("channel read ended")
			}
			break
		}
		if !json.Valid(data) {
			log.WithField("frame", string(data)).Error("malformed frame dropped")
			continue
		}
		if onEvent != nil {
			deliver(log, onEvent, data)
		}
	}

	log.Info("channel closed")
	m.finish(h)
}

func (m *Manager) finish(h *Handle) {
	h.close()
	m.release(h)
	if m.cfg.OnClose != nil {
		m.cfg.OnClose(h.role)
	}
}

func deliver(log *logrus.Entry, onEvent func([]byte), data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic in event callback: %v", r)
		}
	}()
	onEvent(data)
}

func (m *Manager) endpoint(ctx context.Context, role domain.Role) (string, error) {
	base, err := url.Parse(m.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch strings.ToLower(base.Scheme) {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	}

	switch role {
	case domain.RoleAdmin:
		base.Path = path.Join("/", base.Path, "chat/ws/admin")
	case domain.RoleCustomer:
		if m.sessions == nil {
			return "", ErrNoSession
		}
		id, err := m.sessions.SessionID(ctx)
		if err != nil {
			return "", fmt.Errorf("read session id: %w", err)
		}
		if id == "" {
			return "", ErrNoSession
		}
		base.Path = path.Join("/", base.Path, "chat/ws/customer")
		q := base.Query()
		q.Set("sessionId", id)
		base.RawQuery = q.Encode()
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
	return base.String(), nil
}
