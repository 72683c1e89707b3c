package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"livechat-console/internal/logger"
)

// PushMessage is every frame written to a console viewer.
type PushMessage struct {
	Type    string      `json:"type"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type viewerRequest struct {
	Type string `json:"type"`
}

type viewer struct {
	id       string
	conn     *websocket.Conn
	writeMux sync.Mutex
}

// safeWriteJSON writes JSON to the viewer with mutex protection and panic
// recovery.
func (v *viewer) safeWriteJSON(message interface{}) error {
	v.writeMux.Lock()
	defer v.writeMux.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Get("hub").Errorf("Recovered from panic writing to viewer %s: %v", v.id, r)
		}
	}()

	return v.conn.WriteJSON(message)
}

// Hub pushes console snapshots to every connected viewer. Publish only
// records the latest snapshot; Run delivers it.
type Hub struct {
	mutex   sync.RWMutex
	viewers map[string]*viewer

	latestMu sync.Mutex
	latest   interface{}
	notify   chan struct{}

	log *logrus.Entry
}

func NewHub() *Hub {
	return &Hub{
		viewers: make(map[string]*viewer),
		notify:  make(chan struct{}, 1),
		log:     logger.Get("hub"),
	}
}

// Publish replaces the pending snapshot. It never blocks.
func (h *Hub) Publish(snapshot interface{}) {
	h.latestMu.Lock()
	h.latest = snapshot
	h.latestMu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Hub) current() interface{} {
	h.latestMu.Lock()
	defer h.latestMu.Unlock()
	return h.latest
}

// Run delivers published snapshots until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.notify:
			h.broadcast(PushMessage{Type: "snapshot", Success: true, Data: h.current()})
		}
	}
}

func (h *Hub) addViewer(v *viewer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.viewers[v.id] = v
	h.log.WithField("viewer", v.id).Infof("Viewer connected. Total viewers: %d", len(h.viewers))
}

func (h *Hub) removeViewer(id string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.viewers[id]; !ok {
		return
	}
	delete(h.viewers, id)
	h.log.WithField("viewer", id).Infof("Viewer removed. Remaining viewers: %d", len(h.viewers))
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.viewers)
}

func (h *Hub) broadcast(message interface{}) {
	h.mutex.RLock()
	viewers := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mutex.RUnlock()

	if len(viewers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, v := range viewers {
		wg.Add(1)
		go func(v *viewer) {
			defer wg.Done()
			if err := v.safeWriteJSON(message); err != nil {
				h.log.WithError(err).WithField("viewer", v.id).Warn("Failed to push snapshot")
				h.removeViewer(v.id)
			}
		}(v)
	}
	wg.Wait()
}

// HandleConnection serves one viewer until it disconnects.
func (h *Hub) HandleConnection(c *websocket.Conn) {
	defer c.Close()

	v := &viewer{id: uuid.NewString(), conn: c}
	h.addViewer(v)
	defer h.removeViewer(v.id)

	if snap := h.current(); snap != nil {
		if err := v.safeWriteJSON(PushMessage{Type: "snapshot", Success: true, Data: snap}); err != nil {
			h.log.WithError(err).Warn("Failed to send initial snapshot")
			return
		}
	}

	for {
		var req viewerRequest
		if err := c.ReadJSON(&req); err != nil {
			h.log.WithError(err).WithField("viewer", v.id).Debug("Viewer read ended")
			return
		}

		switch req.Type {
		case "ping":
			_ = v.safeWriteJSON(PushMessage{
				Type:    "pong",
				Success: true,
				Data:    map[string]interface{}{"timestamp": time.Now().Format(time.RFC3339)},
			})
		case "snapshot":
			_ = v.safeWriteJSON(PushMessage{Type: "snapshot", Success: true, Data: h.current()})
		default:
			_ = v.safeWriteJSON(PushMessage{Type: "error", Error: "Unknown message type: " + req.Type})
		}
	}
}
