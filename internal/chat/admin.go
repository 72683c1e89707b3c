package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"livechat-console/internal/domain"
	"livechat-console/internal/logger"
	"livechat-console/internal/transport"
)

// AdminSnapshot is the observable state of the agent console.
type AdminSnapshot struct {
	Sessions        []domain.Session `json:"sessions"`
	Search          string           `json:"search"`
	LoadingSessions bool             `json:"loading_sessions"`
	ActiveSessionID string           `json:"active_session_id"`
	ActiveSession   *domain.Session  `json:"active_session,omitempty"`
	Messages        []domain.Message `json:"messages"`
	LoadingMessages bool             `json:"loading_messages"`
	Draft           string           `json:"draft"`
	Connection      string           `json:"connection"`
}

// AdminConsole composes the session list, the open conversation and the
// composer for an agent.
type AdminConsole struct {
	loop    *loop
	backend AdminBackend
	conn    Connector
	opts    Options
	log     *logrus.Entry

	sessions        *Reconciler
	active          *ActiveConversation
	composer        *Composer
	search          string
	loadingSessions bool

	observers observers[AdminSnapshot]
}

func NewAdminConsole(backend AdminBackend, conn Connector, opts Options) *AdminConsole {
	opts = opts.withDefaults()
	a := &AdminConsole{
		loop:    newLoop(opts.QueueSize),
		backend: backend,
		conn:    conn,
		opts:    opts,
		log:     logger.Get("admin").WithField("role", domain.RoleAdmin),
	}
	a.sessions = NewReconciler(opts.Clock.Now)
	a.active = NewActiveConversation(backend, a.loop.post, a.changed, opts.EchoWindow)
	a.composer = NewComposer(domain.RoleAdmin, conn, opts.Clock.Now)
	return a
}

// Start loads the session list in the background and opens the admin
// channel.
func (a *AdminConsole) Start(ctx context.Context) error {
	a.loop.call(func() {
		a.loadingSessions = true
		a.changed()
	})

	go func() {
		sessions, err := a.backend.AdminHistory(ctx)
		a.loop.post(func() {
			a.loadingSessions = false
			if err != nil {
				a.log.WithError(err).Error("Failed to load sessions")
				a.changed()
				return
			}
			a.sessions.Load(sessions)
			a.log.WithField("count", len(sessions)).Info("Sessions loaded")
			a.changed()
		})
	}()

	if _, err := a.conn.Connect(ctx, domain.RoleAdmin, a.HandleFrame); err != nil {
		return fmt.Errorf("connect admin channel: %w", err)
	}
	return nil
}

// HandleFrame routes a raw channel frame. It may be called from any
// goroutine.
func (a *AdminConsole) HandleFrame(data []byte) {
	ev, err := domain.DecodeEvent(data)
	if err != nil {
		a.log.WithError(err).Warn("Dropping unrecognised frame")
		return
	}
	a.loop.post(func() { a.apply(ev) })
}

func (a *AdminConsole) apply(ev domain.Event) {
	a.sessions.Merge(ev)
	if ev.SessionID != "" && ev.SessionID == a.active.ActiveID() {
		msg := ev.Message()
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = a.opts.Clock.Now()
		}
		a.active.AppendLive(msg)
	}
	a.changed()
}

// Select opens a session. Selecting the open session is a no-op and
// reports false.
func (a *AdminConsole) Select(id string) bool {
	var changed bool
	a.loop.call(func() {
		changed = a.active.Select(id)
		if changed {
			a.emit(domain.ConsoleSessionSelected, id, nil)
		}
	})
	return changed
}

func (a *AdminConsole) SetDraft(text string) {
	a.loop.call(func() {
		a.composer.SetDraft(text)
		a.changed()
	})
}

// Submit sends the draft to the open session, appending it to the timeline
// and promoting the session before the server confirms it.
func (a *AdminConsole) Submit() (domain.Message, bool) {
	var (
		msg domain.Message
		ok  bool
	)
	a.loop.call(func() {
		ready := a.conn.State(domain.RoleAdmin) != transport.StateConnecting
		msg, ok = a.composer.Submit(a.active.ActiveID(), ready, a.active.AppendLocal)
		if !ok {
			return
		}
		a.sessions.Promote(msg.SessionID, msg.Content, msg.CreatedAt)
		a.emit(domain.ConsoleMessageSent, msg.SessionID, map[string]interface{}{"message_id": msg.ID})
		a.changed()
	})
	return msg, ok
}

// HandleKey submits on bare Enter and reports whether the default action
// must be prevented.
func (a *AdminConsole) HandleKey(ev KeyEvent) bool {
	submit, prevent := HandleKey(ev)
	if submit {
		a.Submit()
	}
	return prevent
}

func (a *AdminConsole) SetSearch(term string) {
	a.loop.call(func() {
		a.search = term
		a.changed()
	})
}

// UpdateStatus patches a session's status on the backend and applies the
// confirmed values locally.
func (a *AdminConsole) UpdateStatus(ctx context.Context, id, status, blockedUntil string) (domain.SessionUpdateResult, error) {
	res, err := a.backend.UpdateSession(ctx, id, domain.SessionUpdate{Status: status, Time: blockedUntil})
	if err != nil {
		a.log.WithError(err).WithField("session_id", id).Error("Failed to update session status")
		return res, err
	}
	if res.ID.Status == "" {
		res.ID.Status = status
	}
	a.loop.call(func() {
		a.sessions.ApplyStatus(id, res.ID.Status, res.ID.Time)
		a.emit(domain.ConsoleStatusUpdated, id, map[string]interface{}{"status": res.ID.Status, "time": res.ID.Time})
		a.changed()
	})
	return res, nil
}

// Session looks a session up in the full, unfiltered list.
func (a *AdminConsole) Session(id string) (domain.Session, bool) {
	var (
		s  domain.Session
		ok bool
	)
	a.loop.call(func() { s, ok = a.sessions.Find(id) })
	return s, ok
}

func (a *AdminConsole) Snapshot() AdminSnapshot {
	var snap AdminSnapshot
	a.loop.call(func() { snap = a.snapshot() })
	return snap
}

// Subscribe registers fn for every state change. fn runs on the console
// loop and must not block or call back into the console.
func (a *AdminConsole) Subscribe(fn func(AdminSnapshot)) func() {
	return a.observers.add(fn)
}

func (a *AdminConsole) Stop() {
	a.conn.Disconnect(domain.RoleAdmin)
	a.loop.call(a.active.Close)
	a.loop.stop()
}

func (a *AdminConsole) snapshot() AdminSnapshot {
	snap := AdminSnapshot{
		Sessions:        a.sessions.Filter(a.search),
		Search:          a.search,
		LoadingSessions: a.loadingSessions,
		ActiveSessionID: a.active.ActiveID(),
		Messages:        a.active.Messages(),
		LoadingMessages: a.active.Loading(),
		Draft:           a.composer.Draft(),
		Connection:      a.conn.State(domain.RoleAdmin).String(),
	}
	if s, ok := a.sessions.Find(snap.ActiveSessionID); ok {
		snap.ActiveSession = &s
	}
	return snap
}

func (a *AdminConsole) changed() {
	a.observers.emit(a.snapshot())
}

func (a *AdminConsole) emit(kind, sessionID string, detail map[string]interface{}) {
	publish(a.opts.Sink, a.log, domain.ConsoleEvent{
		Type:      kind,
		Role:      domain.RoleAdmin,
		SessionID: sessionID,
		Detail:    detail,
		At:        a.opts.Clock.Now(),
	})
}
