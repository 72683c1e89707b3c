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

// CustomerSnapshot is the observable state of the guest widget.
type CustomerSnapshot struct {
	SessionID    string           `json:"session_id"`
	Messages     []domain.Message `json:"messages"`
	Loading      bool             `json:"loading"`
	Connecting   bool             `json:"connecting"`
	Draft        string           `json:"draft"`
	ShowFeedback bool             `json:"show_feedback"`
	Feedback     string           `json:"feedback"`
	Connection   string           `json:"connection"`
}

// CustomerChat composes the guest's single conversation, its composer and
// the idle feedback prompt.
type CustomerChat struct {
	loop    *loop
	backend CustomerBackend
	conn    Connector
	store   SessionStore
	opts    Options
	log     *logrus.Entry

	active     *ActiveConversation
	composer   *Composer
	feedback   *FeedbackTimer
	sessionID  string
	loading    bool
	connecting bool

	observers observers[CustomerSnapshot]
}

func NewCustomerChat(backend CustomerBackend, conn Connector, store SessionStore, opts Options) *CustomerChat {
	opts = opts.withDefaults()
	c := &CustomerChat{
		loop:    newLoop(opts.QueueSize),
		backend: backend,
		conn:    conn,
		store:   store,
		opts:    opts,
		log:     logger.Get("customer").WithField("role", domain.RoleCustomer),
	}
	c.active = NewActiveConversation(backend, c.loop.post, c.changed, opts.EchoWindow)
	c.composer = NewComposer(domain.RoleCustomer, conn, opts.Clock.Now)
	c.feedback = NewFeedbackTimer(opts.Clock, opts.FeedbackDelay, func(fn func()) { c.loop.post(fn) }, c.prompted)
	return c
}

// Start resumes the stored session or creates a new one, loads its history,
// opens the customer channel and checks whether the session was rated.
func (c *CustomerChat) Start(ctx context.Context) error {
	c.loop.call(func() {
		c.loading = true
		c.connecting = true
		c.changed()
	})
	defer c.loop.post(func() {
		c.loading = false
		c.connecting = false
		c.changed()
	})

	id, created, err := c.resolveSession(ctx)
	if err != nil {
		return err
	}
	log := c.log.WithField("session_id", id)

	history, err := c.backend.History(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to load history")
		history = nil
	}
	if created {
		welcome := domain.Message{
			ID:         uuid.NewString(),
			SessionID:  id,
			SenderType: domain.SenderBot,
			Content:    c.opts.Welcome,
			CreatedAt:  c.opts.Clock.Now(),
		}
		history = append([]domain.Message{welcome}, history...)
	}

	c.loop.call(func() {
		c.sessionID = id
		c.active.Open(id, history)
		c.feedback.Observe(history)
	})

	if _, err := c.conn.Connect(ctx, domain.RoleCustomer, c.HandleFrame); err != nil {
		return fmt.Errorf("connect customer channel: %w", err)
	}

	go c.checkRating(ctx, id)
	return nil
}

func (c *CustomerChat) resolveSession(ctx context.Context) (string, bool, error) {
	stored, err := c.store.SessionID(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to read stored session id")
		stored = ""
	}

	if stored != "" {
		confirmed, err := c.backend.CheckSession(ctx, stored)
		if err == nil && confirmed != "" {
			if confirmed != stored {
				if err := c.store.SetSessionID(ctx, confirmed); err != nil {
					return "", false, fmt.Errorf("store session id: %w", err)
				}
			}
			c.log.WithField("session_id", confirmed).Info("Resumed chat session")
			return confirmed, false, nil
		}
		c.log.WithError(err).WithField("session_id", stored).Warn("Stored session is no longer valid")
		if err := c.store.ClearSessionID(ctx); err != nil {
			c.log.WithError(err).Warn("Failed to clear stored session id")
		}
	}

	id, err := c.backend.CreateSession(ctx)
	if err != nil {
		return "", false, fmt.Errorf("create session: %w", err)
	}
	if err := c.store.SetSessionID(ctx, id); err != nil {
		return "", false, fmt.Errorf("store session id: %w", err)
	}
	c.log.WithField("session_id", id).Info("Created chat session")
	return id, true, nil
}

func (c *CustomerChat) checkRating(ctx context.Context, id string) {
	rated, err := c.backend.CheckRating(ctx, id)
	if err != nil {
		c.log.WithError(err).WithField("session_id", id).Warn("Failed to check rating")
		return
	}
	if !rated {
		return
	}
	c.loop.post(func() {
		if c.sessionID != id {
			return
		}
		c.feedback.MarkRated()
		c.changed()
	})
}

// HandleFrame appends an inbound frame to the guest's timeline. It may be
// called from any goroutine.
func (c *CustomerChat) HandleFrame(data []byte) {
	ev, err := domain.DecodeEvent(data)
	if err != nil {
		c.log.WithError(err).Warn("Dropping unrecognised frame")
		return
	}
	c.loop.post(func() {
		msg := ev.Message()
		if msg.SessionID == "" {
			msg.SessionID = c.sessionID
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = c.opts.Clock.Now()
		}
		if !c.active.AppendLive(msg) {
			return
		}
		c.feedback.Observe(c.active.Messages())
		c.changed()
	})
}

func (c *CustomerChat) SetDraft(text string) {
	c.loop.call(func() {
		c.composer.SetDraft(text)
		c.changed()
	})
}

// Submit sends the draft. The message appears once the server echoes it.
func (c *CustomerChat) Submit() bool {
	var ok bool
	c.loop.call(func() {
		ready := !c.connecting && c.conn.State(domain.RoleCustomer) != transport.StateConnecting
		var msg domain.Message
		msg, ok = c.composer.Submit(c.sessionID, ready, nil)
		if !ok {
			return
		}
		c.feedback.Cancel()
		c.emit(domain.ConsoleMessageSent, map[string]interface{}{"message_id": msg.ID})
		c.changed()
	})
	return ok
}

func (c *CustomerChat) HandleKey(ev KeyEvent) bool {
	submit, prevent := HandleKey(ev)
	if submit {
		c.Submit()
	}
	return prevent
}

// SubmitRating records the guest's rating and closes the prompt for good.
func (c *CustomerChat) SubmitRating(ctx context.Context, rate int, comment string) error {
	var id string
	c.loop.call(func() { id = c.sessionID })
	if id == "" {
		return ErrNoSession
	}
	if err := c.backend.SubmitRating(ctx, id, domain.RatingRequest{Rate: rate, Comment: comment}); err != nil {
		c.log.WithError(err).WithField("session_id", id).Error("Failed to submit rating")
		return err
	}
	c.loop.call(func() {
		c.feedback.MarkRated()
		c.emit(domain.ConsoleRatingSubmitted, map[string]interface{}{"rate": rate})
		c.changed()
	})
	return nil
}

// DismissFeedback closes the prompt without rating.
func (c *CustomerChat) DismissFeedback() {
	c.loop.call(func() {
		c.feedback.Dismiss()
		c.changed()
	})
}

func (c *CustomerChat) Snapshot() CustomerSnapshot {
	var snap CustomerSnapshot
	c.loop.call(func() { snap = c.snapshot() })
	return snap
}

// Subscribe registers fn for every state change. fn runs on the widget loop
// and must not block or call back into the widget.
func (c *CustomerChat) Subscribe(fn func(CustomerSnapshot)) func() {
	return c.observers.add(fn)
}

func (c *CustomerChat) Stop() {
	c.conn.Disconnect(domain.RoleCustomer)
	c.loop.call(func() {
		c.feedback.Stop()
		c.active.Close()
	})
	c.loop.stop()
}

func (c *CustomerChat) prompted() {
	c.emit(domain.ConsoleFeedbackPrompt, nil)
	c.changed()
}

func (c *CustomerChat) snapshot() CustomerSnapshot {
	return CustomerSnapshot{
		SessionID:    c.sessionID,
		Messages:     c.active.Messages(),
		Loading:      c.loading,
		Connecting:   c.connecting,
		Draft:        c.composer.Draft(),
		ShowFeedback: c.feedback.PromptVisible(),
		Feedback:     c.feedback.State().String(),
		Connection:   c.conn.State(domain.RoleCustomer).String(),
	}
}

func (c *CustomerChat) changed() {
	c.observers.emit(c.snapshot())
}

func (c *CustomerChat) emit(kind string, detail map[string]interface{}) {
	publish(c.opts.Sink, c.log, domain.ConsoleEvent{
		Type:      kind,
		Role:      domain.RoleCustomer,
		SessionID: c.sessionID,
		Detail:    detail,
		At:        c.opts.Clock.Now(),
	})
}
