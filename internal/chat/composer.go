package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"livechat-console/internal/domain"
	"livechat-console/internal/logger"
)

// Sender is the outbound half of the transport.
type Sender interface {
	Send(role domain.Role, frame domain.Frame) error
}

// KeyEvent is a key press in the composer input.
type KeyEvent struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift"`
}

// HandleKey reports whether the key submits the draft and whether the
// input's default action must be suppressed.
func HandleKey(ev KeyEvent) (submit, preventDefault bool) {
	if ev.Key == "Enter" && !ev.Shift {
		return true, true
	}
	return false, false
}

// Composer holds the draft for one role and turns it into outbound frames.
type Composer struct {
	role   domain.Role
	sender Sender
	now    func() time.Time
	draft  string
	log    *logrus.Entry
}

func NewComposer(role domain.Role, sender Sender, now func() time.Time) *Composer {
	if now == nil {
		now = time.Now
	}
	return &Composer{
		role:   role,
		sender: sender,
		now:    now,
		log:    logger.Get("composer").WithField("role", role),
	}
}

func (c *Composer) SetDraft(text string) { c.draft = text }

func (c *Composer) Draft() string { return c.draft }

// Submit sends the trimmed draft to sessionID. Blank drafts, a missing
// session and a channel that is not ready are no-ops. beforeSend receives the
// message before it is transmitted. Transport failures are logged and the
// draft is cleared regardless.
func (c *Composer) Submit(sessionID string, ready bool, beforeSend func(domain.Message)) (domain.Message, bool) {
	text := strings.TrimSpace(c.draft)
	if text == "" || sessionID == "" || !ready {
		return domain.Message{}, false
	}

	id := uuid.NewString()
	msg := domain.Message{
		ID:            id,
		SessionID:     sessionID,
		SenderType:    senderFor(c.role),
		Content:       text,
		CreatedAt:     c.now(),
		CorrelationID: id,
	}
	if beforeSend != nil {
		beforeSend(msg)
	}

	frame := domain.Frame{
		SessionID:  domain.FlexID(sessionID),
		SenderType: msg.SenderType,
		Content:    text,
		ClientID:   id,
	}
	if err := c.sender.Send(c.role, frame); err != nil {
		c.log.WithError(err).WithField("session_id", sessionID).Warn("Message not delivered")
	}
	c.draft = ""
	return msg, true
}

func senderFor(role domain.Role) domain.SenderType {
	if role == domain.RoleAdmin {
		return domain.SenderAdmin
	}
	return domain.SenderCustomer
}
