package delivery

import (
	"context"

	"livechat-console/internal/chat"
	"livechat-console/internal/domain"
)

// AdminService is the agent console as seen by the gateway.
// *chat.AdminConsole implements it.
type AdminService interface {
	Snapshot() chat.AdminSnapshot
	Session(id string) (domain.Session, bool)
	Select(id string) bool
	SetSearch(term string)
	SetDraft(text string)
	Submit() (domain.Message, bool)
	HandleKey(ev chat.KeyEvent) bool
	UpdateStatus(ctx context.Context, id, status, blockedUntil string) (domain.SessionUpdateResult, error)
}

// CustomerService is the guest widget as seen by the gateway.
// *chat.CustomerChat implements it.
type CustomerService interface {
	Snapshot() chat.CustomerSnapshot
	SetDraft(text string)
	Submit() bool
	HandleKey(ev chat.KeyEvent) bool
	SubmitRating(ctx context.Context, rate int, comment string) error
	DismissFeedback()
}

type draftRequest struct {
	Text string `json:"text"`
}

type searchRequest struct {
	Term string `json:"term"`
}

type statusRequest struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type ratingRequest struct {
	Rate    int    `json:"rate"`
	Comment string `json:"comment"`
}
