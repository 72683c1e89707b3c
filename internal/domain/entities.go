package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Role selects which live channel a client holds.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAdmin    SenderType = "admin"
	SenderBot      SenderType = "bot"
)

// Channel is the external platform a customer writes from.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelFacebook Channel = "facebook"
	ChannelZalo     Channel = "zalo"
	ChannelTelegram Channel = "telegram"
)

type Session struct {
	ID               string     `json:"chat_session_id"`
	CustomerName     string     `json:"customer_name"`
	LastMessage      string     `json:"last_message"`
	LastUpdated      time.Time  `json:"last_updated"`
	Status           string     `json:"status,omitempty"`
	BlockedUntil     string     `json:"time,omitempty"`
	Channel          Channel    `json:"channel,omitempty"`
	SenderType       SenderType `json:"sender_type,omitempty"`
	CurrentReceiver  string     `json:"current_receiver,omitempty"`
	PreviousReceiver string     `json:"previous_receiver,omitempty"`
	Alert            string     `json:"alert,omitempty"`
}

// DisplayName returns the customer name, or a short label derived from the id.
func (s Session) DisplayName() string {
	if strings.TrimSpace(s.CustomerName) != "" {
		return s.CustomerName
	}
	return FallbackName(s.ID)
}

// FallbackName labels a session that has no customer name yet.
func FallbackName(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return "Session-" + id
}

type Message struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"chat_session_id"`
	SenderType    SenderType `json:"sender_type"`
	Content       string     `json:"content"`
	Images        []string   `json:"images,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CorrelationID string     `json:"client_id,omitempty"`
	// Optimistic marks entries appended locally before any server echo.
	Optimistic bool `json:"optimistic,omitempty"`
}

// FlexID is a session id that the backend sends either as a JSON number or
// as a string.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as numbers, matching what the backend parses.
func (f FlexID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(f), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(f) {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

func (f FlexID) String() string { return string(f) }

// ConsoleEvent records console activity for other services.
type ConsoleEvent struct {
	Type      string                 `json:"type"`
	Role      Role                   `json:"role"`
	SessionID string                 `json:"session_id,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	At        time.Time              `json:"at"`
}

const (
	ConsoleSessionSelected = "session_selected"
	ConsoleMessageSent     = "message_sent"
	ConsoleStatusUpdated   = "session_status_updated"
	ConsoleFeedbackPrompt  = "feedback_prompted"
	ConsoleRatingSubmitted = "rating_submitted"
)
