package domain

import (
	"encoding/json"
	"time"
)

// Frame is the outbound channel payload.
type Frame struct {
	SessionID  FlexID     `json:"chat_session_id"`
	SenderType SenderType `json:"sender_type"`
	Content    string     `json:"content"`
	Image      *string    `json:"image"`
	ClientID   string     `json:"client_id,omitempty"`
}

// InboundFrame is the "direct" event shape pushed on both channels.
type InboundFrame struct {
	ID         FlexID          `json:"id"`
	SessionID  FlexID          `json:"chat_session_id"`
	SenderType SenderType      `json:"sender_type"`
	Content    json.RawMessage `json:"content"`
	Image      json.RawMessage `json:"image"`
	CreatedAt  string          `json:"created_at"`
	ClientID   string          `json:"client_id"`
}

// SessionSummary is one row of /chat/admin/history and the "bulk" event shape
// broadcast to admins.
type SessionSummary struct {
	SessionID        FlexID          `json:"session_id"`
	Name             string          `json:"name"`
	Content          json.RawMessage `json:"content"`
	CreatedAt        string          `json:"created_at"`
	Status           string          `json:"status"`
	Channel          string          `json:"channel"`
	CurrentReceiver  string          `json:"current_receiver"`
	PreviousReceiver string          `json:"previous_receiver"`
	SenderType       SenderType      `json:"sender_type"`
	Time             string          `json:"time"`
	Image            json.RawMessage `json:"image"`
	ClientID         string          `json:"client_id"`
	Alert            string          `json:"alert"`
}

func (s SessionSummary) Session() Session {
	ts, _ := ParseTimestamp(s.CreatedAt)
	name := s.Name
	if name == "" {
		name = FallbackName(s.SessionID.String())
	}
	return Session{
		ID:               s.SessionID.String(),
		CustomerName:     name,
		LastMessage:      ContentText(s.Content),
		LastUpdated:      ts,
		Status:           s.Status,
		BlockedUntil:     s.Time,
		Channel:          Channel(s.Channel),
		SenderType:       s.SenderType,
		CurrentReceiver:  s.CurrentReceiver,
		PreviousReceiver: s.PreviousReceiver,
		Alert:            s.Alert,
	}
}

// HistoryItem is one element of /chat/history/{id}.
type HistoryItem struct {
	ID         FlexID          `json:"id"`
	SessionID  FlexID          `json:"chat_session_id"`
	SenderType SenderType      `json:"sender_type"`
	Content    json.RawMessage `json:"content"`
	CreatedAt  string          `json:"created_at"`
	Image      json.RawMessage `json:"image"`
}

// Message converts the item, using sessionID when the item omits its own.
func (h HistoryItem) Message(sessionID string) Message {
	ts, _ := ParseTimestamp(h.CreatedAt)
	sid := h.SessionID.String()
	if sid == "" {
		sid = sessionID
	}
	return Message{
		ID:         h.ID.String(),
		SessionID:  sid,
		SenderType: h.SenderType,
		Content:    ContentText(h.Content),
		Images:     DecodeImages(h.Image),
		CreatedAt:  ts,
	}
}

type SessionRef struct {
	ID FlexID `json:"id"`
}

type SessionUpdate struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type SessionUpdateResult struct {
	ID struct {
		Status string `json:"status"`
		Time   string `json:"time"`
	} `json:"id"`
}

type RatingRequest struct {
	Rate    int    `json:"rate"`
	Comment string `json:"comment"`
}

type RatingCheck struct {
	IsRated bool `json:"is_rated"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
}

// ParseTimestamp accepts RFC3339 and the zone-less ISO forms the backend
// emits. Zone-less values are read as UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
