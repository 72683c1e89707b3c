package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownEvent = errors.New("unknown event shape")

type EventKind int

const (
	// EventDirect already matches the message structure (chat_session_id).
	EventDirect EventKind = iota + 1
	// EventSummary is keyed by session_id and carries session attributes.
	EventSummary
)

// Event is a decoded inbound channel frame.
type Event struct {
	Kind          EventKind
	SessionID     string
	MessageID     string
	CorrelationID string
	Name          string
	SenderType    SenderType
	Content       string
	Images        []string
	// CreatedAt is zero when the frame carried no usable timestamp.
	CreatedAt        time.Time
	Status           string
	BlockedUntil     string
	Channel          Channel
	CurrentReceiver  string
	PreviousReceiver string
	Alert            string
}

// DecodeEvent detects the frame shape and decodes it.
func DecodeEvent(data []byte) (Event, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}

	if _, ok := probe["session_id"]; ok {
		var s SessionSummary
		if err := json.Unmarshal(data, &s); err != nil {
			return Event{}, fmt.Errorf("decode summary frame: %w", err)
		}
		ts, _ := ParseTimestamp(s.CreatedAt)
		return Event{
			Kind:             EventSummary,
			SessionID:        s.SessionID.String(),
			CorrelationID:    s.ClientID,
			Name:             s.Name,
			SenderType:       s.SenderType,
			Content:          ContentText(s.Content),
			Images:           DecodeImages(s.Image),
			CreatedAt:        ts,
			Status:           s.Status,
			BlockedUntil:     s.Time,
			Channel:          Channel(s.Channel),
			CurrentReceiver:  s.CurrentReceiver,
			PreviousReceiver: s.PreviousReceiver,
			Alert:            s.Alert,
		}, nil
	}

	if _, ok := probe["chat_session_id"]; ok {
		var f InboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return Event{}, fmt.Errorf("decode message frame: %w", err)
		}
		ts, _ := ParseTimestamp(f.CreatedAt)
		return Event{
			Kind:          EventDirect,
			SessionID:     f.SessionID.String(),
			MessageID:     f.ID.String(),
			CorrelationID: f.ClientID,
			SenderType:    f.SenderType,
			Content:       ContentText(f.Content),
			Images:        DecodeImages(f.Image),
			CreatedAt:     ts,
		}, nil
	}

	return Event{}, ErrUnknownEvent
}

// Message builds the timeline entry for the event.
func (e Event) Message() Message {
	return Message{
		ID:            e.MessageID,
		SessionID:     e.SessionID,
		SenderType:    e.SenderType,
		Content:       e.Content,
		Images:        e.Images,
		CreatedAt:     e.CreatedAt,
		CorrelationID: e.CorrelationID,
	}
}
