package rooms

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every frame sent to a client.
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	MeetingID string          `json:"meetingId"` // Meeting the event belongs to
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType names a server to client frame.
type EventType string

const (
	EventAgendaSnapshot         EventType = "agenda:snapshot"
	EventAgendaUpdate           EventType = "agenda:update"
	EventTimerState             EventType = "timer:state"
	EventSettingsUpdate         EventType = "settings:update"
	EventNudgeSnapshot          EventType = "nudge:snapshot"
	EventNudgeUpdate            EventType = "nudge:update"
	EventNudgeParticipantUpdate EventType = "nudge:participant:update"
	EventNudgeRejected          EventType = "nudge:rejected"
	EventAck                    EventType = "ack"
)

// NewEvent builds an envelope around payload.
func NewEvent(meetingID string, typ EventType, payload any, now time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		MeetingID: meetingID,
		Type:      typ,
		Timestamp: now.UTC(),
		Data:      data,
	}, nil
}

// Encode builds the envelope and marshals it into a frame.
func Encode(meetingID string, typ EventType, payload any, now time.Time) ([]byte, error) {
	ev, err := NewEvent(meetingID, typ, payload, now)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}
