// Package bus carries meeting hook events between processes. Writers outside the gateway
// (the REST side, meetingctl) publish to a JetStream stream and the gateway consumes them.
// Agenda rows edited directly in Postgres are picked up through LISTEN/NOTIFY.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/flowminder/go/internal/models"
)

// EventType names a hook event on the bus.
type EventType string

const (
	EventTypeAgendaChanged        EventType = "AgendaChanged"
	EventTypeParticipantJoined    EventType = "ParticipantJoined"
	EventTypeParticipantLeft      EventType = "ParticipantLeft"
	EventTypeTimerSettingsUpdated EventType = "TimerSettingsUpdated"
)

// Envelope is the JSON body of every message on the hook stream.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType EventType       `json:"eventType"`
	MeetingID string          `json:"meetingId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ParticipantPayload is the payload of join and leave events.
type ParticipantPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// TimerSettingsPayload is the payload of TimerSettingsUpdated.
type TimerSettingsPayload struct {
	TimerSettings models.TimerSettings `json:"timer_settings"`
}

// NewEnvelope builds an envelope with a fresh event id. A nil payload is left empty.
func NewEnvelope(eventType EventType, meetingID string, payload any, now time.Time) (Envelope, error) {
	env := Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		MeetingID: meetingID,
		Timestamp: now.UTC(),
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		env.Payload = body
	}
	return env, nil
}

// AgendaChanged builds an AgendaChanged envelope.
func AgendaChanged(meetingID string, now time.Time) (Envelope, error) {
	return NewEnvelope(EventTypeAgendaChanged, meetingID, nil, now)
}

// ParticipantJoined builds a ParticipantJoined envelope.
func ParticipantJoined(meetingID, userID, displayName string, now time.Time) (Envelope, error) {
	return NewEnvelope(EventTypeParticipantJoined, meetingID, ParticipantPayload{UserID: userID, DisplayName: displayName}, now)
}

// ParticipantLeft builds a ParticipantLeft envelope.
func ParticipantLeft(meetingID, userID string, now time.Time) (Envelope, error) {
	return NewEnvelope(EventTypeParticipantLeft, meetingID, ParticipantPayload{UserID: userID}, now)
}

// TimerSettingsUpdated builds a TimerSettingsUpdated envelope.
func TimerSettingsUpdated(meetingID string, settings models.TimerSettings, now time.Time) (Envelope, error) {
	return NewEnvelope(EventTypeTimerSettingsUpdated, meetingID, TimerSettingsPayload{TimerSettings: settings}, now)
}
