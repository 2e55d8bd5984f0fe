package models

import "time"

// Visibility controls who sees agenda timers by default.
type Visibility string

const (
	VisibilityMe       Visibility = "me"
	VisibilityEveryone Visibility = "everyone"
)

// TimerAutomation holds the automation toggles of the timer settings.
type TimerAutomation struct {
	AutoAdvance        bool `json:"autoAdvance"`
	AutoStartNextTimer bool `json:"autoStartNextTimer"`
}

// TimerSettings holds the JSONB timer defaults stored per meeting.
type TimerSettings struct {
	HasTimers         bool            `json:"hasTimers"`
	DefaultVisibility Visibility      `json:"defaultVisibility"`
	Automation        TimerAutomation `json:"automation"`
	UpdatedAt         *time.Time      `json:"updatedAt,omitempty"`
}

// DefaultTimerSettings returns the settings used when a meeting has none stored.
func DefaultTimerSettings() TimerSettings {
	return TimerSettings{DefaultVisibility: VisibilityMe}
}

// Normalize coerces unknown values to their defaults.
func (s TimerSettings) Normalize() TimerSettings {
	if s.DefaultVisibility != VisibilityEveryone {
		s.DefaultVisibility = VisibilityMe
	}
	return s
}
