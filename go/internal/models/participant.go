package models

// NudgeKind is the direction of a pacing nudge.
type NudgeKind string

const (
	NudgeKindMore NudgeKind = "more"
	NudgeKindLess NudgeKind = "less"
)

// Valid reports whether k is a known nudge kind.
func (k NudgeKind) Valid() bool {
	return k == NudgeKindMore || k == NudgeKindLess
}

// Participant is a roster row with its nudge tallies.
type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"name"`
	MoreCount   int    `json:"more"`
	LessCount   int    `json:"less"`
	InMeeting   bool   `json:"inMeeting"`
}
