package gateway

import (
	"encoding/json"
	"errors"

	"github.com/mcdev12/flowminder/go/internal/errs"
)

// Verbs accepted from clients.
const (
	VerbJoin         = "join"
	VerbLeave        = "leave"
	VerbAgendaGet    = "agenda:get"
	VerbAgendaNext   = "agenda:next"
	VerbAgendaPrev   = "agenda:prev"
	VerbTimerGet     = "timer:get"
	VerbTimerStart   = "timer:start"
	VerbTimerPause   = "timer:pause"
	VerbTimerResume  = "timer:resume"
	VerbTimerCancel  = "timer:cancel"
	VerbTimerEditEnd = "timer:editEnd"
	VerbNudgeCast    = "nudge:cast"
	VerbNudgeReset   = "nudge:reset"
	VerbNudgeGet     = "nudge:get"
	VerbSettingsGet  = "settings:get"
)

// Command is a client to server frame.
type Command struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	MeetingID string          `json:"meetingId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Ack is sent only to the connection that issued the command.
type Ack struct {
	ReplyTo     string `json:"replyTo"`
	OK          bool   `json:"ok"`
	Version     *int   `json:"version,omitempty"`
	NoOp        bool   `json:"noop,omitempty"`
	Reason      string `json:"reason,omitempty"`
	RemainingMs *int64 `json:"remainingMs,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Rejected is the nudge:rejected payload.
type Rejected struct {
	Reason      string `json:"reason"`
	RemainingMs *int64 `json:"remainingMs,omitempty"`
	Error       string `json:"error,omitempty"`
}

type stepData struct {
	ExpectedVersion *int `json:"expectedVersion"`
}

type timerStartData struct {
	DurationMs *int64 `json:"durationMs"`
}

type timerEditData struct {
	ProposedEndAt *int64 `json:"proposedEndAt"`
}

type castData struct {
	VoterID  string `json:"voterId"`
	TargetID string `json:"targetId"`
	Kind     string `json:"kind"`
}

// decodeData unmarshals optional command data. Absent data leaves v untouched.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.Invalid("data", err.Error())
	}
	return nil
}

func ackFor(cmd Command, r reply, err error) Ack {
	ack := Ack{ReplyTo: cmd.ID, OK: err == nil}
	if err != nil {
		ack.Reason = errs.Reason(err)
		ack.Error = clientDetail(err)
		if ms := errs.RemainingMs(err); ms > 0 {
			ack.RemainingMs = &ms
		}
		return ack
	}
	ack.Version = r.version
	ack.NoOp = r.noop
	return ack
}

func rejectedFor(err error) Rejected {
	rej := Rejected{Reason: errs.Reason(err)}
	if ms := errs.RemainingMs(err); ms > 0 {
		rej.RemainingMs = &ms
	}
	rej.Error = clientDetail(err)
	return rej
}

// clientDetail is the error text a client may see. Store and internal failures are only
// logged.
func clientDetail(err error) string {
	var pe *errs.PersistenceError
	if errors.As(err, &pe) || errs.Reason(err) == errs.ReasonServerError {
		return ""
	}
	return err.Error()
}
