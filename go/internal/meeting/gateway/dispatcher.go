package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/meeting/rooms"
	"github.com/mcdev12/flowminder/go/internal/meeting/timer"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultCommandTimeout bounds the store calls of a single command.
const DefaultCommandTimeout = 5 * time.Second

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// Client is a connection that can issue commands.
type Client interface {
	rooms.Member
	UserID() string
}

type reply struct {
	version *int
	noop    bool
}

func replyFor(r models.Result) reply {
	v := r.Version
	return reply{version: &v, noop: r.IsNoOp()}
}

type handlerFunc func(ctx context.Context, c Client, cmd Command) (reply, error)

// Dispatcher routes client commands to the owning synchronizer and acknowledges them.
// Failures never escape: they become an ack delivered to the requester only.
type Dispatcher struct {
	engine   *Engine
	registry *rooms.Registry
	clock    clockwork.Clock
	timeout  time.Duration
	routes   map[string]handlerFunc
}

// NewDispatcher creates a dispatcher. A non-positive timeout uses DefaultCommandTimeout.
func NewDispatcher(engine *Engine, registry *rooms.Registry, clock clockwork.Clock, timeout time.Duration) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	d := &Dispatcher{
		engine:   engine,
		registry: registry,
		clock:    clock,
		timeout:  timeout,
	}
	d.routes = map[string]handlerFunc{
		VerbJoin:         d.join,
		VerbLeave:        d.leave,
		VerbAgendaGet:    d.agendaGet,
		VerbAgendaNext:   d.agendaStep(true),
		VerbAgendaPrev:   d.agendaStep(false),
		VerbTimerGet:     d.timerGet,
		VerbTimerStart:   d.timerStart,
		VerbTimerPause:   d.timerSimple(TimerSync.Pause),
		VerbTimerResume:  d.timerSimple(TimerSync.Resume),
		VerbTimerCancel:  d.timerSimple(TimerSync.Cancel),
		VerbTimerEditEnd: d.timerEditEnd,
		VerbNudgeCast:    d.nudgeCast,
		VerbNudgeReset:   d.nudgeReset,
		VerbNudgeGet:     d.nudgeGet,
		VerbSettingsGet:  d.settingsGet,
	}
	return d
}

// Handle decodes and executes one frame, then acknowledges it to c.
func (d *Dispatcher) Handle(ctx context.Context, c Client, frame []byte) {
	var cmd Command
	if err := json.Unmarshal(frame, &cmd); err != nil {
		d.ack(c, cmd, reply{}, fmt.Errorf("malformed frame: %w", errs.ErrInvalidCommand))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	r, err := d.dispatch(ctx, c, cmd)
	d.logResult(c, cmd, err)
	d.ack(c, cmd, r, err)
}

func (d *Dispatcher) dispatch(ctx context.Context, c Client, cmd Command) (reply, error) {
	h, ok := d.routes[cmd.Type]
	if !ok {
		return reply{}, fmt.Errorf("%q: %w", cmd.Type, errs.ErrInvalidCommand)
	}
	if cmd.MeetingID == "" {
		return reply{}, errs.Invalid("meetingId", "is required")
	}
	return h(ctx, c, cmd)
}

func (d *Dispatcher) ack(c Client, cmd Command, r reply, err error) {
	d.registry.SendTo(c, cmd.MeetingID, rooms.EventAck, ackFor(cmd, r, err))
}

func (d *Dispatcher) logResult(c Client, cmd Command, err error) {
	if err == nil {
		log.Debug().
			Str("connection_id", c.ID()).
			Str("meeting_id", cmd.MeetingID).
			Str("verb", cmd.Type).
			Msg("command handled")
		return
	}
	var pe *errs.PersistenceError
	ev := log.Warn()
	if errors.As(err, &pe) || errs.Reason(err) == errs.ReasonServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Str("connection_id", c.ID()).
		Str("user_id", c.UserID()).
		Str("meeting_id", cmd.MeetingID).
		Str("verb", cmd.Type).
		Str("reason", errs.Reason(err)).
		Msg("command rejected")
}

func (d *Dispatcher) send(c Client, meetingID string, typ rooms.EventType, payload any) {
	d.registry.SendTo(c, meetingID, typ, payload)
}

// join subscribes c to the room and sends it every snapshot.
func (d *Dispatcher) join(ctx context.Context, c Client, cmd Command) (reply, error) {
	d.registry.Join(c, cmd.MeetingID)

	agendaSnap, err := d.engine.Agenda.GetOrLoad(ctx, cmd.MeetingID)
	if err != nil {
		return reply{}, err
	}
	d.send(c, cmd.MeetingID, rooms.EventAgendaSnapshot, agendaSnap)
	d.send(c, cmd.MeetingID, rooms.EventTimerState, d.engine.Timer.Get(cmd.MeetingID))

	roster, err := d.engine.Nudge.BuildSnapshot(ctx, cmd.MeetingID)
	if err != nil {
		return reply{}, err
	}
	d.send(c, cmd.MeetingID, rooms.EventNudgeSnapshot, roster)

	if settings, err := d.engine.Timer.Settings(ctx, cmd.MeetingID); err == nil {
		d.send(c, cmd.MeetingID, rooms.EventSettingsUpdate, timer.SettingsUpdate{
			TimerSettings: settings,
			ServerTime:    d.clock.Now().UnixMilli(),
		})
	}

	v := agendaSnap.Version
	return reply{version: &v}, nil
}

func (d *Dispatcher) leave(_ context.Context, c Client, cmd Command) (reply, error) {
	left := d.registry.Leave(c, cmd.MeetingID)
	return reply{noop: !left}, nil
}

func (d *Dispatcher) agendaGet(ctx context.Context, c Client, cmd Command) (reply, error) {
	snap, err := d.engine.Agenda.GetOrLoad(ctx, cmd.MeetingID)
	if err != nil {
		return reply{}, err
	}
	d.send(c, cmd.MeetingID, rooms.EventAgendaSnapshot, snap)
	v := snap.Version
	return reply{version: &v}, nil
}

func (d *Dispatcher) agendaStep(forward bool) handlerFunc {
	return func(ctx context.Context, c Client, cmd Command) (reply, error) {
		var data stepData
		if err := decodeData(cmd.Data, &data); err != nil {
			return reply{}, err
		}
		step := d.engine.Agenda.Retreat
		if forward {
			step = d.engine.Agenda.Advance
		}
		res, err := step(ctx, cmd.MeetingID, data.ExpectedVersion)
		var conflict *errs.ConflictError
		if errors.As(err, &conflict) {
			// client acted on a stale view, hand it the authoritative one
			if snap, serr := d.engine.Agenda.GetOrLoad(ctx, cmd.MeetingID); serr == nil {
				d.send(c, cmd.MeetingID, rooms.EventAgendaSnapshot, snap)
			}
		}
		if err != nil {
			return reply{}, err
		}
		return replyFor(res), nil
	}
}

func (d *Dispatcher) timerGet(_ context.Context, c Client, cmd Command) (reply, error) {
	v := d.engine.Timer.Get(cmd.MeetingID)
	d.send(c, cmd.MeetingID, rooms.EventTimerState, v)
	return reply{version: &v.Version}, nil
}

func (d *Dispatcher) timerStart(_ context.Context, _ Client, cmd Command) (reply, error) {
	var data timerStartData
	if err := decodeData(cmd.Data, &data); err != nil {
		return reply{}, err
	}
	if data.DurationMs == nil {
		return reply{}, errs.Invalid("durationMs", "is required")
	}
	if *data.DurationMs > maxMillis {
		return reply{}, errs.Invalid("durationMs", "is too large")
	}
	res := d.engine.Timer.Start(cmd.MeetingID, time.Duration(*data.DurationMs)*time.Millisecond)
	return replyFor(res), nil
}

func (d *Dispatcher) timerSimple(op func(TimerSync, string) models.Result) handlerFunc {
	return func(_ context.Context, _ Client, cmd Command) (reply, error) {
		return replyFor(op(d.engine.Timer, cmd.MeetingID)), nil
	}
}

func (d *Dispatcher) timerEditEnd(_ context.Context, _ Client, cmd Command) (reply, error) {
	var data timerEditData
	if err := decodeData(cmd.Data, &data); err != nil {
		return reply{}, err
	}
	if data.ProposedEndAt == nil {
		return reply{}, errs.Invalid("proposedEndAt", "is required")
	}
	if *data.ProposedEndAt > maxMillis {
		return reply{}, errs.Invalid("proposedEndAt", "is too far in the future")
	}
	res := d.engine.Timer.EditEnd(cmd.MeetingID, time.UnixMilli(*data.ProposedEndAt))
	return replyFor(res), nil
}

func (d *Dispatcher) nudgeCast(ctx context.Context, c Client, cmd Command) (reply, error) {
	var data castData
	if err := decodeData(cmd.Data, &data); err != nil {
		return reply{}, err
	}
	voter := data.VoterID
	if voter == "" {
		voter = c.UserID()
	}
	_, err := d.engine.Nudge.Cast(ctx, cmd.MeetingID, voter, data.TargetID, models.NudgeKind(data.Kind))
	if err != nil {
		d.send(c, cmd.MeetingID, rooms.EventNudgeRejected, rejectedFor(err))
		return reply{}, err
	}
	return reply{}, nil
}

func (d *Dispatcher) nudgeReset(ctx context.Context, _ Client, cmd Command) (reply, error) {
	res, err := d.engine.Nudge.Reset(ctx, cmd.MeetingID)
	if err != nil {
		return reply{}, err
	}
	return replyFor(res), nil
}

func (d *Dispatcher) nudgeGet(ctx context.Context, c Client, cmd Command) (reply, error) {
	snap, err := d.engine.Nudge.BuildSnapshot(ctx, cmd.MeetingID)
	if err != nil {
		return reply{}, err
	}
	d.send(c, cmd.MeetingID, rooms.EventNudgeSnapshot, snap)
	return reply{}, nil
}

func (d *Dispatcher) settingsGet(ctx context.Context, c Client, cmd Command) (reply, error) {
	settings, err := d.engine.Timer.Settings(ctx, cmd.MeetingID)
	if err != nil {
		return reply{}, err
	}
	d.send(c, cmd.MeetingID, rooms.EventSettingsUpdate, timer.SettingsUpdate{
		TimerSettings: settings,
		ServerTime:    d.clock.Now().UnixMilli(),
	})
	return reply{}, nil
}
