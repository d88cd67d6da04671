// Package tracker keeps one CallState machine per subscription, fed only by
// platform events.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/looplab/fsm"

	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/registry"
)

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Tracker applies platform events to per-subscription state machines and
// records the resulting line status in the registry.
type Tracker struct {
	reg      *registry.Registry
	machines []*fsm.FSM
	clock    Clock
	logger   *slog.Logger

	// filled by the enter_state callback during Process
	pending []StateChange
	current phone.Subscription
	cause   string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source for the tracker.
func WithClock(c Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a Tracker with every subscription idle.
func New(reg *registry.Registry, opts ...Option) *Tracker {
	t := &Tracker{
		reg:    reg,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.machines = make([]*fsm.FSM, reg.Count())
	for i := range t.machines {
		t.machines[i] = t.newMachine()
	}
	return t
}

func (t *Tracker) newMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(phone.StateIdle),
		fsm.Events{
			{Name: eventRing, Src: []string{string(phone.StateIdle), string(phone.StateOffhook)}, Dst: string(phone.StateRinging)},
			{Name: eventOffhook, Src: []string{string(phone.StateIdle), string(phone.StateRinging)}, Dst: string(phone.StateOffhook)},
			{Name: eventHangup, Src: []string{string(phone.StateRinging), string(phone.StateOffhook)}, Dst: string(phone.StateIdle)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				t.pending = append(t.pending, StateChange{
					Sub:       t.current,
					Old:       phone.CallState(e.Src),
					New:       phone.CallState(e.Dst),
					Cause:     t.cause,
					Timestamp: t.clock(),
				})
			},
		},
	)
}

// State returns the current CallState of sub.
func (t *Tracker) State(sub phone.Subscription) phone.CallState {
	if t.reg.Check(sub) != nil {
		return phone.StateIdle
	}
	return phone.CallState(t.machines[sub].Current())
}

// Process ingests a platform event and returns any resulting state changes.
// Events for out-of-range subscriptions are dropped.
func (t *Tracker) Process(evt phone.Event) []StateChange {
	sub := evt.Sub()
	if t.reg.Check(sub) != nil {
		return nil
	}

	switch e := evt.(type) {
	case phone.NewRingingConnection:
		line := e.Line
		line.State = phone.StateRinging
		if line.Ringing == "" || line.Ringing == phone.RingingNone {
			line.Ringing = phone.RingingIncoming
			if e.Conn.CallWaiting() {
				line.Ringing = phone.RingingWaiting
			}
		}
		return t.apply(sub, line, "")
	case phone.PhoneStateChanged:
		return t.apply(sub, e.Line, "")
	case phone.Disconnect:
		return t.apply(sub, e.Line, string(e.Cause))
	default:
		return nil
	}
}

func (t *Tracker) apply(sub phone.Subscription, line phone.LineStatus, cause string) []StateChange {
	if line.State == "" {
		line.State = phone.StateIdle
	}
	t.reg.SetLine(sub, line)

	m := t.machines[sub]
	if m.Current() == string(line.State) {
		return nil
	}

	t.pending = nil
	t.current = sub
	t.cause = cause
	err := m.Event(context.Background(), eventFor[line.State])
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		t.logger.Warn("rejected call state transition",
			"subscription", int(sub), "from", m.Current(), "to", line.State, "error", err)
		return nil
	}

	changes := t.pending
	t.pending = nil
	for _, c := range changes {
		t.logger.Debug("call state changed", "subscription", int(c.Sub), "old", c.Old, "new", c.New)
	}
	return changes
}
