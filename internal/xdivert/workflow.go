package xdivert

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/sweeney/msim-telephony/internal/phone"
)

const (
	stateIdle      = "idle"
	stateQueryCF1  = "query_cf_sub1"
	stateQueryCW1  = "query_cw_sub1"
	stateQueryCF2  = "query_cf_sub2"
	stateQueryCW2  = "query_cw_sub2"
	stateValidate  = "validate"
	stateSetCF1    = "set_cf_sub1"
	stateSetCW1    = "set_cw_sub1"
	stateSetCF2    = "set_cf_sub2"
	stateSetCW2    = "set_cw_sub2"
	stateReverting = "reverting"
	stateDone      = "done"
	stateFailed    = "failed"
)

const (
	eventNext     = "next"
	eventFail     = "fail"
	eventFinish   = "finish"
	eventReverted = "reverted"
)

// order is the sequence the "next" event walks through.
var order = []string{
	stateIdle,
	stateQueryCF1, stateQueryCW1, stateQueryCF2, stateQueryCW2,
	stateValidate,
	stateSetCF1, stateSetCW1, stateSetCF2, stateSetCW2,
}

func (s *Syncer) newMachine() *fsm.FSM {
	events := fsm.Events{
		{Name: eventFinish, Src: []string{stateSetCW2}, Dst: stateDone},
		{Name: eventFail, Src: order[1:], Dst: stateReverting},
		{Name: eventReverted, Src: []string{stateReverting}, Dst: stateFailed},
	}
	for i := 0; i+1 < len(order); i++ {
		events = append(events, fsm.EventDesc{Name: eventNext, Src: []string{order[i]}, Dst: order[i+1]})
	}
	return fsm.NewFSM(stateIdle, events, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			s.setState(e.Dst)
			s.logger.Debug("xdivert step", "from", e.Src, "to", e.Dst)
		},
	})
}

// run is the scratch state of one synchronization attempt.
type run struct {
	enable   bool
	ids      [2]Identity
	forward  [2]ForwardStatus
	waiting  [2]bool
	undo     []undoStep
	requests int
}

type undoStep struct {
	name string
	fn   func(context.Context) error
}

var (
	sub1 = phone.Subscription(0)
	sub2 = phone.Subscription(1)
)

func (s *Syncer) actions() map[string]func(context.Context, *run) error {
	return map[string]func(context.Context, *run) error{
		stateQueryCF1: func(ctx context.Context, r *run) error { return s.queryForward(ctx, r, sub1) },
		stateQueryCW1: func(ctx context.Context, r *run) error { return s.queryWaiting(ctx, r, sub1) },
		stateQueryCF2: func(ctx context.Context, r *run) error { return s.queryForward(ctx, r, sub2) },
		stateQueryCW2: func(ctx context.Context, r *run) error { return s.queryWaiting(ctx, r, sub2) },
		stateValidate: s.validate,
		stateSetCF1:   func(ctx context.Context, r *run) error { return s.setForward(ctx, r, sub1) },
		stateSetCW1:   func(ctx context.Context, r *run) error { return s.setWaiting(ctx, r, sub1) },
		stateSetCF2:   func(ctx context.Context, r *run) error { return s.setForward(ctx, r, sub2) },
		stateSetCW2:   func(ctx context.Context, r *run) error { return s.setWaiting(ctx, r, sub2) },
	}
}

// execute walks the machine to done, or through reverting to failed.
func (s *Syncer) execute(ctx context.Context, r *run) error {
	m := s.newMachine()
	actions := s.actions()

	for m.Current() != stateSetCW2 {
		if err := m.Event(ctx, eventNext); err != nil {
			return fmt.Errorf("xdivert: advancing from %s: %w", m.Current(), err)
		}
		step := m.Current()
		if err := actions[step](ctx, r); err != nil {
			_ = m.Event(ctx, eventFail)
			s.revert(context.WithoutCancel(ctx), r)
			_ = m.Event(ctx, eventReverted)
			return fmt.Errorf("xdivert: %s: %w", step, err)
		}
	}
	return m.Event(ctx, eventFinish)
}

// request spaces consecutive modem requests by Gap.
func (s *Syncer) request(ctx context.Context, r *run, fn func() error) error {
	if r.requests > 0 {
		if err := s.sleep(ctx, Gap); err != nil {
			return err
		}
	}
	r.requests++
	return fn()
}

func (s *Syncer) queryForward(ctx context.Context, r *run, sub phone.Subscription) error {
	return s.request(ctx, r, func() error {
		st, err := s.lines.QueryCallForward(ctx, sub)
		if err != nil {
			return err
		}
		r.forward[sub] = st
		return nil
	})
}

func (s *Syncer) queryWaiting(ctx context.Context, r *run, sub phone.Subscription) error {
	return s.request(ctx, r, func() error {
		on, err := s.lines.QueryCallWaiting(ctx, sub)
		if err != nil {
			return err
		}
		r.waiting[sub] = on
		return nil
	})
}

func (s *Syncer) validate(_ context.Context, r *run) error {
	for _, sub := range []phone.Subscription{sub1, sub2} {
		id, ok := s.ids.Identity(sub)
		if !ok || id.IMSI == "" {
			return fmt.Errorf("subscription %d: %w", sub, ErrSIMMissing)
		}
		if r.enable && id.LineNumber == "" {
			return fmt.Errorf("subscription %d: %w", sub, ErrNumberUnknown)
		}
		r.ids[sub] = id
	}
	return nil
}

// target is the forward setting sub should end up with.
func (r *run) target(sub phone.Subscription) ForwardStatus {
	if !r.enable {
		return ForwardStatus{}
	}
	return ForwardStatus{Enabled: true, Number: r.ids[1-sub].LineNumber}
}

func (s *Syncer) setForward(ctx context.Context, r *run, sub phone.Subscription) error {
	want, prev := r.target(sub), r.forward[sub]
	if want.Enabled == prev.Enabled && (!want.Enabled || want.Number == prev.Number) {
		return nil
	}
	err := s.request(ctx, r, func() error {
		return s.lines.SetCallForward(ctx, sub, want.Enabled, want.Number)
	})
	if err != nil {
		return err
	}
	r.forward[sub] = want
	r.undo = append(r.undo, undoStep{
		name: fmt.Sprintf("call forward sub %d", sub),
		fn: func(ctx context.Context) error {
			return s.lines.SetCallForward(ctx, sub, prev.Enabled, prev.Number)
		},
	})
	return nil
}

// setWaiting enables call waiting when turning XDivert on. Turning it off
// leaves call waiting as the user had it.
func (s *Syncer) setWaiting(ctx context.Context, r *run, sub phone.Subscription) error {
	if !r.enable || r.waiting[sub] {
		return nil
	}
	err := s.request(ctx, r, func() error {
		return s.lines.SetCallWaiting(ctx, sub, true)
	})
	if err != nil {
		return err
	}
	r.waiting[sub] = true
	r.undo = append(r.undo, undoStep{
		name: fmt.Sprintf("call waiting sub %d", sub),
		fn: func(ctx context.Context) error {
			return s.lines.SetCallWaiting(ctx, sub, false)
		},
	})
	return nil
}

// revert undoes completed set steps, newest first. Failures are logged and
// the remaining steps still run.
func (s *Syncer) revert(ctx context.Context, r *run) {
	for i := len(r.undo) - 1; i >= 0; i-- {
		u := r.undo[i]
		err := s.request(ctx, r, func() error { return u.fn(ctx) })
		if err != nil {
			s.logger.Error("xdivert revert failed", "step", u.name, "error", err)
			continue
		}
		s.logger.Info("xdivert reverted", "step", u.name)
	}
	r.undo = nil
}
