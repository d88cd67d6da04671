// Package tone manages the lifecycle of concurrently playable audio cues.
// At most one player per Kind is live at any time.
package tone

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/msim-telephony/internal/metrics"
	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/sched"
)

// RestartDelay separates stop and restart of the hold tones on a
// subscription switch.
const RestartDelay = 100 * time.Millisecond

// Player is a started cue.
type Player interface {
	Stop() error
}

// Backend is the audio layer. done must be called when a finite cue
// finishes on its own, from any goroutine but never from inside Play.
type Backend interface {
	Play(kind Kind, sub phone.Subscription, done func()) (Player, error)
}

// Lines is the read-only view of subscription state the pool needs.
type Lines interface {
	State(sub phone.Subscription) phone.CallState
	OtherActiveSubscription(sub phone.Subscription) (phone.Subscription, bool)
}

type entry struct {
	req    Request
	player Player
}

type holdArgs struct {
	subA, subB phone.Subscription
	ringing    bool
}

// Pool starts and stops cues idempotently.
type Pool struct {
	mu      sync.Mutex
	backend Backend
	lines   Lines
	sched   sched.Scheduler
	running map[Kind]*entry

	restart     sched.Timer
	restartArgs holdArgs

	onDone  func(Request)
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Pool.
type Option func(*Pool)

func WithLogger(l *slog.Logger) Option { return func(p *Pool) { p.logger = l } }

func WithScheduler(s sched.Scheduler) Option { return func(p *Pool) { p.sched = s } }

func WithMetrics(m *metrics.Metrics) Option { return func(p *Pool) { p.metrics = m } }

// WithCompletion registers f to be called when a cue finishes naturally.
// It is not called for cues removed with Stop.
func WithCompletion(f func(Request)) Option { return func(p *Pool) { p.onDone = f } }

// NewPool creates a Pool playing through backend.
func NewPool(backend Backend, lines Lines, opts ...Option) *Pool {
	p := &Pool{
		backend: backend,
		lines:   lines,
		sched:   sched.Real{},
		running: make(map[Kind]*entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetCompletion replaces the completion callback.
func (p *Pool) SetCompletion(f func(Request)) {
	p.mu.Lock()
	p.onDone = f
	p.mu.Unlock()
}

// Start plays kind for sub unless a player of that kind is already live,
// in which case the existing request is returned. A backend failure is
// logged and leaves the kind not running.
func (p *Pool) Start(kind Kind, sub phone.Subscription) (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startLocked(kind, sub)
}

func (p *Pool) startLocked(kind Kind, sub phone.Subscription) (Request, bool) {
	if e, ok := p.running[kind]; ok {
		return e.req, true
	}

	req := Request{
		ID:        uuid.NewString(),
		Kind:      kind,
		Sub:       sub,
		StartedAt: p.sched.Now(),
	}
	e := &entry{req: req}
	player, err := p.safePlay(kind, sub, func() { p.finished(e) })
	if err != nil {
		p.logger.Error("tone start failed", "kind", kind, "subscription", int(sub), "error", err)
		p.metrics.ToneFailed(string(kind))
		return Request{}, false
	}
	e.player = player
	p.running[kind] = e
	p.logger.Debug("tone started", "kind", kind, "subscription", int(sub), "id", req.ID)
	p.metrics.ToneStarted(string(kind))
	return req, true
}

func (p *Pool) safePlay(kind Kind, sub phone.Subscription, done func()) (player Player, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audio backend panic: %v", r)
		}
	}()
	return p.backend.Play(kind, sub, done)
}

// finished is the backend's completion callback.
func (p *Pool) finished(e *entry) {
	p.mu.Lock()
	current := p.running[e.req.Kind] == e
	if current {
		delete(p.running, e.req.Kind)
	}
	onDone := p.onDone
	p.mu.Unlock()

	if current {
		p.logger.Debug("tone completed", "kind", e.req.Kind, "id", e.req.ID)
		if onDone != nil {
			onDone(e.req)
		}
	}
}

// Stop stops kind. It is a no-op when kind is not running.
func (p *Pool) Stop(kind Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked(kind)
}

func (p *Pool) stopLocked(kind Kind) {
	e, ok := p.running[kind]
	if !ok {
		return
	}
	delete(p.running, kind)
	if err := e.player.Stop(); err != nil {
		p.logger.Warn("tone stop failed", "kind", kind, "error", err)
	}
	p.logger.Debug("tone stopped", "kind", kind, "id", e.req.ID)
}

// Running reports whether kind is live.
func (p *Pool) Running(kind Kind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[kind]
	return ok
}

// Live returns the request for kind, if running.
func (p *Pool) Live(kind Kind) (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.running[kind]
	if !ok {
		return Request{}, false
	}
	return e.req, true
}

// Requests returns every live request.
func (p *Pool) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	reqs := make([]Request, 0, len(p.running))
	for _, e := range p.running {
		reqs = append(reqs, e.req)
	}
	return reqs
}

// Manage applies the hold-tone policy: when subA is offhook, neither subA
// nor subB is ringing, ringing is false, and another subscription than subA
// is busy, the hold-reminder and supervisory-hold tones run on that
// subscription.
// Otherwise both are stopped. While a switch restart is pending, tones are
// only stopped; the restart starts them.
func (p *Pool) Manage(subA, subB phone.Subscription, ringing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manageLocked(holdArgs{subA: subA, subB: subB, ringing: ringing})
}

func (p *Pool) manageLocked(args holdArgs) {
	if p.restart != nil {
		// the pending restart re-applies the latest arguments
		p.restartArgs = args
	}
	other, want := p.holdWantedLocked(args)
	if !want {
		p.stopLocked(HoldReminder)
		p.stopLocked(SupervisoryHold)
		return
	}
	if p.restart != nil {
		return
	}
	p.startLocked(HoldReminder, other)
	p.startLocked(SupervisoryHold, other)
}

func (p *Pool) holdWantedLocked(args holdArgs) (phone.Subscription, bool) {
	if args.ringing || p.lines == nil {
		return phone.NoSubscription, false
	}
	if st := p.lines.State(args.subA); st != phone.StateOffhook {
		return phone.NoSubscription, false
	}
	if args.subB != phone.NoSubscription && p.lines.State(args.subB) == phone.StateRinging {
		return phone.NoSubscription, false
	}
	return p.lines.OtherActiveSubscription(args.subA)
}

// Restart stops the hold tones and re-applies Manage after RestartDelay.
// A second call before the delay elapses replaces the pending restart.
func (p *Pool) Restart(subA, subB phone.Subscription, ringing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked(HoldReminder)
	p.stopLocked(SupervisoryHold)
	if p.restart != nil {
		p.restart.Stop()
	}
	p.restartArgs = holdArgs{subA: subA, subB: subB, ringing: ringing}

	var t sched.Timer
	t = p.sched.AfterFunc(RestartDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.restart != t {
			return
		}
		p.restart = nil
		p.manageLocked(p.restartArgs)
	})
	p.restart = t
}

// RestartPending reports whether a switch restart is scheduled.
func (p *Pool) RestartPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restart != nil
}

// StopAll stops every cue and cancels a pending restart.
func (p *Pool) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.restart != nil {
		p.restart.Stop()
		p.restart = nil
	}
	for kind := range p.running {
		p.stopLocked(kind)
	}
}
