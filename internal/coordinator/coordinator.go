// Package coordinator serialises platform call events for every
// subscription through one loop and drives ringing, tones, audio and the
// notification projector from them.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sweeney/msim-telephony/internal/metrics"
	"github.com/sweeney/msim-telephony/internal/notify"
	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/registry"
	"github.com/sweeney/msim-telephony/internal/sched"
	"github.com/sweeney/msim-telephony/internal/tone"
	"github.com/sweeney/msim-telephony/internal/tracker"
)

// QueueSize is the capacity of the event queue.
const QueueSize = 256

var (
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("coordinator already running")
	// ErrStopped is returned by Post after Run has returned.
	ErrStopped = errors.New("coordinator stopped")
)

// cdmaCalls is the per-subscription CDMA call bookkeeping.
type cdmaCalls struct {
	callWaiting bool
}

// Coordinator owns all call-session state. Every mutation happens on the
// goroutine running Run, or inside Handle and Flush when no loop is running.
type Coordinator struct {
	reg        *registry.Registry
	tracker    *tracker.Tracker
	tones      *tone.Pool
	proj       notify.Projector
	ringer     Ringer
	audio      Audio
	callerInfo CallerInfo
	policy     IncomingPolicy
	settings   Settings
	sched      sched.Scheduler
	logger     *slog.Logger
	metrics    *metrics.Metrics

	queue   chan any
	stopped chan struct{}
	running atomic.Bool

	// loop-owned
	active            phone.Subscription
	prevForeground    []phone.ConnState
	cdma              []cdmaCalls
	redialInProgress  bool
	pendingAudioReset bool
	emergencyVibrate  phone.Subscription
	callerInfoPending map[phone.Subscription]string
	voicemailAttempts map[phone.Subscription]int
	timers            map[timerKey]pendingTimer
	timerSeq          uint64

	snapMu sync.RWMutex
	snap   Snapshot
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option { return func(c *Coordinator) { c.settings = s } }

func WithCallerInfo(ci CallerInfo) Option { return func(c *Coordinator) { c.callerInfo = ci } }

func WithIncomingPolicy(p IncomingPolicy) Option { return func(c *Coordinator) { c.policy = p } }

func WithScheduler(s sched.Scheduler) Option { return func(c *Coordinator) { c.sched = s } }

func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// New creates a Coordinator. The pool's completion callback is taken over
// by the coordinator.
func New(reg *registry.Registry, tones *tone.Pool, proj notify.Projector, ringer Ringer, audio Audio, opts ...Option) (*Coordinator, error) {
	switch {
	case reg == nil:
		return nil, errors.New("coordinator: nil registry")
	case tones == nil:
		return nil, errors.New("coordinator: nil tone pool")
	case proj == nil:
		return nil, errors.New("coordinator: nil projector")
	case ringer == nil:
		return nil, errors.New("coordinator: nil ringer")
	case audio == nil:
		return nil, errors.New("coordinator: nil audio router")
	}

	c := &Coordinator{
		reg:               reg,
		tones:             tones,
		proj:              proj,
		ringer:            ringer,
		audio:             audio,
		settings:          DefaultSettings(),
		sched:             sched.Real{},
		logger:            slog.Default(),
		queue:             make(chan any, QueueSize),
		stopped:           make(chan struct{}),
		prevForeground:    make([]phone.ConnState, reg.Count()),
		cdma:              make([]cdmaCalls, reg.Count()),
		callerInfoPending: make(map[phone.Subscription]string),
		voicemailAttempts: make(map[phone.Subscription]int),
		timers:            make(map[timerKey]pendingTimer),
		emergencyVibrate:  phone.NoSubscription,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := reg.Check(c.settings.DefaultSubscription); err != nil {
		return nil, fmt.Errorf("coordinator: default subscription: %w", err)
	}
	c.active = c.settings.DefaultSubscription
	c.tracker = tracker.New(reg, tracker.WithClock(c.sched.Now), tracker.WithLogger(c.logger))
	tones.SetCompletion(c.toneCompleted)
	c.metrics.ActiveSubscription(int(c.active))
	c.publishSnapshot()
	return c, nil
}

// Post queues evt for the loop. It blocks while the queue is full.
func (c *Coordinator) Post(ctx context.Context, evt phone.Event) error {
	if evt == nil {
		return errors.New("coordinator: nil event")
	}
	select {
	case <-c.stopped:
		return ErrStopped
	default:
	}
	select {
	case c.queue <- evt:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue is used by timers and background lookups.
func (c *Coordinator) enqueue(item any) {
	select {
	case c.queue <- item:
	case <-c.stopped:
	}
}

// Run processes queued items until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.stopped)

	c.logger.Info("coordinator started", "subscriptions", c.reg.Count(), "active", int(c.active))
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.logger.Info("coordinator stopped")
			return nil
		case item := <-c.queue:
			c.dispatch(ctx, item)
		}
	}
}

// Handle processes evt synchronously and then drains anything queued.
// It must not be used while Run is active.
func (c *Coordinator) Handle(ctx context.Context, evt phone.Event) {
	c.dispatch(ctx, evt)
	c.Flush(ctx)
}

// Flush processes queued items without blocking. It must not be used while
// Run is active.
func (c *Coordinator) Flush(ctx context.Context) {
	for {
		select {
		case item := <-c.queue:
			c.dispatch(ctx, item)
		default:
			return
		}
	}
}

func (c *Coordinator) shutdown() {
	for key := range c.timers {
		c.cancelTimer(key)
	}
	c.tones.StopAll()
}

// dispatch handles one item. A panic aborts the rest of that item only.
func (c *Coordinator) dispatch(ctx context.Context, item any) {
	defer c.publishSnapshot()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "item", fmt.Sprintf("%T", item), "panic", r)
			c.metrics.Dropped("panic")
		}
	}()

	switch it := item.(type) {
	case phone.Event:
		c.handleEvent(ctx, it)
	case timerFired:
		c.handleTimer(ctx, it)
	case toneDone:
		c.handleToneDone(ctx, it.req)
	case callerInfoDone:
		c.handleCallerInfo(ctx, it)
	default:
		c.logger.Warn("unknown queue item", "type", fmt.Sprintf("%T", item))
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, evt phone.Event) {
	sub := evt.Sub()
	if err := c.reg.Check(sub); err != nil {
		c.logger.Warn("dropping event", "event", evt.Name(), "error", err)
		c.metrics.Dropped("invalid_subscription")
		return
	}
	c.metrics.Event(evt.Name())
	c.logger.Debug("event", "event", evt.Name(), "subscription", int(sub))

	switch e := evt.(type) {
	case phone.NewRingingConnection:
		c.onNewRingingConnection(ctx, e)
	case phone.IncomingRing:
		c.onIncomingRing(ctx, e)
	case phone.PhoneStateChanged:
		c.onPhoneStateChanged(ctx, e)
	case phone.Disconnect:
		c.onDisconnect(ctx, e)
	case phone.SignalInfo:
		c.onSignalInfo(e)
	case phone.SubscriptionChanged:
		c.onSubscriptionChanged(ctx, e)
	case phone.MessageWaiting:
		c.onMessageWaiting(ctx, e)
	case phone.CallForwardChanged:
		c.warn("update call forward indicator", c.proj.UpdateCallForwardIndicator(ctx, e.Subscription, e.Forwarding))
	}
}

// warn logs a failed collaborator call. Processing continues.
func (c *Coordinator) warn(op string, err error) {
	if err != nil {
		c.logger.Warn(op+" failed", "error", err)
	}
}

// toneCompleted runs on the audio backend's goroutine.
func (c *Coordinator) toneCompleted(req tone.Request) {
	c.enqueue(toneDone{req: req})
}

type toneDone struct{ req tone.Request }

type callerInfoDone struct {
	sub    phone.Subscription
	connID string
	name   string
	err    error
}
