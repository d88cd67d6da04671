// Package xdivert keeps two SIMs reachable through each other: each SIM
// forwards unreachable calls to the other SIM's number and has call waiting
// on. The outcome is a single "XDivert active" flag that is persisted and
// projected as an indicator.
package xdivert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/msim-telephony/internal/metrics"
	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/store"
)

// Gap separates consecutive call-forward/call-waiting requests. The modem
// cannot serve requests for both SIMs concurrently.
const Gap = 5 * time.Second

var (
	ErrSIMMissing    = errors.New("sim not present")
	ErrNumberUnknown = errors.New("line number unknown")
	ErrBusy          = errors.New("xdivert: sync already queued")
)

// ForwardStatus is the call-forward-unreachable setting of one SIM.
type ForwardStatus struct {
	Enabled bool
	Number  string
}

// LineService issues supplementary-service requests to the network. Each
// call blocks until the network answers.
type LineService interface {
	QueryCallForward(ctx context.Context, sub phone.Subscription) (ForwardStatus, error)
	SetCallForward(ctx context.Context, sub phone.Subscription, enable bool, number string) error
	QueryCallWaiting(ctx context.Context, sub phone.Subscription) (bool, error)
	SetCallWaiting(ctx context.Context, sub phone.Subscription, enable bool) error
}

// Identity is what a SIM reports about itself.
type Identity struct {
	IMSI       string
	LineNumber string
}

// Identities reports the SIM in each slot. ok is false for an empty slot.
type Identities interface {
	Identity(sub phone.Subscription) (id Identity, ok bool)
}

// Indicator shows the XDivert status to the user.
type Indicator interface {
	UpdateXDivertIndicator(ctx context.Context, active bool) error
}

// Status is a point-in-time view for the status endpoint.
type Status struct {
	Active    bool      `json:"active"`
	State     string    `json:"state"`
	LastError string    `json:"last_error,omitempty"`
	LastSync  time.Time `json:"last_sync"`
}

type Option func(*Syncer)

func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithSleep replaces the wait used for Gap.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Syncer) { s.sleep = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// Syncer runs synchronization attempts one at a time on its own worker.
type Syncer struct {
	lines     LineService
	ids       Identities
	store     store.Store
	indicator Indicator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	requests chan bool
	syncMu   sync.Mutex

	mu     sync.RWMutex
	status Status
}

func New(lines LineService, ids Identities, st store.Store, ind Indicator, opts ...Option) (*Syncer, error) {
	if lines == nil || ids == nil || st == nil || ind == nil {
		return nil, fmt.Errorf("xdivert: line service, identities, store and indicator are required")
	}
	s := &Syncer{
		lines:     lines,
		ids:       ids,
		store:     st,
		indicator: ind,
		logger:    slog.Default(),
		sleep:     sleepCtx,
		now:       time.Now,
		requests:  make(chan bool, 1),
		status:    Status{State: stateIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Syncer) Active() bool {
	return s.Status().Active
}

func (s *Syncer) setState(state string) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func (s *Syncer) setResult(active bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Active = active
	s.status.LastSync = s.now()
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}

// Reconcile compares the stored IMSIs with the SIMs now present. XDivert
// stays active only if it was enabled and both SIMs are unchanged.
func (s *Syncer) Reconcile(ctx context.Context) error {
	enabled, err := store.GetBool(ctx, s.store, store.KeyXDivertEnabled)
	if err != nil {
		return fmt.Errorf("reading xdivert flag: %w", err)
	}

	if enabled {
		for _, sub := range []phone.Subscription{sub1, sub2} {
			stored, err := store.GetString(ctx, s.store, store.KeyIMSI(sub))
			if err != nil {
				return fmt.Errorf("reading stored imsi: %w", err)
			}
			id, ok := s.ids.Identity(sub)
			if !ok || id.IMSI == "" || id.IMSI != stored {
				s.logger.Info("sim changed, clearing xdivert", "subscription", int(sub))
				enabled = false
				break
			}
		}
		if !enabled {
			if err := store.SetBool(ctx, s.store, store.KeyXDivertEnabled, false); err != nil {
				return fmt.Errorf("clearing xdivert flag: %w", err)
			}
		}
	}

	s.mu.Lock()
	s.status.Active = enabled
	s.mu.Unlock()
	s.metrics.XDivertSync("reconciled", enabled)
	if err := s.indicator.UpdateXDivertIndicator(ctx, enabled); err != nil {
		s.logger.Warn("projecting xdivert indicator failed", "error", err)
	}
	return nil
}

// Sync runs one attempt to turn XDivert on or off and waits for it. On
// failure every completed change is reverted and the previous status kept.
func (s *Syncer) Sync(ctx context.Context, enable bool) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	prev := s.Active()
	s.logger.Info("xdivert sync started", "enable", enable)

	r := &run{enable: enable}
	if err := s.execute(ctx, r); err != nil {
		s.logger.Error("xdivert sync failed", "enable", enable, "error", err)
		s.setResult(prev, err)
		s.metrics.XDivertSync("failed", prev)
		if perr := s.indicator.UpdateXDivertIndicator(ctx, prev); perr != nil {
			s.logger.Warn("projecting xdivert indicator failed", "error", perr)
		}
		return err
	}

	s.persist(ctx, r)
	s.setResult(enable, nil)
	s.metrics.XDivertSync("ok", enable)
	s.logger.Info("xdivert sync complete", "active", enable)
	if err := s.indicator.UpdateXDivertIndicator(ctx, enable); err != nil {
		s.logger.Warn("projecting xdivert indicator failed", "error", err)
	}
	return nil
}

func (s *Syncer) persist(ctx context.Context, r *run) {
	put := func(key, value string) {
		if err := s.store.Set(ctx, key, value); err != nil {
			s.logger.Error("persisting xdivert state failed", "key", key, "error", err)
		}
	}
	for _, sub := range []phone.Subscription{sub1, sub2} {
		put(store.KeyIMSI(sub), r.ids[sub].IMSI)
		put(store.KeyLineNumber(sub), r.ids[sub].LineNumber)
		put(store.KeyForwardNumber(sub), r.forward[sub].Number)
		if err := store.SetBool(ctx, s.store, store.KeyCallWaiting(sub), r.waiting[sub]); err != nil {
			s.logger.Error("persisting xdivert state failed", "key", store.KeyCallWaiting(sub), "error", err)
		}
	}
	if err := store.SetBool(ctx, s.store, store.KeyXDivertEnabled, r.enable); err != nil {
		s.logger.Error("persisting xdivert state failed", "key", store.KeyXDivertEnabled, "error", err)
	}
}

// Request queues an attempt for the worker started by Run. Only one
// attempt may be queued at a time.
func (s *Syncer) Request(enable bool) error {
	select {
	case s.requests <- enable:
		return nil
	default:
		return ErrBusy
	}
}

// Run serves queued requests until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	for {
		select {
		case enable := <-s.requests:
			_ = s.Sync(ctx, enable)
		case <-ctx.Done():
			return
		}
	}
}
