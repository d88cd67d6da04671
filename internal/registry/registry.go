// Package registry holds the per-subscription phone handles and the last
// known line status of each subscription.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// ErrInvalidSubscription is returned for an out-of-range subscription id.
var ErrInvalidSubscription = errors.New("invalid subscription")

type slot struct {
	handle phone.Handle
	line   phone.LineStatus
}

// Registry is safe for concurrent reads; writes come from the coordinator.
type Registry struct {
	mu     sync.RWMutex
	slots  []slot
	logger *slog.Logger
	strict bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for range violations.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithStrictRanges makes out-of-range lookups panic. Tests enable it so a
// bad subscription id fails loudly instead of being logged.
func WithStrictRanges(strict bool) Option {
	return func(r *Registry) { r.strict = strict }
}

// New creates a Registry for the given phone handles, one per slot.
func New(handles []phone.Handle, opts ...Option) (*Registry, error) {
	if len(handles) == 0 || len(handles) > phone.MaxSubscriptions {
		return nil, fmt.Errorf("subscription count must be between 1 and %d, got %d",
			phone.MaxSubscriptions, len(handles))
	}
	r := &Registry{
		slots:  make([]slot, len(handles)),
		logger: slog.Default(),
	}
	for i, h := range handles {
		if h == nil {
			return nil, fmt.Errorf("phone handle for %s is nil", phone.Subscription(i))
		}
		r.slots[i] = slot{handle: h, line: phone.LineStatus{State: phone.StateIdle}}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Count returns the number of subscriptions.
func (r *Registry) Count() int {
	return len(r.slots)
}

// Subscriptions returns every subscription id in slot order.
func (r *Registry) Subscriptions() []phone.Subscription {
	subs := make([]phone.Subscription, len(r.slots))
	for i := range r.slots {
		subs[i] = phone.Subscription(i)
	}
	return subs
}

// Check validates sub, logging (or panicking in strict mode) when it is
// out of range.
func (r *Registry) Check(sub phone.Subscription) error {
	if sub.Valid(len(r.slots)) {
		return nil
	}
	if r.strict {
		panic(fmt.Sprintf("registry: subscription %d out of range [0,%d)", int(sub), len(r.slots)))
	}
	r.logger.Warn("subscription out of range", "subscription", int(sub), "count", len(r.slots))
	return fmt.Errorf("%w: %d", ErrInvalidSubscription, int(sub))
}

// Phone returns the handle for sub.
func (r *Registry) Phone(sub phone.Subscription) (phone.Handle, bool) {
	if r.Check(sub) != nil {
		return nil, false
	}
	return r.slots[sub].handle, true
}

// PhoneType returns the radio type of sub, GSM when unknown.
func (r *Registry) PhoneType(sub phone.Subscription) phone.PhoneType {
	h, ok := r.Phone(sub)
	if !ok {
		return phone.PhoneTypeGSM
	}
	return h.Type()
}

// Line returns the last recorded status of sub.
func (r *Registry) Line(sub phone.Subscription) phone.LineStatus {
	if r.Check(sub) != nil {
		return phone.LineStatus{State: phone.StateIdle}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[sub].line
}

// State returns the CallState of sub.
func (r *Registry) State(sub phone.Subscription) phone.CallState {
	return r.Line(sub).State
}

// SetLine records the status of sub.
func (r *Registry) SetLine(sub phone.Subscription, line phone.LineStatus) {
	if r.Check(sub) != nil {
		return
	}
	r.mu.Lock()
	r.slots[sub].line = line
	r.mu.Unlock()
}

// OtherActiveSubscription returns the lowest-numbered subscription other
// than sub that is not idle.
func (r *Registry) OtherActiveSubscription(sub phone.Subscription) (phone.Subscription, bool) {
	if r.Check(sub) != nil {
		return phone.NoSubscription, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, s := range r.slots {
		if phone.Subscription(i) == sub {
			continue
		}
		if s.line.Busy() {
			return phone.Subscription(i), true
		}
	}
	return phone.NoSubscription, false
}

// AllIdle reports whether every subscription is idle.
func (r *Registry) AllIdle() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.slots {
		if s.line.Busy() {
			return false
		}
	}
	return true
}

// AnyRinging reports whether some subscription is ringing.
func (r *Registry) AnyRinging() bool {
	_, ok := r.Ringing()
	return ok
}

// Ringing returns the first ringing subscription.
func (r *Registry) Ringing() (phone.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, s := range r.slots {
		if s.line.State == phone.StateRinging {
			return phone.Subscription(i), true
		}
	}
	return phone.NoSubscription, false
}

// Lines returns a copy of every subscription's status.
func (r *Registry) Lines() []phone.LineStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lines := make([]phone.LineStatus, len(r.slots))
	for i, s := range r.slots {
		lines[i] = s.line
	}
	return lines
}
