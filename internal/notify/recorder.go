package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// Call records one Projector invocation.
type Call struct {
	Method string
	Sub    phone.Subscription
	Flag   bool
	Text   string
}

// Recorder is a Projector that records every call for test assertions.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	err   error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.err
}

// SetError makes every subsequent call return err after recording it.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Calls returns a copy of all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Named returns the recorded calls for method.
func (r *Recorder) Named(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *Recorder) ShowIncomingCall(_ context.Context, sub phone.Subscription) error {
	return r.record(Call{Method: "ShowIncomingCall", Sub: sub})
}

func (r *Recorder) UpdateInCallNotification(_ context.Context, sub phone.Subscription, allowFullScreenLaunch bool) error {
	return r.record(Call{Method: "UpdateInCallNotification", Sub: sub, Flag: allowFullScreenLaunch})
}

func (r *Recorder) CancelInCallNotifications(context.Context) error {
	return r.record(Call{Method: "CancelInCallNotifications", Sub: phone.NoSubscription})
}

func (r *Recorder) SetActiveSubscription(_ context.Context, sub phone.Subscription) error {
	return r.record(Call{Method: "SetActiveSubscription", Sub: sub})
}

func (r *Recorder) ShowMissedCallNotification(_ context.Context, conn *phone.Connection, _ time.Time) error {
	c := Call{Method: "ShowMissedCallNotification", Sub: phone.NoSubscription}
	if conn != nil {
		c.Text = conn.Address
	}
	return r.record(c)
}

func (r *Recorder) ShowCallEnded(_ context.Context, sub phone.Subscription, cause phone.DisconnectCause) error {
	return r.record(Call{Method: "ShowCallEnded", Sub: sub, Text: string(cause)})
}

func (r *Recorder) DismissInCallScreen(_ context.Context, sub phone.Subscription) error {
	return r.record(Call{Method: "DismissInCallScreen", Sub: sub})
}

func (r *Recorder) UpdateVoicemailIndicator(_ context.Context, sub phone.Subscription, visible bool, number string) error {
	return r.record(Call{Method: "UpdateVoicemailIndicator", Sub: sub, Flag: visible, Text: number})
}

func (r *Recorder) UpdateCallForwardIndicator(_ context.Context, sub phone.Subscription, forwarding bool) error {
	return r.record(Call{Method: "UpdateCallForwardIndicator", Sub: sub, Flag: forwarding})
}

func (r *Recorder) UpdateAudioIndicators(_ context.Context, speaker, muted bool) error {
	return r.record(Call{Method: "UpdateAudioIndicators", Sub: phone.NoSubscription, Flag: speaker || muted})
}

func (r *Recorder) UpdateXDivertIndicator(_ context.Context, active bool) error {
	return r.record(Call{Method: "UpdateXDivertIndicator", Sub: phone.NoSubscription, Flag: active})
}
