package coordinator

import (
	"sort"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// LineSnapshot is the published view of one subscription.
type LineSnapshot struct {
	Subscription    int               `json:"subscription"`
	PhoneType       phone.PhoneType   `json:"phone_type"`
	State           phone.CallState   `json:"state"`
	ForegroundState phone.ConnState   `json:"foreground_state"`
	Ringing         phone.RingingKind `json:"ringing"`
	Emergency       bool              `json:"emergency"`
	CdmaCallWaiting bool              `json:"cdma_call_waiting,omitempty"`
}

// ToneSnapshot describes a live tone.
type ToneSnapshot struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Subscription int    `json:"subscription"`
}

// Snapshot is a read-only projection of coordinator state, refreshed after
// every processed item.
type Snapshot struct {
	ActiveSubscription int            `json:"active_subscription"`
	RedialInProgress   bool           `json:"redial_in_progress"`
	PendingAudioReset  bool           `json:"pending_audio_reset"`
	Lines              []LineSnapshot `json:"lines"`
	Tones              []ToneSnapshot `json:"tones"`
}

// Snapshot returns the latest published state. Safe for concurrent use.
func (c *Coordinator) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	s := c.snap
	s.Lines = append([]LineSnapshot(nil), c.snap.Lines...)
	s.Tones = append([]ToneSnapshot(nil), c.snap.Tones...)
	return s
}

// ActiveSubscription returns the subscription holding audio and UI focus.
func (c *Coordinator) ActiveSubscription() phone.Subscription {
	return phone.Subscription(c.Snapshot().ActiveSubscription)
}

// RedialInProgress reports whether an automatic CDMA redial is in flight.
func (c *Coordinator) RedialInProgress() bool {
	return c.Snapshot().RedialInProgress
}

// CdmaCallWaiting reports whether sub is showing a CDMA call-waiting call.
func (c *Coordinator) CdmaCallWaiting(sub phone.Subscription) bool {
	for _, l := range c.Snapshot().Lines {
		if l.Subscription == int(sub) {
			return l.CdmaCallWaiting
		}
	}
	return false
}

func (c *Coordinator) publishSnapshot() {
	s := Snapshot{
		ActiveSubscription: int(c.active),
		RedialInProgress:   c.redialInProgress,
		PendingAudioReset:  c.pendingAudioReset,
	}
	for _, sub := range c.reg.Subscriptions() {
		line := c.reg.Line(sub)
		s.Lines = append(s.Lines, LineSnapshot{
			Subscription:    int(sub),
			PhoneType:       c.reg.PhoneType(sub),
			State:           line.State,
			ForegroundState: line.ForegroundState,
			Ringing:         line.Ringing,
			Emergency:       line.Emergency,
			CdmaCallWaiting: c.cdma[sub].callWaiting,
		})
	}
	for _, req := range c.tones.Requests() {
		s.Tones = append(s.Tones, ToneSnapshot{ID: req.ID, Kind: string(req.Kind), Subscription: int(req.Sub)})
	}
	sort.Slice(s.Tones, func(i, j int) bool { return s.Tones[i].Kind < s.Tones[j].Kind })

	c.snapMu.Lock()
	c.snap = s
	c.snapMu.Unlock()
}
