package tone

import (
	"time"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// Kind names an audio cue.
type Kind string

const (
	CallWaiting      Kind = "call_waiting"
	LocalCallWaiting Kind = "local_call_waiting"
	HoldReminder     Kind = "local_call_hold"
	SupervisoryHold  Kind = "supervisory_call_hold"
	SignalInfo       Kind = "signal_info"
	Emergency        Kind = "emergency"

	Busy               Kind = "busy"
	Congestion         Kind = "congestion"
	CallEnded          Kind = "call_ended"
	OtaCallEnd         Kind = "ota_call_end"
	Reorder            Kind = "cdma_reorder"
	Intercept          Kind = "cdma_intercept"
	CdmaDrop           Kind = "cdma_drop"
	OutOfService       Kind = "out_of_service"
	UnobtainableNumber Kind = "unobtainable_number"
)

// durations of the finite cues; anything not listed plays until stopped.
var durations = map[Kind]time.Duration{
	CallWaiting:        5 * time.Second,
	Busy:               4 * time.Second,
	Congestion:         4 * time.Second,
	CallEnded:          200 * time.Millisecond,
	OtaCallEnd:         750 * time.Millisecond,
	Reorder:            4 * time.Second,
	Intercept:          500 * time.Millisecond,
	CdmaDrop:           375 * time.Millisecond,
	OutOfService:       375 * time.Millisecond,
	UnobtainableNumber: 4 * time.Second,
}

// Duration is how long a finite cue plays. Zero means continuous.
func (k Kind) Duration() time.Duration {
	return durations[k]
}

// PostDisconnect reports whether k is one of the earpiece tones played
// after a call ends.
func (k Kind) PostDisconnect() bool {
	switch k {
	case Busy, Congestion, CallEnded, OtaCallEnd, Reorder, Intercept,
		CdmaDrop, OutOfService, UnobtainableNumber:
		return true
	}
	return false
}

// Request is a live cue owned by the pool.
type Request struct {
	ID        string
	Kind      Kind
	Sub       phone.Subscription
	StartedAt time.Time
}
