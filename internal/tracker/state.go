package tracker

import (
	"time"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// fsm event names, one per target CallState.
const (
	eventRing    = "ring"
	eventOffhook = "offhook"
	eventHangup  = "hangup"
)

var eventFor = map[phone.CallState]string{
	phone.StateRinging: eventRing,
	phone.StateOffhook: eventOffhook,
	phone.StateIdle:    eventHangup,
}

// StateChange is emitted by the tracker when a subscription's CallState
// transitions.
type StateChange struct {
	Sub       phone.Subscription `json:"subscription"`
	Old       phone.CallState    `json:"old"`
	New       phone.CallState    `json:"new"`
	Cause     string             `json:"cause,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
