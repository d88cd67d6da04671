package phone

import (
	"fmt"
	"strings"
	"time"
)

// Subscription identifies a SIM slot. Valid values are 0..N-1.
type Subscription int

// NoSubscription marks the absence of a subscription.
const NoSubscription Subscription = -1

// MaxSubscriptions is the largest number of SIM slots supported.
const MaxSubscriptions = 3

// Valid reports whether s is a slot index for a device with n slots.
func (s Subscription) Valid(n int) bool {
	return s >= 0 && int(s) < n
}

func (s Subscription) String() string {
	if s == NoSubscription {
		return "none"
	}
	return fmt.Sprintf("sub%d", int(s))
}

// CallState is the coarse call activity of one subscription.
type CallState string

const (
	StateIdle    CallState = "idle"
	StateRinging CallState = "ringing"
	StateOffhook CallState = "offhook"
)

// ParseCallState parses a wire or config value into a CallState.
func ParseCallState(s string) (CallState, error) {
	switch CallState(strings.ToLower(s)) {
	case StateIdle, "":
		return StateIdle, nil
	case StateRinging:
		return StateRinging, nil
	case StateOffhook:
		return StateOffhook, nil
	}
	return StateIdle, fmt.Errorf("unknown call state %q", s)
}

// PhoneType is the radio technology behind a subscription.
type PhoneType string

const (
	PhoneTypeGSM  PhoneType = "gsm"
	PhoneTypeCDMA PhoneType = "cdma"
)

// ParsePhoneType parses "gsm" or "cdma".
func ParsePhoneType(s string) (PhoneType, error) {
	switch PhoneType(strings.ToLower(s)) {
	case PhoneTypeGSM:
		return PhoneTypeGSM, nil
	case PhoneTypeCDMA:
		return PhoneTypeCDMA, nil
	}
	return "", fmt.Errorf("unknown phone type %q", s)
}

// ConnState is the state of a single call leg as reported by the platform.
type ConnState string

const (
	ConnIdle         ConnState = "idle"
	ConnDialing      ConnState = "dialing"
	ConnAlerting     ConnState = "alerting"
	ConnActive       ConnState = "active"
	ConnHolding      ConnState = "holding"
	ConnIncoming     ConnState = "incoming"
	ConnWaiting      ConnState = "waiting"
	ConnDisconnected ConnState = "disconnected"
)

// ParseConnState parses a call leg state, defaulting to idle for empty input.
func ParseConnState(s string) (ConnState, error) {
	cs := ConnState(strings.ToLower(s))
	switch cs {
	case "":
		return ConnIdle, nil
	case ConnIdle, ConnDialing, ConnAlerting, ConnActive, ConnHolding,
		ConnIncoming, ConnWaiting, ConnDisconnected:
		return cs, nil
	}
	return ConnIdle, fmt.Errorf("unknown connection state %q", s)
}

// Outgoing reports whether the leg is an outgoing call not yet answered.
func (c ConnState) Outgoing() bool {
	return c == ConnDialing || c == ConnAlerting
}

// RingingKind distinguishes a fresh incoming call from a call-waiting one.
type RingingKind string

const (
	RingingNone     RingingKind = "none"
	RingingIncoming RingingKind = "incoming"
	RingingWaiting  RingingKind = "waiting"
)

// LineStatus is the snapshot of a subscription's calls that the tracker
// and coordinator reason about.
type LineStatus struct {
	State           CallState
	ForegroundState ConnState
	Holding         bool
	Ringing         RingingKind
	Emergency       bool
}

// HasActiveCall reports whether the foreground call is connected.
func (l LineStatus) HasActiveCall() bool {
	return l.State == StateOffhook && l.ForegroundState == ConnActive
}

// Busy reports whether the line has any call activity.
func (l LineStatus) Busy() bool {
	return l.State != StateIdle
}

// Connection is an immutable view of one call leg.
type Connection struct {
	ID        string
	Address   string
	Incoming  bool
	State     ConnState
	Emergency bool
	CreatedAt time.Time
}

// CallWaiting reports whether the leg is a call-waiting variant.
func (c *Connection) CallWaiting() bool {
	return c != nil && c.State == ConnWaiting
}

// EmergencyTonePolicy selects the feedback played during a CDMA emergency call.
type EmergencyTonePolicy string

const (
	EmergencyToneOff     EmergencyTonePolicy = "off"
	EmergencyToneAlert   EmergencyTonePolicy = "alert"
	EmergencyToneVibrate EmergencyTonePolicy = "vibrate"
	EmergencyToneBoth    EmergencyTonePolicy = "both"
)

// ParseEmergencyTonePolicy parses a config value; empty means off.
func ParseEmergencyTonePolicy(s string) (EmergencyTonePolicy, error) {
	switch p := EmergencyTonePolicy(strings.ToLower(s)); p {
	case "":
		return EmergencyToneOff, nil
	case EmergencyToneOff, EmergencyToneAlert, EmergencyToneVibrate, EmergencyToneBoth:
		return p, nil
	}
	return EmergencyToneOff, fmt.Errorf("unknown emergency tone policy %q", s)
}

// Alert reports whether the policy plays the emergency tone.
func (p EmergencyTonePolicy) Alert() bool {
	return p == EmergencyToneAlert || p == EmergencyToneBoth
}

// Vibrate reports whether the policy vibrates.
func (p EmergencyTonePolicy) Vibrate() bool {
	return p == EmergencyToneVibrate || p == EmergencyToneBoth
}
