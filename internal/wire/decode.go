package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// ErrUnknownEvent is returned by Decode for event types it does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// SubscriptionInfo is the platform's status report for one SIM slot. It is
// not a call event; the daemon caches it to answer phone handle queries.
type SubscriptionInfo struct {
	Subscription          phone.Subscription
	PhoneType             phone.PhoneType
	IMSI                  string
	LineNumber            string
	VoicemailNumber       string
	RecordsLoaded         bool
	EmergencyCallbackMode bool
	OtaActive             bool
}

// Decode converts an event frame into a phone.Event. Frames with an unknown
// Event header return ErrUnknownEvent; malformed headers return a
// descriptive error.
func Decode(f Frame) (phone.Event, error) {
	typ := f.Type()
	sub, err := subscription(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}

	switch typ {
	case "IncomingRing":
		return phone.IncomingRing{Subscription: sub}, nil
	case "NewRingingConnection":
		conn, err := connection(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", typ, err)
		}
		line, err := lineStatus(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", typ, err)
		}
		return phone.NewRingingConnection{Subscription: sub, Conn: conn, Line: line}, nil
	case "PhoneStateChanged":
		line, err := lineStatus(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", typ, err)
		}
		return phone.PhoneStateChanged{Subscription: sub, Line: line}, nil
	case "Disconnect":
		conn, err := connection(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", typ, err)
		}
		line, err := lineStatus(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", typ, err)
		}
		return phone.Disconnect{
			Subscription: sub,
			Conn:         conn,
			Cause:        phone.ParseDisconnectCause(f.Get("Cause")),
			Line:         line,
		}, nil
	case "SignalInfo":
		return phone.SignalInfo{
			Subscription: sub,
			Present:      f.GetBool("Present"),
			SignalType:   f.GetInt("SignalType"),
			AlertPitch:   f.GetInt("AlertPitch"),
			Signal:       f.GetInt("Signal"),
		}, nil
	case "SubscriptionChanged":
		return phone.SubscriptionChanged{Subscription: sub}, nil
	case "MessageWaiting":
		return phone.MessageWaiting{Subscription: sub, Waiting: f.GetBool("Waiting")}, nil
	case "CallForwardChanged":
		return phone.CallForwardChanged{Subscription: sub, Forwarding: f.GetBool("Forwarding")}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEvent, typ)
}

// DecodeSubscriptionInfo parses a SubscriptionInfo event frame.
func DecodeSubscriptionInfo(f Frame) (SubscriptionInfo, error) {
	if f.Type() != "SubscriptionInfo" {
		return SubscriptionInfo{}, fmt.Errorf("%w %q", ErrUnknownEvent, f.Type())
	}
	sub, err := subscription(f)
	if err != nil {
		return SubscriptionInfo{}, fmt.Errorf("SubscriptionInfo: %w", err)
	}
	info := SubscriptionInfo{
		Subscription:          sub,
		PhoneType:             phone.PhoneTypeGSM,
		IMSI:                  f.Get("IMSI"),
		LineNumber:            f.Get("LineNumber"),
		VoicemailNumber:       f.Get("VoicemailNumber"),
		RecordsLoaded:         f.GetBool("RecordsLoaded"),
		EmergencyCallbackMode: f.GetBool("EmergencyCallbackMode"),
		OtaActive:             f.GetBool("OtaActive"),
	}
	if v := f.Get("PhoneType"); v != "" {
		pt, err := phone.ParsePhoneType(v)
		if err != nil {
			return SubscriptionInfo{}, fmt.Errorf("SubscriptionInfo: %w", err)
		}
		info.PhoneType = pt
	}
	return info, nil
}

func subscription(f Frame) (phone.Subscription, error) {
	v := f.Get("Subscription")
	if v == "" {
		return phone.NoSubscription, errors.New("missing Subscription header")
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return phone.NoSubscription, fmt.Errorf("bad Subscription %q: %w", v, err)
	}
	return phone.Subscription(n), nil
}

// connection returns nil when the frame carries no ConnectionID.
func connection(f Frame) (*phone.Connection, error) {
	id := f.Get("ConnectionID")
	if id == "" {
		return nil, nil
	}
	state, err := phone.ParseConnState(f.Get("CallState"))
	if err != nil {
		return nil, err
	}
	return &phone.Connection{
		ID:        id,
		Address:   f.Get("Address"),
		Incoming:  f.GetBool("Incoming"),
		State:     state,
		Emergency: f.GetBool("Emergency"),
	}, nil
}

func lineStatus(f Frame) (phone.LineStatus, error) {
	state, err := phone.ParseCallState(f.Get("LineState"))
	if err != nil {
		return phone.LineStatus{}, err
	}
	fg, err := phone.ParseConnState(f.Get("ForegroundState"))
	if err != nil {
		return phone.LineStatus{}, err
	}
	ringing := phone.RingingNone
	switch phone.RingingKind(strings.ToLower(f.Get("Ringing"))) {
	case phone.RingingIncoming:
		ringing = phone.RingingIncoming
	case phone.RingingWaiting:
		ringing = phone.RingingWaiting
	case phone.RingingNone, "":
	default:
		return phone.LineStatus{}, fmt.Errorf("unknown ringing kind %q", f.Get("Ringing"))
	}
	return phone.LineStatus{
		State:           state,
		ForegroundState: fg,
		Holding:         f.GetBool("Holding"),
		Ringing:         ringing,
		Emergency:       f.GetBool("Emergency"),
	}, nil
}
