package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/wire"
)

func TestDecodeEvents(t *testing.T) {
	tests := []struct {
		name  string
		frame wire.Frame
		want  phone.Event
	}{
		{
			name:  "incoming ring",
			frame: wire.NewFrame("Event", "IncomingRing", "Subscription", "1"),
			want:  phone.IncomingRing{Subscription: 1},
		},
		{
			name: "new ringing connection",
			frame: wire.NewFrame("Event", "NewRingingConnection", "Subscription", "1",
				"ConnectionID", "c-2", "Address", "5550100", "Incoming", "yes", "CallState", "incoming",
				"LineState", "ringing", "Ringing", "incoming"),
			want: phone.NewRingingConnection{
				Subscription: 1,
				Conn:         &phone.Connection{ID: "c-2", Address: "5550100", Incoming: true, State: phone.ConnIncoming},
				Line:         phone.LineStatus{State: phone.StateRinging, ForegroundState: phone.ConnIdle, Ringing: phone.RingingIncoming},
			},
		},
		{
			name: "phone state changed",
			frame: wire.NewFrame("Event", "PhoneStateChanged", "Subscription", "0",
				"LineState", "offhook", "ForegroundState", "active", "Holding", "yes", "Emergency", "no"),
			want: phone.PhoneStateChanged{
				Subscription: 0,
				Line:         phone.LineStatus{State: phone.StateOffhook, ForegroundState: phone.ConnActive, Holding: true, Ringing: phone.RingingNone},
			},
		},
		{
			name: "disconnect",
			frame: wire.NewFrame("Event", "Disconnect", "Subscription", "0",
				"ConnectionID", "c-1", "Address", "911", "CallState", "disconnected", "Emergency", "yes",
				"Cause", "CDMA_DROP", "LineState", "idle"),
			want: phone.Disconnect{
				Subscription: 0,
				Conn:         &phone.Connection{ID: "c-1", Address: "911", State: phone.ConnDisconnected, Emergency: true},
				Cause:        phone.CauseCdmaDrop,
				Line:         phone.LineStatus{State: phone.StateIdle, ForegroundState: phone.ConnIdle, Ringing: phone.RingingNone, Emergency: true},
			},
		},
		{
			name:  "disconnect without connection",
			frame: wire.NewFrame("Event", "Disconnect", "Subscription", "0", "Cause", "WHATEVER"),
			want: phone.Disconnect{
				Subscription: 0,
				Cause:        phone.CauseUnknown,
				Line:         phone.LineStatus{State: phone.StateIdle, ForegroundState: phone.ConnIdle, Ringing: phone.RingingNone},
			},
		},
		{
			name:  "signal info",
			frame: wire.NewFrame("Event", "SignalInfo", "Subscription", "0", "Present", "yes", "SignalType", "2", "AlertPitch", "1", "Signal", "7"),
			want:  phone.SignalInfo{Subscription: 0, Present: true, SignalType: 2, AlertPitch: 1, Signal: 7},
		},
		{
			name:  "subscription changed",
			frame: wire.NewFrame("Event", "SubscriptionChanged", "Subscription", "2"),
			want:  phone.SubscriptionChanged{Subscription: 2},
		},
		{
			name:  "message waiting",
			frame: wire.NewFrame("Event", "MessageWaiting", "Subscription", "0", "Waiting", "yes"),
			want:  phone.MessageWaiting{Subscription: 0, Waiting: true},
		},
		{
			name:  "call forward",
			frame: wire.NewFrame("Event", "CallForwardChanged", "Subscription", "1", "Forwarding", "no"),
			want:  phone.CallForwardChanged{Subscription: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wire.Decode(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame wire.Frame
	}{
		{"missing subscription", wire.NewFrame("Event", "IncomingRing")},
		{"bad subscription", wire.NewFrame("Event", "IncomingRing", "Subscription", "one")},
		{"bad line state", wire.NewFrame("Event", "PhoneStateChanged", "Subscription", "0", "LineState", "sideways")},
		{"bad call state", wire.NewFrame("Event", "Disconnect", "Subscription", "0", "ConnectionID", "c", "CallState", "flying")},
		{"bad ringing", wire.NewFrame("Event", "PhoneStateChanged", "Subscription", "0", "Ringing", "loud")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wire.Decode(tt.frame)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, wire.ErrUnknownEvent)
		})
	}

	_, err := wire.Decode(wire.NewFrame("Event", "Bogus", "Subscription", "0"))
	assert.ErrorIs(t, err, wire.ErrUnknownEvent)
}

func TestDecodeSubscriptionInfo(t *testing.T) {
	info, err := wire.DecodeSubscriptionInfo(wire.NewFrame("Event", "SubscriptionInfo", "Subscription", "1",
		"PhoneType", "cdma", "IMSI", "310150123456789", "LineNumber", "5550001",
		"VoicemailNumber", "*86", "RecordsLoaded", "yes", "OtaActive", "no"))
	require.NoError(t, err)
	assert.Equal(t, wire.SubscriptionInfo{
		Subscription:    1,
		PhoneType:       phone.PhoneTypeCDMA,
		IMSI:            "310150123456789",
		LineNumber:      "5550001",
		VoicemailNumber: "*86",
		RecordsLoaded:   true,
	}, info)

	_, err = wire.DecodeSubscriptionInfo(wire.NewFrame("Event", "IncomingRing", "Subscription", "1"))
	assert.ErrorIs(t, err, wire.ErrUnknownEvent)
}

func TestActionFrames(t *testing.T) {
	f := wire.SetCallForwardAction(1, true, "5550002")
	assert.Equal(t, "SetCallForward", f.Action())
	assert.Equal(t, "1", f.Get("Subscription"))
	assert.Equal(t, "yes", f.Get("Enable"))
	assert.Equal(t, "5550002", f.Get("Number"))

	stop := wire.StopRingAction()
	assert.False(t, stop.Has("Subscription"))
	assert.Equal(t, "no", wire.VibrateAction(false).Get("On"))
	assert.Equal(t, "busy", wire.PlayToneAction("busy", 0).Get("Tone"))
}
