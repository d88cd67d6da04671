package wire

import (
	"strconv"

	"github.com/sweeney/msim-telephony/internal/phone"
)

func action(name string, sub phone.Subscription, kvs ...string) Frame {
	f := NewFrame("Action", name)
	if sub != phone.NoSubscription {
		f.Set("Subscription", strconv.Itoa(int(sub)))
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		f.Set(kvs[i], kvs[i+1])
	}
	return f
}

func DialAction(sub phone.Subscription, number string) Frame {
	return action("Dial", sub, "Number", number)
}

func RejectAction(sub phone.Subscription, connID string) Frame {
	return action("Reject", sub, "ConnectionID", connID)
}

func PlayToneAction(kind string, sub phone.Subscription) Frame {
	return action("PlayTone", sub, "Tone", kind)
}

func StopToneAction(kind string) Frame {
	return action("StopTone", phone.NoSubscription, "Tone", kind)
}

func RingAction(sub phone.Subscription) Frame {
	return action("Ring", sub)
}

func StopRingAction() Frame {
	return action("StopRing", phone.NoSubscription)
}

func VibrateAction(on bool) Frame {
	return action("Vibrate", phone.NoSubscription, "On", formatBool(on))
}

// ResetAudioAction restores normal audio mode and turns speaker and mute off.
func ResetAudioAction() Frame {
	return action("ResetAudio", phone.NoSubscription)
}

// SetCallForwardAction sets call forwarding when unreachable. An empty number
// with enable false erases the forward.
func SetCallForwardAction(sub phone.Subscription, enable bool, number string) Frame {
	return action("SetCallForward", sub, "Enable", formatBool(enable), "Number", number)
}

func SetCallWaitingAction(sub phone.Subscription, enable bool) Frame {
	return action("SetCallWaiting", sub, "Enable", formatBool(enable))
}

// QueryCallForwardAction asks for the forward-when-unreachable; the response
// carries Enabled and Number.
func QueryCallForwardAction(sub phone.Subscription) Frame {
	return action("QueryCallForward", sub)
}

// QueryCallWaitingAction asks for call-waiting; the response carries Enabled.
func QueryCallWaitingAction(sub phone.Subscription) Frame {
	return action("QueryCallWaiting", sub)
}
