package coordinator

import (
	"context"
	"time"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// Settings are the user and tuning inputs the coordinator consumes.
type Settings struct {
	DefaultSubscription phone.Subscription
	AutoRetry           bool
	EmergencyTone       phone.EmergencyTonePolicy

	// CallerInfoTimeout bounds how long ringing waits for caller-ID.
	CallerInfoTimeout time.Duration
	// CallEndedDelay is how long the call-ended screen stays up.
	CallEndedDelay time.Duration
	// CallWaitingDisplay is how long a call-waiting indication is shown.
	CallWaitingDisplay time.Duration

	VoicemailRetryLimit int
	VoicemailRetryDelay time.Duration
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		DefaultSubscription: 0,
		EmergencyTone:       phone.EmergencyToneOff,
		CallerInfoTimeout:   500 * time.Millisecond,
		CallEndedDelay:      2 * time.Second,
		CallWaitingDisplay:  20 * time.Second,
		VoicemailRetryLimit: 6,
		VoicemailRetryDelay: 10 * time.Second,
	}
}

// Ringer drives the incoming-call ringer and vibrator.
type Ringer interface {
	Ring(ctx context.Context, sub phone.Subscription) error
	StopRing(ctx context.Context) error
	Vibrate(ctx context.Context, on bool) error
}

// Audio owns device audio routing.
type Audio interface {
	// ResetAudio restores normal audio mode with speaker and mute off.
	ResetAudio(ctx context.Context) error
}

// CallerInfo resolves caller-ID details for an incoming connection.
type CallerInfo interface {
	Lookup(ctx context.Context, sub phone.Subscription, conn *phone.Connection) (string, error)
}

// IncomingPolicy lets device policy reject every incoming call on sub.
type IncomingPolicy interface {
	BlockIncoming(sub phone.Subscription) bool
}
