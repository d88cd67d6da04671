package phone

import (
	"context"
	"errors"
)

// ErrRecordsNotLoaded is returned while SIM records are still loading.
var ErrRecordsNotLoaded = errors.New("sim records not loaded")

// Handle is the platform phone object behind one subscription.
type Handle interface {
	Type() PhoneType
	Dial(ctx context.Context, number string) error
	Reject(ctx context.Context, connID string) error
	IsEmergencyNumber(number string) bool
	InEmergencyCallbackMode() bool
	OtaActive() bool
	// VoicemailNumber returns ErrRecordsNotLoaded until the SIM is ready.
	VoicemailNumber() (string, error)
}
