package phone

import (
	"context"
	"sync"
)

// FakeHandle is an in-memory Handle that records dial and reject requests.
type FakeHandle struct {
	mu         sync.Mutex
	kind       PhoneType
	dialed     []string
	rejected   []string
	emergency  map[string]bool
	ecm        bool
	ota        bool
	vmNumber   string
	vmErr      error
	vmLookups  int
	dialErr    error
	dialPanics bool
}

// NewFakeHandle creates a FakeHandle of the given type.
func NewFakeHandle(kind PhoneType) *FakeHandle {
	return &FakeHandle{kind: kind, emergency: map[string]bool{"911": true, "112": true}}
}

func (f *FakeHandle) Type() PhoneType { return f.kind }

func (f *FakeHandle) Dial(_ context.Context, number string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialPanics {
		panic("fake dial failure")
	}
	if f.dialErr != nil {
		return f.dialErr
	}
	f.dialed = append(f.dialed, number)
	return nil
}

func (f *FakeHandle) Reject(_ context.Context, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, connID)
	return nil
}

func (f *FakeHandle) IsEmergencyNumber(number string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emergency[number]
}

func (f *FakeHandle) InEmergencyCallbackMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ecm
}

func (f *FakeHandle) OtaActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ota
}

func (f *FakeHandle) VoicemailNumber() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vmLookups++
	return f.vmNumber, f.vmErr
}

// Dialed returns a copy of every dialed number.
func (f *FakeHandle) Dialed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dialed...)
}

// Rejected returns a copy of every rejected connection id.
func (f *FakeHandle) Rejected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rejected...)
}

// VoicemailLookups returns how many times VoicemailNumber was called.
func (f *FakeHandle) VoicemailLookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vmLookups
}

func (f *FakeHandle) SetEmergencyCallbackMode(on bool) {
	f.mu.Lock()
	f.ecm = on
	f.mu.Unlock()
}

func (f *FakeHandle) SetOtaActive(on bool) {
	f.mu.Lock()
	f.ota = on
	f.mu.Unlock()
}

func (f *FakeHandle) SetVoicemail(number string, err error) {
	f.mu.Lock()
	f.vmNumber, f.vmErr = number, err
	f.mu.Unlock()
}

// SetDialError makes Dial return err; panics instead when panics is true.
func (f *FakeHandle) SetDialError(err error, panics bool) {
	f.mu.Lock()
	f.dialErr, f.dialPanics = err, panics
	f.mu.Unlock()
}
