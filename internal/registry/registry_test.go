package registry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/registry"
)

func newRegistry(t *testing.T, n int, opts ...registry.Option) *registry.Registry {
	t.Helper()
	handles := make([]phone.Handle, n)
	for i := range handles {
		handles[i] = phone.NewFakeHandle(phone.PhoneTypeGSM)
	}
	r, err := registry.New(handles, opts...)
	require.NoError(t, err)
	return r
}

func TestNewRejectsBadCounts(t *testing.T) {
	_, err := registry.New(nil)
	assert.Error(t, err)

	handles := make([]phone.Handle, 4)
	for i := range handles {
		handles[i] = phone.NewFakeHandle(phone.PhoneTypeGSM)
	}
	_, err = registry.New(handles)
	assert.Error(t, err)

	_, err = registry.New([]phone.Handle{nil})
	assert.Error(t, err)
}

func TestOtherActiveSubscription(t *testing.T) {
	r := newRegistry(t, 3)

	_, ok := r.OtherActiveSubscription(0)
	assert.False(t, ok, "all idle")

	r.SetLine(2, phone.LineStatus{State: phone.StateOffhook})
	other, ok := r.OtherActiveSubscription(0)
	require.True(t, ok)
	assert.Equal(t, phone.Subscription(2), other)

	_, ok = r.OtherActiveSubscription(2)
	assert.False(t, ok, "only sub2 itself is busy")

	r.SetLine(1, phone.LineStatus{State: phone.StateRinging})
	other, ok = r.OtherActiveSubscription(2)
	require.True(t, ok)
	assert.Equal(t, phone.Subscription(1), other)
}

func TestSingleSubscriptionHasNoOther(t *testing.T) {
	r := newRegistry(t, 1)
	r.SetLine(0, phone.LineStatus{State: phone.StateOffhook})
	_, ok := r.OtherActiveSubscription(0)
	assert.False(t, ok)
}

func TestOutOfRangeIsLoggedNotFatal(t *testing.T) {
	r := newRegistry(t, 2)

	_, ok := r.Phone(5)
	assert.False(t, ok)
	_, ok = r.OtherActiveSubscription(-3)
	assert.False(t, ok)
	assert.Equal(t, phone.StateIdle, r.State(7))
	assert.True(t, errors.Is(r.Check(2), registry.ErrInvalidSubscription))

	// Writes to a bad slot are dropped.
	r.SetLine(9, phone.LineStatus{State: phone.StateOffhook})
	assert.True(t, r.AllIdle())
}

func TestStrictRangesPanic(t *testing.T) {
	r := newRegistry(t, 2, registry.WithStrictRanges(true))
	assert.Panics(t, func() { r.Phone(2) })
	assert.NotPanics(t, func() { r.Phone(1) })
}

func TestRingingAndIdle(t *testing.T) {
	r := newRegistry(t, 2)
	assert.True(t, r.AllIdle())
	assert.False(t, r.AnyRinging())

	r.SetLine(1, phone.LineStatus{State: phone.StateRinging, Ringing: phone.RingingIncoming})
	sub, ok := r.Ringing()
	require.True(t, ok)
	assert.Equal(t, phone.Subscription(1), sub)
	assert.False(t, r.AllIdle())

	lines := r.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, phone.StateRinging, lines[1].State)
}
