package tone_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/sched"
	"github.com/sweeney/msim-telephony/internal/tone"
)

type lines struct {
	states []phone.CallState
}

func (l *lines) State(sub phone.Subscription) phone.CallState {
	if !sub.Valid(len(l.states)) {
		return phone.StateIdle
	}
	return l.states[sub]
}

func (l *lines) OtherActiveSubscription(sub phone.Subscription) (phone.Subscription, bool) {
	for i, st := range l.states {
		if phone.Subscription(i) != sub && st != phone.StateIdle {
			return phone.Subscription(i), true
		}
	}
	return phone.NoSubscription, false
}

func newPool(states ...phone.CallState) (*tone.Pool, *tone.FakeBackend, *sched.Manual, *lines) {
	backend := tone.NewFakeBackend()
	clock := sched.NewManual(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	l := &lines{states: states}
	return tone.NewPool(backend, l, tone.WithScheduler(clock)), backend, clock, l
}

func TestStartIsIdempotent(t *testing.T) {
	pool, backend, _, _ := newPool(phone.StateIdle)

	first, ok := pool.Start(tone.LocalCallWaiting, 0)
	require.True(t, ok)
	second, ok := pool.Start(tone.LocalCallWaiting, 1)
	require.True(t, ok)

	assert.Equal(t, first.ID, second.ID, "existing handle returned")
	assert.Equal(t, phone.Subscription(0), second.Sub)
	assert.Equal(t, 1, backend.Count(tone.LocalCallWaiting))
	assert.Len(t, pool.Requests(), 1)
}

func TestStopIsIdempotent(t *testing.T) {
	pool, backend, _, _ := newPool(phone.StateIdle)

	pool.Stop(tone.Busy)
	assert.Empty(t, backend.Stops())

	pool.Start(tone.Busy, 0)
	pool.Stop(tone.Busy)
	pool.Stop(tone.Busy)
	assert.Equal(t, []tone.Kind{tone.Busy}, backend.Stops())
	assert.False(t, pool.Running(tone.Busy))
}

func TestBackendFailureLeavesNotRunning(t *testing.T) {
	pool, backend, _, _ := newPool(phone.StateIdle)
	backend.SetFail(tone.Emergency, true)

	_, ok := pool.Start(tone.Emergency, 0)
	assert.False(t, ok)
	assert.False(t, pool.Running(tone.Emergency))

	backend.SetFail(tone.Emergency, false)
	_, ok = pool.Start(tone.Emergency, 0)
	assert.True(t, ok, "later retry succeeds")
	assert.True(t, pool.Running(tone.Emergency))
}

type panickyBackend struct{}

func (panickyBackend) Play(tone.Kind, phone.Subscription, func()) (tone.Player, error) {
	panic("audio device gone")
}

func TestBackendPanicIsContained(t *testing.T) {
	pool := tone.NewPool(panickyBackend{}, nil)
	var ok bool
	assert.NotPanics(t, func() { _, ok = pool.Start(tone.CallEnded, 0) })
	assert.False(t, ok)
	assert.False(t, pool.Running(tone.CallEnded))
}

func TestCompletionCallback(t *testing.T) {
	pool, backend, _, _ := newPool(phone.StateIdle)
	var done []tone.Request
	pool.SetCompletion(func(r tone.Request) { done = append(done, r) })

	req, _ := pool.Start(tone.CallEnded, 0)
	require.True(t, backend.Complete(tone.CallEnded))

	require.Len(t, done, 1)
	assert.Equal(t, req.ID, done[0].ID)
	assert.False(t, pool.Running(tone.CallEnded))

	// Stopped cues do not report completion.
	pool.Start(tone.Busy, 0)
	pool.Stop(tone.Busy)
	assert.False(t, backend.Complete(tone.Busy))
	assert.Len(t, done, 1)
}

func TestManageStartsHoldTonesWhenTwoLinesBusy(t *testing.T) {
	pool, _, _, l := newPool(phone.StateOffhook, phone.StateOffhook)

	pool.Manage(0, 1, false)
	assert.True(t, pool.Running(tone.HoldReminder))
	assert.True(t, pool.Running(tone.SupervisoryHold))
	req, _ := pool.Live(tone.HoldReminder)
	assert.Equal(t, phone.Subscription(1), req.Sub)

	l.states[1] = phone.StateRinging
	pool.Manage(0, 1, true)
	assert.False(t, pool.Running(tone.HoldReminder))
	assert.False(t, pool.Running(tone.SupervisoryHold))
}

func TestManageStopsWhenOtherIdle(t *testing.T) {
	pool, _, _, l := newPool(phone.StateOffhook, phone.StateOffhook)
	pool.Manage(0, 1, false)
	require.True(t, pool.Running(tone.HoldReminder))

	l.states[1] = phone.StateIdle
	pool.Manage(0, 1, false)
	assert.False(t, pool.Running(tone.HoldReminder))
}

func TestRestartWaitsForDelay(t *testing.T) {
	pool, backend, clock, _ := newPool(phone.StateOffhook, phone.StateOffhook)
	pool.Manage(0, 1, false)
	require.Equal(t, 1, backend.Count(tone.HoldReminder))

	pool.Restart(1, 0, false)
	assert.False(t, pool.Running(tone.HoldReminder), "stopped immediately")
	assert.True(t, pool.RestartPending())

	// Manage during the gap must not restart instantly.
	pool.Manage(1, 0, false)
	assert.False(t, pool.Running(tone.HoldReminder))

	clock.Advance(tone.RestartDelay - time.Millisecond)
	assert.False(t, pool.Running(tone.HoldReminder))

	clock.Advance(time.Millisecond)
	assert.True(t, pool.Running(tone.HoldReminder))
	assert.True(t, pool.Running(tone.SupervisoryHold))
	req, _ := pool.Live(tone.HoldReminder)
	assert.Equal(t, phone.Subscription(0), req.Sub, "tone follows the held line")
	assert.Equal(t, 2, backend.Count(tone.HoldReminder))
	assert.False(t, pool.RestartPending())
}

func TestRestartSupersedesPending(t *testing.T) {
	pool, backend, clock, _ := newPool(phone.StateOffhook, phone.StateOffhook)
	pool.Restart(0, 1, false)
	clock.Advance(50 * time.Millisecond)
	pool.Restart(1, 0, false)
	clock.Advance(60 * time.Millisecond)
	assert.False(t, pool.Running(tone.HoldReminder), "first restart was replaced")

	clock.Advance(40 * time.Millisecond)
	assert.True(t, pool.Running(tone.HoldReminder))
	assert.Equal(t, 1, backend.Count(tone.HoldReminder), "exactly one restart fired")
}

func TestRestartUsesLatestManageArguments(t *testing.T) {
	pool, backend, clock, l := newPool(phone.StateOffhook, phone.StateOffhook, phone.StateIdle)
	pool.Manage(0, 1, false)
	require.Equal(t, 1, backend.Count(tone.HoldReminder))

	pool.Restart(1, 0, false)
	l.states[2] = phone.StateRinging
	pool.Manage(1, 0, true)

	clock.Advance(tone.RestartDelay)
	assert.False(t, pool.RestartPending())
	assert.False(t, pool.Running(tone.HoldReminder), "no hold tones over a ringing line")
	assert.False(t, pool.Running(tone.SupervisoryHold))
	assert.Equal(t, 1, backend.Count(tone.HoldReminder))
}

func TestSingletonUnderConcurrency(t *testing.T) {
	pool, backend, _, _ := newPool(phone.StateOffhook, phone.StateOffhook)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			pool.Start(tone.LocalCallWaiting, 0)
		}()
		go func() {
			defer wg.Done()
			pool.Manage(0, 1, false)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.Count(tone.LocalCallWaiting))
	assert.Equal(t, 1, backend.Count(tone.HoldReminder))
	assert.Equal(t, 1, backend.Count(tone.SupervisoryHold))
}

func TestStopAllCancelsRestart(t *testing.T) {
	pool, _, clock, _ := newPool(phone.StateOffhook, phone.StateOffhook)
	pool.Start(tone.Emergency, 0)
	pool.Restart(0, 1, false)
	pool.StopAll()
	clock.Advance(time.Second)
	assert.Empty(t, pool.Requests())
}

type recordingSink struct {
	started []tone.Kind
	stopped []tone.Kind
}

func (s *recordingSink) StartTone(kind tone.Kind, _ phone.Subscription) error {
	s.started = append(s.started, kind)
	return nil
}

func (s *recordingSink) StopTone(kind tone.Kind) error {
	s.stopped = append(s.stopped, kind)
	return nil
}

func TestTimedBackendCompletesFiniteTones(t *testing.T) {
	clock := sched.NewManual(time.Time{})
	sink := &recordingSink{}
	pool := tone.NewPool(tone.NewTimedBackend(sink, clock), nil, tone.WithScheduler(clock))
	var done []tone.Kind
	pool.SetCompletion(func(r tone.Request) { done = append(done, r.Kind) })

	pool.Start(tone.CallEnded, 0)
	pool.Start(tone.HoldReminder, 1)

	clock.Advance(tone.CallEnded.Duration())
	assert.Equal(t, []tone.Kind{tone.CallEnded}, done)
	assert.True(t, pool.Running(tone.HoldReminder), "continuous tone keeps playing")

	pool.Stop(tone.HoldReminder)
	assert.Equal(t, []tone.Kind{tone.HoldReminder}, sink.stopped)
}
