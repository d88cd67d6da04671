package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/msim-telephony/internal/coordinator"
	"github.com/sweeney/msim-telephony/internal/notify"
	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/registry"
	"github.com/sweeney/msim-telephony/internal/sched"
	"github.com/sweeney/msim-telephony/internal/tone"
	"github.com/sweeney/msim-telephony/internal/wire"
)

func fixturesDir() string {
	return filepath.Join("..", "..", "testdata", "fixtures")
}

// fakeBridge is the platform end of the session. It answers every action
// with Success and remembers it.
type fakeBridge struct {
	mu      sync.Mutex
	actions []wire.Frame
	answers map[string][]string
}

func (b *fakeBridge) serve(conn net.Conn) {
	p := wire.NewParser(conn)
	for {
		f, ok := p.Next()
		if !ok {
			return
		}
		b.mu.Lock()
		b.actions = append(b.actions, f)
		extra := b.answers[f.Action()]
		b.mu.Unlock()

		resp := wire.NewFrame(append([]string{"Response", "Success", "ActionID", f.Get("ActionID")}, extra...)...)
		if _, err := conn.Write(resp.Bytes()); err != nil {
			return
		}
	}
}

// answer adds kvs to every response to action.
func (b *fakeBridge) answer(action string, kvs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers[action] = kvs
}

// named returns the actions called name, in order.
func (b *fakeBridge) named(name string) []wire.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []wire.Frame
	for _, f := range b.actions {
		if f.Action() == name {
			out = append(out, f)
		}
	}
	return out
}

func (b *fakeBridge) played(kind tone.Kind, sub int) bool {
	for _, f := range b.named("PlayTone") {
		if f.Get("Tone") == string(kind) && f.GetInt("Subscription") == sub {
			return true
		}
	}
	return false
}

func (b *fakeBridge) stopped(kind tone.Kind) bool {
	for _, f := range b.named("StopTone") {
		if f.Get("Tone") == string(kind) {
			return true
		}
	}
	return false
}

// connectPlatform attaches plat to a fake bridge over an in-memory pipe.
func connectPlatform(t *testing.T, plat *platform) *fakeBridge {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})

	client := wire.NewClient(local)
	go client.Serve(func(wire.Frame) {})
	plat.attach(client)

	fb := &fakeBridge{answers: map[string][]string{}}
	go fb.serve(remote)
	return fb
}

// syncPoster runs each event through the coordinator before returning.
type syncPoster struct{ c *coordinator.Coordinator }

func (p syncPoster) Post(ctx context.Context, evt phone.Event) error {
	p.c.Handle(ctx, evt)
	return nil
}

type pipeline struct {
	t      *testing.T
	plat   *platform
	fb     *fakeBridge
	coord  *coordinator.Coordinator
	pub    *notify.MockPublisher
	clock  *sched.Manual
	bridge *bridge
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	clock := sched.NewManual(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))

	plat := newPlatform([]phone.PhoneType{phone.PhoneTypeGSM, phone.PhoneTypeGSM}, []string{"911", "112"}, logger)
	fb := connectPlatform(t, plat)

	reg, err := registry.New(plat.handles(), registry.WithLogger(logger))
	require.NoError(t, err)
	tones := tone.NewPool(tone.NewTimedBackend(plat, clock), reg, tone.WithLogger(logger), tone.WithScheduler(clock))
	pub := notify.NewMockPublisher()
	proj := notify.NewProjector(pub, "phone", notify.WithProjectorClock(clock.Now))

	coord, err := coordinator.New(reg, tones, proj, plat, plat,
		coordinator.WithScheduler(clock), coordinator.WithLogger(logger))
	require.NoError(t, err)

	return &pipeline{
		t:      t,
		plat:   plat,
		fb:     fb,
		coord:  coord,
		pub:    pub,
		clock:  clock,
		bridge: &bridge{platform: plat, events: syncPoster{coord}, logger: logger},
	}
}

func (p *pipeline) replay(fixture string) {
	p.t.Helper()
	data, err := os.ReadFile(filepath.Join(fixturesDir(), fixture))
	require.NoError(p.t, err, "reading fixture")
	for _, f := range wire.ParseBytes(data) {
		p.bridge.handleFrame(context.Background(), f)
	}
}

func (p *pipeline) advance(d time.Duration) {
	p.clock.Advance(d)
	p.coord.Flush(context.Background())
}

func (p *pipeline) last(topic string) map[string]any {
	p.t.Helper()
	msgs := p.pub.Topic(topic)
	require.NotEmpty(p.t, msgs, "nothing published to %s", topic)
	var m map[string]any
	require.NoError(p.t, json.Unmarshal(msgs[len(msgs)-1].Payload, &m))
	return m
}

func TestPipelineSecondLineAnswered(t *testing.T) {
	p := newPipeline(t)
	p.replay("second-line-answered.raw")

	rings := p.fb.named("Ring")
	require.Len(t, rings, 2, "new connection and repeated ring")
	for _, r := range rings {
		assert.Equal(t, "1", r.Get("Subscription"))
	}
	assert.NotEmpty(t, p.fb.named("StopRing"))
	incoming := p.last("phone/sub/1/incoming")
	assert.Equal(t, "incoming_call", incoming["event"])

	// answering the second line puts the first on hold
	assert.True(t, p.fb.played(tone.HoldReminder, 0))
	assert.True(t, p.fb.played(tone.SupervisoryHold, 0))

	// the second line ends: hold tones stop, focus returns to the first
	assert.True(t, p.fb.stopped(tone.HoldReminder))
	assert.True(t, p.fb.played(tone.CallEnded, 1))
	assert.Empty(t, p.fb.named("ResetAudio"), "first line still in a call")

	active := p.last("phone/active_subscription")
	assert.Equal(t, float64(0), active["subscription"])
	screen := p.last("phone/sub/1/screen")
	assert.Equal(t, "call_ended", screen["event"])
	assert.Equal(t, "NORMAL", screen["cause"])

	snap := p.coord.Snapshot()
	assert.Equal(t, 0, snap.ActiveSubscription)
	assert.Equal(t, phone.StateOffhook, snap.Lines[0].State)
	assert.Equal(t, phone.StateIdle, snap.Lines[1].State)
	assert.Empty(t, p.pub.Topic("phone/missed_call"))
}

func TestPipelineBusyOutbound(t *testing.T) {
	p := newPipeline(t)
	p.replay("busy-outbound.raw")

	assert.True(t, p.fb.played(tone.Busy, 0))
	inCall := p.last("phone/in_call")
	assert.Equal(t, false, inCall["visible"])
	assert.Empty(t, p.fb.named("ResetAudio"), "reset waits for the busy tone")
	assert.True(t, p.coord.Snapshot().PendingAudioReset)
	assert.Equal(t, "call_ended", p.last("phone/sub/0/screen")["event"])

	p.advance(tone.Busy.Duration())
	assert.Len(t, p.fb.named("ResetAudio"), 1)
	audio := p.last("phone/indicator/audio")
	assert.Equal(t, false, audio["speaker"])
	assert.Equal(t, false, audio["muted"])
	assert.False(t, p.coord.Snapshot().PendingAudioReset)

	// the busy tone outlasts the call-ended screen
	require.Greater(t, tone.Busy.Duration(), coordinator.DefaultSettings().CallEndedDelay)
	assert.Equal(t, "dismissed", p.last("phone/sub/0/screen")["event"])
	assert.Empty(t, p.fb.named("Dial"), "auto retry is off")
}

func TestPipelineMissedCallAndIndicators(t *testing.T) {
	p := newPipeline(t)
	p.replay("missed-call-indicators.raw")

	missed := p.last("phone/missed_call")
	assert.Equal(t, "15550001234", missed["number"])
	assert.Equal(t, "c-9", missed["connection_id"])

	vm := p.last("phone/sub/0/indicator/voicemail")
	assert.Equal(t, true, vm["visible"])
	assert.Equal(t, "*86", vm["number"])

	cf := p.last("phone/sub/1/indicator/call_forward")
	assert.Equal(t, true, cf["visible"])

	// the malformed frame in the capture was dropped without effect
	assert.Equal(t, phone.StateIdle, p.coord.Snapshot().Lines[0].State)
}
