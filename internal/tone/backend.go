package tone

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/sched"
)

// Sink is the platform tone generator.
type Sink interface {
	StartTone(kind Kind, sub phone.Subscription) error
	StopTone(kind Kind) error
}

// TimedBackend plays cues through a Sink and reports finite cues as done
// once their Duration has elapsed.
type TimedBackend struct {
	sink  Sink
	sched sched.Scheduler
}

// NewTimedBackend creates a TimedBackend.
func NewTimedBackend(sink Sink, s sched.Scheduler) *TimedBackend {
	return &TimedBackend{sink: sink, sched: s}
}

type timedPlayer struct {
	sink  Sink
	kind  Kind
	mu    sync.Mutex
	timer sched.Timer
	done  bool
}

func (b *TimedBackend) Play(kind Kind, sub phone.Subscription, done func()) (Player, error) {
	if err := b.sink.StartTone(kind, sub); err != nil {
		return nil, fmt.Errorf("starting %s tone: %w", kind, err)
	}
	p := &timedPlayer{sink: b.sink, kind: kind}
	if d := kind.Duration(); d > 0 {
		p.mu.Lock()
		p.timer = b.sched.AfterFunc(d, func() {
			p.mu.Lock()
			if p.done {
				p.mu.Unlock()
				return
			}
			p.done = true
			p.mu.Unlock()
			done()
		})
		p.mu.Unlock()
	}
	return p, nil
}

func (p *timedPlayer) Stop() error {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return nil
	}
	p.done = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	return p.sink.StopTone(p.kind)
}

// ErrBackendFailed is returned by FakeBackend when a kind is set to fail.
var ErrBackendFailed = errors.New("audio backend failed")

// FakeBackend records plays and lets tests complete or fail cues.
type FakeBackend struct {
	mu      sync.Mutex
	plays   []Kind
	stops   []Kind
	fail    map[Kind]bool
	pending map[Kind]func()
}

// NewFakeBackend creates an empty FakeBackend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{fail: map[Kind]bool{}, pending: map[Kind]func(){}}
}

type fakePlayer struct {
	b    *FakeBackend
	kind Kind
}

func (f *FakeBackend) Play(kind Kind, _ phone.Subscription, done func()) (Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[kind] {
		return nil, ErrBackendFailed
	}
	f.plays = append(f.plays, kind)
	f.pending[kind] = done
	return &fakePlayer{b: f, kind: kind}, nil
}

func (p *fakePlayer) Stop() error {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	p.b.stops = append(p.b.stops, p.kind)
	delete(p.b.pending, p.kind)
	return nil
}

// Complete finishes kind as if it had played to the end.
func (f *FakeBackend) Complete(kind Kind) bool {
	f.mu.Lock()
	done, ok := f.pending[kind]
	delete(f.pending, kind)
	f.mu.Unlock()
	if ok {
		done()
	}
	return ok
}

// SetFail makes subsequent plays of kind fail.
func (f *FakeBackend) SetFail(kind Kind, fail bool) {
	f.mu.Lock()
	f.fail[kind] = fail
	f.mu.Unlock()
}

// Plays returns every kind started, in order.
func (f *FakeBackend) Plays() []Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Kind(nil), f.plays...)
}

// Stops returns every kind stopped, in order.
func (f *FakeBackend) Stops() []Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Kind(nil), f.stops...)
}

// Count returns how many times kind was started.
func (f *FakeBackend) Count(kind Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.plays {
		if k == kind {
			n++
		}
	}
	return n
}
