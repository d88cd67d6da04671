package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/tone"
	"github.com/sweeney/msim-telephony/internal/wire"
	"github.com/sweeney/msim-telephony/internal/xdivert"
)

var errNotConnected = errors.New("platform not connected")

// actionTimeout bounds every action so a lost response cannot stall the
// coordinator loop.
const actionTimeout = 10 * time.Second

// platform sends actions to the telephony bridge over whichever session is
// currently connected, and caches what the bridge reports about each SIM.
type platform struct {
	logger    *slog.Logger
	types     []phone.PhoneType
	emergency map[string]bool

	mu     sync.RWMutex
	client *wire.Client
	info   map[phone.Subscription]wire.SubscriptionInfo
}

func newPlatform(types []phone.PhoneType, emergencyNumbers []string, logger *slog.Logger) *platform {
	em := make(map[string]bool, len(emergencyNumbers))
	for _, n := range emergencyNumbers {
		em[n] = true
	}
	return &platform{
		logger:    logger,
		types:     types,
		emergency: em,
		info:      make(map[phone.Subscription]wire.SubscriptionInfo),
	}
}

func (p *platform) attach(c *wire.Client) {
	p.mu.Lock()
	p.client = c
	p.mu.Unlock()
}

// detach drops c if it is still the current session. SIM info is kept
// until the next session reports it again.
func (p *platform) detach(c *wire.Client) {
	p.mu.Lock()
	if p.client == c {
		p.client = nil
	}
	p.mu.Unlock()
}

func (p *platform) connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}

func (p *platform) send(ctx context.Context, action wire.Frame) (wire.Frame, error) {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()
	if c == nil {
		return wire.Frame{}, fmt.Errorf("%s: %w", action.Action(), errNotConnected)
	}
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	return c.Send(ctx, action)
}

// updateInfo stores a SubscriptionInfo report and says whether every
// configured slot has now reported.
func (p *platform) updateInfo(info wire.SubscriptionInfo) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info[info.Subscription] = info
	for i := range p.types {
		if _, ok := p.info[phone.Subscription(i)]; !ok {
			return false
		}
	}
	return true
}

func (p *platform) subInfo(sub phone.Subscription) (wire.SubscriptionInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.info[sub]
	return info, ok
}

// handles returns one phone.Handle per configured slot.
func (p *platform) handles() []phone.Handle {
	hs := make([]phone.Handle, len(p.types))
	for i := range hs {
		hs[i] = &line{p: p, sub: phone.Subscription(i)}
	}
	return hs
}

// tone.Sink

func (p *platform) StartTone(kind tone.Kind, sub phone.Subscription) error {
	_, err := p.send(context.Background(), wire.PlayToneAction(string(kind), sub))
	return err
}

func (p *platform) StopTone(kind tone.Kind) error {
	_, err := p.send(context.Background(), wire.StopToneAction(string(kind)))
	return err
}

// coordinator.Ringer and coordinator.Audio

func (p *platform) Ring(ctx context.Context, sub phone.Subscription) error {
	_, err := p.send(ctx, wire.RingAction(sub))
	return err
}

func (p *platform) StopRing(ctx context.Context) error {
	_, err := p.send(ctx, wire.StopRingAction())
	return err
}

func (p *platform) Vibrate(ctx context.Context, on bool) error {
	_, err := p.send(ctx, wire.VibrateAction(on))
	return err
}

func (p *platform) ResetAudio(ctx context.Context) error {
	_, err := p.send(ctx, wire.ResetAudioAction())
	return err
}

// xdivert.LineService and xdivert.Identities

func (p *platform) QueryCallForward(ctx context.Context, sub phone.Subscription) (xdivert.ForwardStatus, error) {
	resp, err := p.send(ctx, wire.QueryCallForwardAction(sub))
	if err != nil {
		return xdivert.ForwardStatus{}, err
	}
	return xdivert.ForwardStatus{Enabled: resp.GetBool("Enabled"), Number: resp.Get("Number")}, nil
}

func (p *platform) SetCallForward(ctx context.Context, sub phone.Subscription, enable bool, number string) error {
	_, err := p.send(ctx, wire.SetCallForwardAction(sub, enable, number))
	return err
}

func (p *platform) QueryCallWaiting(ctx context.Context, sub phone.Subscription) (bool, error) {
	resp, err := p.send(ctx, wire.QueryCallWaitingAction(sub))
	if err != nil {
		return false, err
	}
	return resp.GetBool("Enabled"), nil
}

func (p *platform) SetCallWaiting(ctx context.Context, sub phone.Subscription, enable bool) error {
	_, err := p.send(ctx, wire.SetCallWaitingAction(sub, enable))
	return err
}

func (p *platform) Identity(sub phone.Subscription) (xdivert.Identity, bool) {
	info, ok := p.subInfo(sub)
	if !ok || info.IMSI == "" {
		return xdivert.Identity{}, false
	}
	return xdivert.Identity{IMSI: info.IMSI, LineNumber: info.LineNumber}, true
}

// line is the phone.Handle of one slot.
type line struct {
	p   *platform
	sub phone.Subscription
}

func (l *line) Type() phone.PhoneType {
	if info, ok := l.p.subInfo(l.sub); ok && info.PhoneType != "" {
		return info.PhoneType
	}
	return l.p.types[l.sub]
}

func (l *line) Dial(ctx context.Context, number string) error {
	_, err := l.p.send(ctx, wire.DialAction(l.sub, number))
	return err
}

func (l *line) Reject(ctx context.Context, connID string) error {
	_, err := l.p.send(ctx, wire.RejectAction(l.sub, connID))
	return err
}

func (l *line) IsEmergencyNumber(number string) bool {
	return l.p.emergency[number]
}

func (l *line) InEmergencyCallbackMode() bool {
	info, _ := l.p.subInfo(l.sub)
	return info.EmergencyCallbackMode
}

func (l *line) OtaActive() bool {
	info, _ := l.p.subInfo(l.sub)
	return info.OtaActive
}

func (l *line) VoicemailNumber() (string, error) {
	info, ok := l.p.subInfo(l.sub)
	if !ok || !info.RecordsLoaded {
		return "", phone.ErrRecordsNotLoaded
	}
	return info.VoicemailNumber, nil
}
