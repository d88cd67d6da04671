// Package notify projects coordinator decisions onto status indicators and
// notifications, published over MQTT for the UI process to render.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/msim-telephony/internal/phone"
)

// Projector is everything the coordinator asks the UI side to show.
type Projector interface {
	ShowIncomingCall(ctx context.Context, sub phone.Subscription) error
	UpdateInCallNotification(ctx context.Context, sub phone.Subscription, allowFullScreenLaunch bool) error
	CancelInCallNotifications(ctx context.Context) error
	SetActiveSubscription(ctx context.Context, sub phone.Subscription) error
	ShowMissedCallNotification(ctx context.Context, conn *phone.Connection, at time.Time) error
	ShowCallEnded(ctx context.Context, sub phone.Subscription, cause phone.DisconnectCause) error
	DismissInCallScreen(ctx context.Context, sub phone.Subscription) error
	UpdateVoicemailIndicator(ctx context.Context, sub phone.Subscription, visible bool, number string) error
	UpdateCallForwardIndicator(ctx context.Context, sub phone.Subscription, forwarding bool) error
	UpdateAudioIndicators(ctx context.Context, speaker, muted bool) error
	UpdateXDivertIndicator(ctx context.Context, active bool) error
}

// MQTTProjector publishes projections as JSON under a topic prefix.
type MQTTProjector struct {
	pub    Publisher
	prefix string
	clock  func() time.Time
}

// ProjectorOption configures an MQTTProjector.
type ProjectorOption func(*MQTTProjector)

// WithProjectorClock sets the timestamp source.
func WithProjectorClock(c func() time.Time) ProjectorOption {
	return func(p *MQTTProjector) { p.clock = c }
}

// NewProjector creates an MQTTProjector publishing through pub.
func NewProjector(pub Publisher, prefix string, opts ...ProjectorOption) *MQTTProjector {
	p := &MQTTProjector{pub: pub, prefix: prefix, clock: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type payload struct {
	Event        string `json:"event"`
	Subscription *int   `json:"subscription,omitempty"`
	Timestamp    string `json:"timestamp"`

	Visible    *bool  `json:"visible,omitempty"`
	FullScreen *bool  `json:"full_screen,omitempty"`
	Number     string `json:"number,omitempty"`
	Connection string `json:"connection_id,omitempty"`
	Cause      string `json:"cause,omitempty"`
	Speaker    *bool  `json:"speaker,omitempty"`
	Muted      *bool  `json:"muted,omitempty"`
	Active     *bool  `json:"active,omitempty"`
	At         string `json:"at,omitempty"`
}

func (p *MQTTProjector) subTopic(sub phone.Subscription, leaf string) string {
	return fmt.Sprintf("%s/sub/%d/%s", p.prefix, int(sub), leaf)
}

func (p *MQTTProjector) publish(ctx context.Context, topic string, retained bool, pl payload) error {
	pl.Timestamp = p.clock().UTC().Format(time.RFC3339)
	data, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", pl.Event, err)
	}
	if err := p.pub.Publish(ctx, Message{Topic: topic, Payload: data, Retained: retained}); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

func intp(sub phone.Subscription) *int { v := int(sub); return &v }
func boolp(b bool) *bool               { return &b }

func (p *MQTTProjector) ShowIncomingCall(ctx context.Context, sub phone.Subscription) error {
	return p.publish(ctx, p.subTopic(sub, "incoming"), false, payload{
		Event: "incoming_call", Subscription: intp(sub),
	})
}

func (p *MQTTProjector) UpdateInCallNotification(ctx context.Context, sub phone.Subscription, allowFullScreenLaunch bool) error {
	return p.publish(ctx, p.prefix+"/in_call", true, payload{
		Event: "in_call", Subscription: intp(sub),
		Visible: boolp(true), FullScreen: boolp(allowFullScreenLaunch),
	})
}

func (p *MQTTProjector) CancelInCallNotifications(ctx context.Context) error {
	return p.publish(ctx, p.prefix+"/in_call", true, payload{
		Event: "in_call", Visible: boolp(false),
	})
}

func (p *MQTTProjector) SetActiveSubscription(ctx context.Context, sub phone.Subscription) error {
	return p.publish(ctx, p.prefix+"/active_subscription", true, payload{
		Event: "active_subscription", Subscription: intp(sub),
	})
}

func (p *MQTTProjector) ShowMissedCallNotification(ctx context.Context, conn *phone.Connection, at time.Time) error {
	if conn == nil {
		return fmt.Errorf("missed call notification without connection")
	}
	return p.publish(ctx, p.prefix+"/missed_call", false, payload{
		Event: "missed_call", Number: conn.Address, Connection: conn.ID,
		At: at.UTC().Format(time.RFC3339),
	})
}

func (p *MQTTProjector) ShowCallEnded(ctx context.Context, sub phone.Subscription, cause phone.DisconnectCause) error {
	return p.publish(ctx, p.subTopic(sub, "screen"), false, payload{
		Event: "call_ended", Subscription: intp(sub), Cause: string(cause),
	})
}

func (p *MQTTProjector) DismissInCallScreen(ctx context.Context, sub phone.Subscription) error {
	return p.publish(ctx, p.subTopic(sub, "screen"), false, payload{
		Event: "dismissed", Subscription: intp(sub),
	})
}

func (p *MQTTProjector) UpdateVoicemailIndicator(ctx context.Context, sub phone.Subscription, visible bool, number string) error {
	return p.publish(ctx, p.subTopic(sub, "indicator/voicemail"), true, payload{
		Event: "voicemail", Subscription: intp(sub), Visible: boolp(visible), Number: number,
	})
}

func (p *MQTTProjector) UpdateCallForwardIndicator(ctx context.Context, sub phone.Subscription, forwarding bool) error {
	return p.publish(ctx, p.subTopic(sub, "indicator/call_forward"), true, payload{
		Event: "call_forward", Subscription: intp(sub), Visible: boolp(forwarding),
	})
}

func (p *MQTTProjector) UpdateAudioIndicators(ctx context.Context, speaker, muted bool) error {
	return p.publish(ctx, p.prefix+"/indicator/audio", true, payload{
		Event: "audio", Speaker: boolp(speaker), Muted: boolp(muted),
	})
}

func (p *MQTTProjector) UpdateXDivertIndicator(ctx context.Context, active bool) error {
	return p.publish(ctx, p.prefix+"/indicator/xdivert", true, payload{
		Event: "xdivert", Active: boolp(active),
	})
}
