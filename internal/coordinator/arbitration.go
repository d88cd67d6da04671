package coordinator

import (
	"context"

	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/tone"
	"github.com/sweeney/msim-telephony/internal/tracker"
)

func (c *Coordinator) onNewRingingConnection(ctx context.Context, e phone.NewRingingConnection) {
	sub := e.Subscription
	if e.Conn == nil {
		c.logger.Warn("new ringing connection without connection", "subscription", int(sub))
		c.metrics.Dropped("missing_connection")
		return
	}
	if e.Conn.State != phone.ConnIncoming && e.Conn.State != phone.ConnWaiting {
		c.logger.Warn("new ringing connection is not ringing",
			"subscription", int(sub), "connection", e.Conn.ID, "state", e.Conn.State)
		return
	}

	if c.ignoreIncoming(sub) {
		c.logger.Info("rejecting incoming call by policy", "subscription", int(sub), "connection", e.Conn.ID)
		c.metrics.IncomingRejected()
		if h, ok := c.reg.Phone(sub); ok {
			c.warn("reject incoming call", h.Reject(ctx, e.Conn.ID))
		}
		return
	}

	c.tracker.Process(e)
	c.tones.Stop(tone.SignalInfo)
	c.setActive(ctx, sub)

	if e.Conn.CallWaiting() {
		if c.reg.PhoneType(sub) == phone.PhoneTypeCDMA {
			c.cdma[sub].callWaiting = true
		}
		c.tones.Start(tone.CallWaiting, sub)
		c.warn("show incoming call", c.proj.ShowIncomingCall(ctx, sub))
		c.warn("update in-call notification", c.proj.UpdateInCallNotification(ctx, sub, false))
		c.schedule(timerKey{timerCallWaitingDisplay, sub}, c.settings.CallWaitingDisplay)
	} else {
		c.beginCallerInfo(ctx, sub, e.Conn)
	}
	c.recomputeTones()
}

// ignoreIncoming applies device policy and emergency callback mode on any
// other subscription.
func (c *Coordinator) ignoreIncoming(sub phone.Subscription) bool {
	if c.policy != nil && c.policy.BlockIncoming(sub) {
		return true
	}
	for _, other := range c.reg.Subscriptions() {
		if other == sub {
			continue
		}
		if h, ok := c.reg.Phone(other); ok && h.InEmergencyCallbackMode() {
			return true
		}
	}
	return false
}

// beginCallerInfo defers the ringer until caller-ID resolves or
// CallerInfoTimeout elapses, whichever comes first.
func (c *Coordinator) beginCallerInfo(ctx context.Context, sub phone.Subscription, conn *phone.Connection) {
	if c.callerInfo == nil {
		c.callerInfoPending[sub] = conn.ID
		c.startRinging(ctx, sub, conn.ID)
		return
	}
	c.callerInfoPending[sub] = conn.ID
	c.schedule(timerKey{timerCallerInfo, sub}, c.settings.CallerInfoTimeout)

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.settings.CallerInfoTimeout)
	go func() {
		defer cancel()
		name, err := c.callerInfo.Lookup(lookupCtx, sub, conn)
		c.enqueue(callerInfoDone{sub: sub, connID: conn.ID, name: name, err: err})
	}()
}

func (c *Coordinator) handleCallerInfo(ctx context.Context, d callerInfoDone) {
	if d.err != nil {
		c.logger.Warn("caller info lookup failed", "subscription", int(d.sub), "error", d.err)
	} else {
		c.logger.Debug("caller info resolved", "subscription", int(d.sub), "name", d.name)
	}
	c.startRinging(ctx, d.sub, d.connID)
}

// startRinging starts the ringer and incoming-call UI for connID if it is
// still the pending lookup and the subscription is still ringing.
func (c *Coordinator) startRinging(ctx context.Context, sub phone.Subscription, connID string) {
	if pending, ok := c.callerInfoPending[sub]; !ok || pending != connID {
		return
	}
	delete(c.callerInfoPending, sub)
	c.cancelTimer(timerKey{timerCallerInfo, sub})

	if c.reg.State(sub) != phone.StateRinging {
		return
	}
	c.warn("start ringer", c.ringer.Ring(ctx, sub))
	c.warn("show incoming call", c.proj.ShowIncomingCall(ctx, sub))
	c.warn("update in-call notification", c.proj.UpdateInCallNotification(ctx, sub, true))
}

// onIncomingRing repeats the ring for a genuine incoming call once caller
// info has resolved.
func (c *Coordinator) onIncomingRing(ctx context.Context, e phone.IncomingRing) {
	sub := e.Subscription
	line := c.reg.Line(sub)
	if line.State != phone.StateRinging || line.Ringing == phone.RingingWaiting {
		return
	}
	if _, waiting := c.callerInfoPending[sub]; waiting {
		return
	}
	c.warn("ring", c.ringer.Ring(ctx, sub))
}

func (c *Coordinator) onPhoneStateChanged(ctx context.Context, e phone.PhoneStateChanged) {
	sub := e.Subscription
	prev := c.reg.Line(sub)
	changes := c.tracker.Process(e)
	line := c.reg.Line(sub)

	if c.reg.PhoneType(sub) == phone.PhoneTypeCDMA {
		if line.ForegroundState == phone.ConnActive && c.prevForeground[sub].Outgoing() {
			c.tones.Stop(tone.SignalInfo)
			if c.redialInProgress {
				c.logger.Info("redial connected", "subscription", int(sub))
				c.redialInProgress = false
			}
		}
		c.prevForeground[sub] = line.ForegroundState
	}

	for _, ch := range changes {
		c.applyStateChange(ctx, ch)
	}
	if prev.State == phone.StateRinging && line.State != phone.StateRinging {
		delete(c.callerInfoPending, sub)
		c.cancelTimer(timerKey{timerCallerInfo, sub})
	}

	c.manageEmergencyTone(ctx, sub, line)
	c.recomputeTones()
}

func (c *Coordinator) applyStateChange(ctx context.Context, ch tracker.StateChange) {
	sub := ch.Sub
	if ch.Old == phone.StateIdle && c.pendingAudioReset {
		c.logger.Debug("line busy again, dropping pending audio reset", "subscription", int(sub))
		c.pendingAudioReset = false
	}
	switch ch.New {
	case phone.StateOffhook:
		if ch.Old == phone.StateRinging {
			c.warn("stop ringer", c.ringer.StopRing(ctx))
		}
		c.cancelTimer(timerKey{timerDisconnectCleanup, sub})
		c.setActive(ctx, sub)
		c.warn("update in-call notification", c.proj.UpdateInCallNotification(ctx, sub, false))
	case phone.StateIdle:
		if c.active == sub {
			if other, ok := c.reg.OtherActiveSubscription(sub); ok {
				c.setActive(ctx, other)
			}
		}
	}
}

func (c *Coordinator) onSubscriptionChanged(ctx context.Context, e phone.SubscriptionChanged) {
	sub := e.Subscription
	if sub == c.active {
		return
	}
	c.setActive(ctx, sub)

	other, busy := c.reg.OtherActiveSubscription(sub)
	if !busy {
		other = phone.NoSubscription
	}
	c.tones.Restart(sub, other, c.reg.AnyRinging())
	c.recomputeLocalCallWaiting()
}

func (c *Coordinator) onSignalInfo(e phone.SignalInfo) {
	sub := e.Subscription
	line := c.reg.Line(sub)
	if line.State == phone.StateRinging && line.Ringing == phone.RingingIncoming {
		c.tones.Stop(tone.SignalInfo)
		return
	}
	if !e.Present {
		c.tones.Stop(tone.SignalInfo)
		return
	}
	c.logger.Debug("signal info", "subscription", int(sub),
		"type", e.SignalType, "pitch", e.AlertPitch, "signal", e.Signal)
	c.tones.Stop(tone.SignalInfo)
	c.tones.Start(tone.SignalInfo, sub)
}

// setActive moves audio and UI focus to sub.
func (c *Coordinator) setActive(ctx context.Context, sub phone.Subscription) {
	if sub == c.active {
		return
	}
	c.logger.Info("active subscription changed", "from", int(c.active), "to", int(sub))
	c.active = sub
	c.metrics.ActiveSubscription(int(sub))
	c.warn("set active subscription", c.proj.SetActiveSubscription(ctx, sub))
}

// recomputeTones re-derives the local call-waiting and hold tones from the
// registry.
func (c *Coordinator) recomputeTones() {
	c.recomputeLocalCallWaiting()

	other, busy := c.reg.OtherActiveSubscription(c.active)
	if !busy {
		other = phone.NoSubscription
	}
	c.tones.Manage(c.active, other, c.reg.AnyRinging())
}

// recomputeLocalCallWaiting plays the local call-waiting tone on the
// active subscription while it has a connected call and another one is
// ringing.
func (c *Coordinator) recomputeLocalCallWaiting() {
	if c.active != phone.NoSubscription && c.reg.Line(c.active).HasActiveCall() {
		if c.reg.AnyRinging() {
			if live, ok := c.tones.Live(tone.LocalCallWaiting); ok && live.Sub != c.active {
				c.tones.Stop(tone.LocalCallWaiting)
			}
			c.tones.Start(tone.LocalCallWaiting, c.active)
			return
		}
	}
	c.tones.Stop(tone.LocalCallWaiting)
}

// manageEmergencyTone follows the emergency tone policy for CDMA
// emergency calls.
func (c *Coordinator) manageEmergencyTone(ctx context.Context, sub phone.Subscription, line phone.LineStatus) {
	if c.reg.PhoneType(sub) != phone.PhoneTypeCDMA {
		return
	}
	policy := c.settings.EmergencyTone
	if line.State == phone.StateOffhook && line.Emergency {
		if policy.Alert() {
			c.tones.Start(tone.Emergency, sub)
		}
		if policy.Vibrate() && c.emergencyVibrate == phone.NoSubscription {
			c.emergencyVibrate = sub
			c.warn("start vibrate", c.ringer.Vibrate(ctx, true))
		}
		return
	}
	c.stopEmergencyTone(ctx, sub)
}

// stopEmergencyTone ends emergency feedback started for sub.
func (c *Coordinator) stopEmergencyTone(ctx context.Context, sub phone.Subscription) {
	if req, ok := c.tones.Live(tone.Emergency); ok && req.Sub == sub {
		c.tones.Stop(tone.Emergency)
	}
	if c.emergencyVibrate == sub {
		c.emergencyVibrate = phone.NoSubscription
		c.warn("stop vibrate", c.ringer.Vibrate(ctx, false))
	}
}
