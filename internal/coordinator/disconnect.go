package coordinator

import (
	"context"

	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/tone"
)

// onDisconnect runs the disconnect pipeline. Steps run in a fixed order and
// later steps observe the effects of earlier ones.
func (c *Coordinator) onDisconnect(ctx context.Context, e phone.Disconnect) {
	sub := e.Subscription
	prevForeground := c.prevForeground[sub]
	redialing := c.redialInProgress
	c.redialInProgress = false

	c.tracker.Process(e)
	line := c.reg.Line(sub)
	phoneType := c.reg.PhoneType(sub)
	if phoneType == phone.PhoneTypeCDMA {
		c.prevForeground[sub] = line.ForegroundState
	}
	c.metrics.Disconnect(string(e.Cause))

	if e.Conn == nil {
		c.logger.Warn("disconnect without connection", "subscription", int(sub), "cause", e.Cause)
		c.metrics.Dropped("missing_connection")
		return
	}
	c.logger.Info("call disconnected", "subscription", int(sub), "connection", e.Conn.ID,
		"cause", e.Cause, "incoming", e.Conn.Incoming)

	// 1. signal info
	c.tones.Stop(tone.SignalInfo)

	// 2. CDMA call-waiting bookkeeping
	if phoneType == phone.PhoneTypeCDMA {
		c.cdma[sub] = cdmaCalls{}
		c.cancelTimer(timerKey{timerCallWaitingDisplay, sub})
	}
	if line.Ringing != phone.RingingWaiting {
		c.tones.Stop(tone.CallWaiting)
	}

	// 3. ringer, keeping a CDMA incoming call that collided with this disconnect
	if phoneType == phone.PhoneTypeCDMA && line.State == phone.StateRinging && line.Ringing == phone.RingingIncoming {
		c.logger.Debug("incoming call still ringing, keeping ringer", "subscription", int(sub))
		c.warn("cancel in-call notifications", c.proj.CancelInCallNotifications(ctx))
	} else {
		c.warn("stop ringer", c.ringer.StopRing(ctx))
	}
	if c.callerInfoPending[sub] == e.Conn.ID {
		delete(c.callerInfoPending, sub)
		c.cancelTimer(timerKey{timerCallerInfo, sub})
	}

	// 4. focus and local tones
	if c.active == sub && !line.Busy() {
		if other, ok := c.reg.OtherActiveSubscription(sub); ok {
			c.setActive(ctx, other)
		}
	}
	if !line.Busy() {
		c.stopEmergencyTone(ctx, sub)
	}
	c.recomputeTones()

	// 5. post-disconnect tone
	h, _ := c.reg.Phone(sub)
	kind, playTone := disconnectTone(e.Cause, phoneType, h != nil && h.OtaActive(), line.Busy())

	// 6. audio reset once everything is idle, after the tone if there is one
	if c.reg.AllIdle() {
		c.pendingAudioReset = true
		c.warn("cancel in-call notifications", c.proj.CancelInCallNotifications(ctx))
	}
	if playTone {
		c.tones.Start(kind, sub)
	}
	if c.pendingAudioReset && c.reg.AllIdle() && !c.postDisconnectTonePlaying() {
		c.resetAudio(ctx)
	}

	// 7. CDMA redial
	if phoneType == phone.PhoneTypeCDMA && prevForeground.Outgoing() && e.Cause.NetworkFailure() {
		c.maybeRedial(ctx, sub, e.Conn, redialing)
	}

	// 8. missed call
	if e.Conn.Incoming && e.Cause == phone.CauseIncomingMissed {
		c.warn("show missed call", c.proj.ShowMissedCallNotification(ctx, e.Conn, c.sched.Now()))
	}

	// 9. call-ended screen
	if !line.Busy() {
		c.warn("show call ended", c.proj.ShowCallEnded(ctx, sub, e.Cause))
		c.schedule(timerKey{timerDisconnectCleanup, sub}, c.settings.CallEndedDelay)
	}
}

// disconnectTone picks the single post-disconnect tone for cause. The OTA
// and fallback call-ended tones only apply to regular hang-ups.
func disconnectTone(cause phone.DisconnectCause, phoneType phone.PhoneType, otaActive, stillBusy bool) (tone.Kind, bool) {
	switch cause {
	case phone.CauseBusy:
		return tone.Busy, true
	case phone.CauseCongestion:
		return tone.Congestion, true
	case phone.CauseCdmaReorder:
		return tone.Reorder, true
	case phone.CauseCdmaIntercept:
		return tone.Intercept, true
	case phone.CauseCdmaDrop:
		return tone.CdmaDrop, true
	case phone.CauseOutOfService:
		return tone.OutOfService, true
	case phone.CauseUnobtainableNumber:
		return tone.UnobtainableNumber, true
	case phone.CauseErrorUnspecified:
		return tone.CallEnded, true
	}
	if !cause.Regular() {
		return "", false
	}
	if phoneType == phone.PhoneTypeCDMA && otaActive {
		return tone.OtaCallEnd, true
	}
	if !stillBusy {
		return tone.CallEnded, true
	}
	return "", false
}

// maybeRedial retries a failed outgoing CDMA call once. A disconnect that
// follows a redial never triggers another.
func (c *Coordinator) maybeRedial(ctx context.Context, sub phone.Subscription, conn *phone.Connection, redialing bool) {
	h, ok := c.reg.Phone(sub)
	if !ok || conn.Address == "" {
		return
	}
	if conn.Emergency || h.IsEmergencyNumber(conn.Address) {
		return
	}
	if redialing {
		c.logger.Info("redial failed, giving up", "subscription", int(sub))
		return
	}
	if !c.settings.AutoRetry {
		return
	}
	c.logger.Info("redialing", "subscription", int(sub))
	c.metrics.Redial()
	c.redialInProgress = true
	if err := h.Dial(ctx, conn.Address); err != nil {
		c.logger.Warn("redial failed", "subscription", int(sub), "error", err)
		c.redialInProgress = false
	}
}

// handleToneDone completes a deferred audio reset.
func (c *Coordinator) handleToneDone(ctx context.Context, req tone.Request) {
	c.logger.Debug("tone finished", "kind", req.Kind, "subscription", int(req.Sub))
	if !req.Kind.PostDisconnect() || !c.pendingAudioReset {
		return
	}
	if c.reg.AllIdle() {
		c.resetAudio(ctx)
		return
	}
	c.pendingAudioReset = false
}

func (c *Coordinator) postDisconnectTonePlaying() bool {
	for _, req := range c.tones.Requests() {
		if req.Kind.PostDisconnect() {
			return true
		}
	}
	return false
}

func (c *Coordinator) resetAudio(ctx context.Context) {
	c.pendingAudioReset = false
	c.logger.Debug("resetting audio")
	c.warn("reset audio", c.audio.ResetAudio(ctx))
	c.warn("update audio indicators", c.proj.UpdateAudioIndicators(ctx, false, false))
}
