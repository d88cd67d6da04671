package coordinator

import (
	"context"
	"time"

	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/sched"
	"github.com/sweeney/msim-telephony/internal/tone"
)

type timerPurpose int

const (
	timerCallerInfo timerPurpose = iota
	timerCallWaitingDisplay
	timerDisconnectCleanup
	timerVoicemailRetry
)

func (p timerPurpose) String() string {
	switch p {
	case timerCallerInfo:
		return "caller_info"
	case timerCallWaitingDisplay:
		return "call_waiting_display"
	case timerDisconnectCleanup:
		return "disconnect_cleanup"
	case timerVoicemailRetry:
		return "voicemail_retry"
	}
	return "unknown"
}

// timerKey identifies a delayed action. Scheduling a key that is already
// pending supersedes the earlier timer.
type timerKey struct {
	purpose timerPurpose
	sub     phone.Subscription
}

type pendingTimer struct {
	timer sched.Timer
	seq   uint64
}

type timerFired struct {
	key timerKey
	seq uint64
}

func (c *Coordinator) schedule(key timerKey, d time.Duration) {
	c.cancelTimer(key)
	c.timerSeq++
	seq := c.timerSeq
	t := c.sched.AfterFunc(d, func() {
		c.enqueue(timerFired{key: key, seq: seq})
	})
	c.timers[key] = pendingTimer{timer: t, seq: seq}
}

func (c *Coordinator) cancelTimer(key timerKey) {
	if p, ok := c.timers[key]; ok {
		p.timer.Stop()
		delete(c.timers, key)
	}
}

func (c *Coordinator) timerPending(key timerKey) bool {
	_, ok := c.timers[key]
	return ok
}

func (c *Coordinator) handleTimer(ctx context.Context, f timerFired) {
	p, ok := c.timers[f.key]
	if !ok || p.seq != f.seq {
		// cancelled or superseded after the timer had already fired
		return
	}
	delete(c.timers, f.key)
	c.logger.Debug("timer fired", "purpose", f.key.purpose, "subscription", int(f.key.sub))

	switch f.key.purpose {
	case timerCallerInfo:
		c.logger.Info("caller info lookup timed out", "subscription", int(f.key.sub))
		c.startRinging(ctx, f.key.sub, c.callerInfoPending[f.key.sub])
	case timerCallWaitingDisplay:
		c.cdma[f.key.sub].callWaiting = false
		c.tones.Stop(tone.CallWaiting)
		if c.reg.Line(f.key.sub).Busy() {
			c.warn("update in-call notification", c.proj.UpdateInCallNotification(ctx, f.key.sub, false))
		}
	case timerDisconnectCleanup:
		if !c.reg.Line(f.key.sub).Busy() {
			c.warn("dismiss in-call screen", c.proj.DismissInCallScreen(ctx, f.key.sub))
		}
	case timerVoicemailRetry:
		c.lookupVoicemail(ctx, f.key.sub)
	}
}
