package coordinator

import (
	"context"
	"errors"

	"github.com/sweeney/msim-telephony/internal/phone"
)

func (c *Coordinator) onMessageWaiting(ctx context.Context, e phone.MessageWaiting) {
	sub := e.Subscription
	key := timerKey{timerVoicemailRetry, sub}
	c.cancelTimer(key)
	delete(c.voicemailAttempts, sub)

	if !e.Waiting {
		c.warn("update voicemail indicator", c.proj.UpdateVoicemailIndicator(ctx, sub, false, ""))
		return
	}
	c.lookupVoicemail(ctx, sub)
}

// lookupVoicemail shows the voicemail indicator with the subscription's
// voicemail number. While SIM records are still loading the lookup is
// retried up to VoicemailRetryLimit times; after that the indicator is
// shown without a number.
func (c *Coordinator) lookupVoicemail(ctx context.Context, sub phone.Subscription) {
	h, ok := c.reg.Phone(sub)
	if !ok {
		return
	}
	number, err := h.VoicemailNumber()
	if errors.Is(err, phone.ErrRecordsNotLoaded) {
		attempt := c.voicemailAttempts[sub]
		if attempt < c.settings.VoicemailRetryLimit {
			c.voicemailAttempts[sub] = attempt + 1
			c.logger.Debug("voicemail number not ready, retrying",
				"subscription", int(sub), "attempt", attempt+1)
			c.schedule(timerKey{timerVoicemailRetry, sub}, c.settings.VoicemailRetryDelay)
			return
		}
		c.logger.Warn("voicemail number unavailable after retries", "subscription", int(sub))
		number = ""
	} else if err != nil {
		c.logger.Warn("voicemail number lookup failed", "subscription", int(sub), "error", err)
		number = ""
	}
	delete(c.voicemailAttempts, sub)
	c.warn("update voicemail indicator", c.proj.UpdateVoicemailIndicator(ctx, sub, true, number))
}
