package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sweeney/msim-telephony/internal/metrics"
	"github.com/sweeney/msim-telephony/internal/phone"
	"github.com/sweeney/msim-telephony/internal/wire"
)

// poster accepts decoded platform events; *coordinator.Coordinator
// satisfies it.
type poster interface {
	Post(ctx context.Context, evt phone.Event) error
}

// bridge turns platform frames into coordinator events.
type bridge struct {
	platform *platform
	events   poster
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// ready runs once, after every slot has reported its SIM.
	ready     func(ctx context.Context)
	readyOnce sync.Once
}

// handleFrame decodes one unsolicited frame. Unknown events are ignored
// and malformed ones dropped.
func (b *bridge) handleFrame(ctx context.Context, f wire.Frame) {
	if f.Type() == "SubscriptionInfo" {
		info, err := wire.DecodeSubscriptionInfo(f)
		if err != nil {
			b.logger.Warn("dropping malformed subscription info", "error", err)
			b.metrics.Dropped("malformed")
			return
		}
		b.logger.Info("subscription info", "subscription", int(info.Subscription),
			"phone_type", info.PhoneType, "records_loaded", info.RecordsLoaded)
		if b.platform.updateInfo(info) && b.ready != nil {
			b.readyOnce.Do(func() { go b.ready(ctx) })
		}
		return
	}

	evt, err := wire.Decode(f)
	if errors.Is(err, wire.ErrUnknownEvent) {
		b.logger.Debug("ignoring event", "event", f.Type())
		return
	}
	if err != nil {
		b.logger.Warn("dropping malformed event", "event", f.Type(), "error", err)
		b.metrics.Dropped("malformed")
		return
	}
	if err := b.events.Post(ctx, evt); err != nil {
		b.logger.Warn("event not delivered", "event", evt.Name(), "error", err)
	}
}

// run keeps a platform session open until ctx is cancelled, reconnecting
// after interval whenever it drops.
func (b *bridge) run(ctx context.Context, addr string, interval time.Duration) {
	for {
		err := b.runSession(ctx, addr)
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("platform session ended", "error", err, "retry_in", interval)
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
	}
}

func (b *bridge) runSession(ctx context.Context, addr string) error {
	b.logger.Info("connecting to platform", "addr", addr)

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial platform: %w", err)
	}
	defer conn.Close()

	// Close connection when context is cancelled
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client := wire.NewClient(conn, wire.WithClientLogger(b.logger))
	b.platform.attach(client)
	defer b.platform.detach(client)

	b.logger.Info("platform connected, processing events")
	return client.Serve(func(f wire.Frame) { b.handleFrame(ctx, f) })
}
