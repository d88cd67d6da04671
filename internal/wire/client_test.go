package wire_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/msim-telephony/internal/wire"
)

// bridge is the platform end of a net.Pipe.
type bridge struct {
	conn   net.Conn
	parser *wire.Parser
}

func newPair(t *testing.T) (*wire.Client, *bridge, chan wire.Frame, chan error) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})

	c := wire.NewClient(local)
	events := make(chan wire.Frame, 8)
	served := make(chan error, 1)
	go func() { served <- c.Serve(func(f wire.Frame) { events <- f }) }()
	return c, &bridge{conn: remote, parser: wire.NewParser(remote)}, events, served
}

func (b *bridge) read(t *testing.T) wire.Frame {
	t.Helper()
	f, ok := b.parser.Next()
	require.True(t, ok, "bridge expected a frame")
	return f
}

func TestSendMatchesResponseByActionID(t *testing.T) {
	c, b, events, _ := newPair(t)

	go func() {
		f, ok := b.parser.Next()
		if !ok {
			return
		}
		// an event interleaved before the response
		b.conn.Write(wire.NewFrame("Event", "IncomingRing", "Subscription", "0").Bytes())
		b.conn.Write(wire.NewFrame("Response", "Success", "ActionID", "someone-else").Bytes())
		b.conn.Write(wire.NewFrame("Response", "Success", "ActionID", f.Get("ActionID"),
			"Enabled", "yes", "Number", "5550002").Bytes())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Send(ctx, wire.QueryCallForwardAction(1))
	require.NoError(t, err)
	assert.Equal(t, "5550002", resp.Get("Number"))
	assert.True(t, resp.GetBool("Enabled"))

	select {
	case evt := <-events:
		assert.Equal(t, "IncomingRing", evt.Type())
	case <-time.After(time.Second):
		t.Fatal("event not delivered to handler")
	}
}

func TestSendErrorResponse(t *testing.T) {
	c, b, _, _ := newPair(t)
	go func() {
		f, ok := b.parser.Next()
		if !ok {
			return
		}
		b.conn.Write(wire.NewFrame("Response", "Error", "ActionID", f.Get("ActionID"), "Message", "radio off").Bytes())
	}()

	_, err := c.Send(context.Background(), wire.SetCallWaitingAction(0, true))
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrActionFailed)
	assert.Contains(t, err.Error(), "radio off")
}

func TestSendContextCancelled(t *testing.T) {
	c, b, _, _ := newPair(t)
	go b.parser.Next() // consume the action, never answer

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Send(ctx, wire.RingAction(0))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServeEndsOnClose(t *testing.T) {
	c, b, _, served := newPair(t)

	sendErr := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), wire.StopRingAction())
		sendErr <- err
	}()
	b.read(t)
	b.conn.Close()

	select {
	case err := <-served:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	select {
	case err := <-sendErr:
		assert.ErrorIs(t, err, wire.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending Send not released")
	}

	_, err := c.Send(context.Background(), wire.StopRingAction())
	assert.ErrorIs(t, err, wire.ErrClosed)
	assert.Error(t, c.Err())
}
