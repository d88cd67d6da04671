package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/msim-telephony/internal/notify"
	"github.com/sweeney/msim-telephony/internal/phone"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newProjector() (*notify.MQTTProjector, *notify.MockPublisher) {
	pub := notify.NewMockPublisher()
	return notify.NewProjector(pub, "phone", notify.WithProjectorClock(func() time.Time { return fixedNow })), pub
}

func decode(t *testing.T, msg notify.Message) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &m))
	return m
}

func TestIncomingCallTopic(t *testing.T) {
	p, pub := newProjector()
	require.NoError(t, p.ShowIncomingCall(context.Background(), 1))

	msgs := pub.Topic("phone/sub/1/incoming")
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Retained)
	body := decode(t, msgs[0])
	assert.Equal(t, "incoming_call", body["event"])
	assert.Equal(t, 1.0, body["subscription"])
	assert.Equal(t, "2026-03-01T09:30:00Z", body["timestamp"])
}

func TestInCallNotificationLifecycle(t *testing.T) {
	p, pub := newProjector()
	ctx := context.Background()
	require.NoError(t, p.UpdateInCallNotification(ctx, 0, true))
	require.NoError(t, p.CancelInCallNotifications(ctx))

	msgs := pub.Topic("phone/in_call")
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Retained)

	shown := decode(t, msgs[0])
	assert.Equal(t, true, shown["visible"])
	assert.Equal(t, true, shown["full_screen"])

	cancelled := decode(t, msgs[1])
	assert.Equal(t, false, cancelled["visible"])
	_, hasSub := cancelled["subscription"]
	assert.False(t, hasSub)
}

func TestIndicatorsAreRetained(t *testing.T) {
	p, pub := newProjector()
	ctx := context.Background()
	require.NoError(t, p.UpdateVoicemailIndicator(ctx, 0, true, "+15550001234"))
	require.NoError(t, p.UpdateCallForwardIndicator(ctx, 1, true))
	require.NoError(t, p.UpdateXDivertIndicator(ctx, false))
	require.NoError(t, p.UpdateAudioIndicators(ctx, false, false))
	require.NoError(t, p.SetActiveSubscription(ctx, 1))

	for _, m := range pub.Messages() {
		assert.True(t, m.Retained, m.Topic)
	}
	vm := decode(t, pub.Topic("phone/sub/0/indicator/voicemail")[0])
	assert.Equal(t, "+15550001234", vm["number"])
	xd := decode(t, pub.Topic("phone/indicator/xdivert")[0])
	assert.Equal(t, false, xd["active"])
}

func TestMissedCallCarriesConnection(t *testing.T) {
	p, pub := newProjector()
	conn := &phone.Connection{ID: "c9", Address: "5551234", Incoming: true}
	require.NoError(t, p.ShowMissedCallNotification(context.Background(), conn, fixedNow.Add(-time.Minute)))

	body := decode(t, pub.Topic("phone/missed_call")[0])
	assert.Equal(t, "5551234", body["number"])
	assert.Equal(t, "c9", body["connection_id"])
	assert.Equal(t, "2026-03-01T09:29:00Z", body["at"])

	assert.Error(t, p.ShowMissedCallNotification(context.Background(), nil, fixedNow))
}

func TestPublishErrorWrapped(t *testing.T) {
	p, pub := newProjector()
	down := errors.New("broker down")
	pub.FailTopics("phone/sub/0/", down)

	err := p.ShowCallEnded(context.Background(), 0, phone.CauseBusy)
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "phone/sub/0/screen")
}
