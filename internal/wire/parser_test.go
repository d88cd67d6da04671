package wire_test

import (
	"strings"
	"testing"

	"github.com/sweeney/msim-telephony/internal/wire"
)

const stream = "Msim Bridge 1.0\r\n" +
	"Event: PhoneStateChanged\r\n" +
	"Subscription: 0\r\n" +
	"LineState: offhook\r\n" +
	"ForegroundState: dialing\r\n" +
	"\r\n" +
	"\r\n" +
	"Event: Disconnect\r\n" +
	"Subscription: 0\r\n" +
	"ConnectionID: c-17\r\n" +
	"Address: 5550111\r\n" +
	"Cause: BUSY\r\n" +
	"LineState: idle\r\n" +
	"\r\n" +
	"Response: Success\r\n" +
	"ActionID: abc\r\n" +
	"\r\n"

func TestParseStream(t *testing.T) {
	frames := wire.ParseBytes([]byte(stream))
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	if frames[0].Type() != "PhoneStateChanged" {
		t.Errorf("expected PhoneStateChanged, got %q", frames[0].Type())
	}
	if frames[0].Get("ForegroundState") != "dialing" {
		t.Errorf("expected ForegroundState=dialing, got %q", frames[0].Get("ForegroundState"))
	}
	if frames[1].Get("Cause") != "BUSY" {
		t.Errorf("expected Cause=BUSY, got %q", frames[1].Get("Cause"))
	}
	if frames[1].GetInt("Subscription") != 0 || !frames[1].Has("Subscription") {
		t.Errorf("expected Subscription=0")
	}
	if !frames[2].IsResponse() || frames[2].Get("ActionID") != "abc" {
		t.Errorf("expected response frame, got %+v", frames[2].Headers())
	}
}

func TestParseLFOnlyAndTrailingFrame(t *testing.T) {
	data := "Event: IncomingRing\nSubscription: 1\n\nEvent: SubscriptionChanged\nSubscription: 0"
	frames := wire.ParseBytes([]byte(data))
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[1].Type() != "SubscriptionChanged" {
		t.Errorf("unterminated final frame not returned: %q", frames[1].Type())
	}
}

func TestParseMalformedLineKept(t *testing.T) {
	frames := wire.ParseBytes([]byte("Event: SignalInfo\r\ngarbage line\r\nSubscription: 0\r\n\r\n"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	h := frames[0].Headers()
	if len(h) != 3 || h[1].Key != "" || h[1].Value != "garbage line" {
		t.Errorf("unexpected headers %+v", h)
	}
}

func TestParseEmpty(t *testing.T) {
	p := wire.NewParser(strings.NewReader(""))
	if _, ok := p.Next(); ok {
		t.Fatal("expected no frame")
	}
	if err := p.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFrameEncodeRoundTrip(t *testing.T) {
	f := wire.NewFrame("Action", "Dial", "Subscription", "1")
	f.Set("Number", "5550111")
	f.Set("Subscription", "0")

	got := string(f.Bytes())
	want := "Action: Dial\r\nSubscription: 0\r\nNumber: 5550111\r\n\r\n"
	if got != want {
		t.Fatalf("encoded %q, want %q", got, want)
	}

	back := wire.ParseBytes(f.Bytes())
	if len(back) != 1 || back[0].Get("Number") != "5550111" {
		t.Fatalf("round trip failed: %+v", back)
	}
}

func TestGetBool(t *testing.T) {
	f := wire.NewFrame("A", "yes", "B", "TRUE", "C", "1", "D", "no", "E", "maybe")
	for key, want := range map[string]bool{"A": true, "B": true, "C": true, "D": false, "E": false, "F": false} {
		if got := f.GetBool(key); got != want {
			t.Errorf("GetBool(%s) = %v, want %v", key, got, want)
		}
	}
}

func TestParserBanner(t *testing.T) {
	p := wire.NewParser(strings.NewReader(stream))
	if _, ok := p.Next(); !ok {
		t.Fatal("expected a frame")
	}
	if got := p.Banner(); got != "Msim Bridge 1.0" {
		t.Errorf("expected banner, got %q", got)
	}

	p = wire.NewParser(strings.NewReader("Event: IncomingRing\r\nSubscription: 0\r\n\r\nstray\r\n\r\n"))
	p.ParseAll()
	if got := p.Banner(); got != "" {
		t.Errorf("line after the first frame taken as banner: %q", got)
	}
}

func TestParserLineTooLong(t *testing.T) {
	long := "Event: SignalInfo\r\nAddress: " + strings.Repeat("9", wire.MaxLineSize) + "\r\n\r\n"
	p := wire.NewParser(strings.NewReader(long))
	p.ParseAll()
	if p.Err() == nil {
		t.Fatal("expected an error for an oversized line")
	}
}
