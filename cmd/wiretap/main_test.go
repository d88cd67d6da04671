package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const capture1 = "Msim Bridge 1.0 on 192.168.4.20\r\n" +
	"Event: SubscriptionInfo\r\n" +
	"Subscription: 0\r\n" +
	"IMSI: 310150123456789\r\n" +
	"LineNumber: +14155550123\r\n" +
	"VoicemailNumber: *86\r\n" +
	"\r\n" +
	"Event: NewRingingConnection\r\n" +
	"Subscription: 0\r\n" +
	"Address: 4085550199\r\n" +
	"\r\n" +
	"Event: Disconnect\r\n" +
	"Subscription: 0\r\n" +
	"Address: 4085550199\r\n" +
	"\r\n" +
	"Event: Disconnect\r\n" +
	"Subscription: 1\r\n" +
	"Address: 911\r\n" +
	"\r\n"

func TestSanitizeCapture(t *testing.T) {
	got := string(sanitizeCapture([]byte(capture1)))

	for _, secret := range []string{"310150123456789", "+14155550123", "4085550199", "192.168.4.20"} {
		if strings.Contains(got, secret) {
			t.Errorf("sanitized capture still contains %s", secret)
		}
	}
	if !strings.Contains(got, "IMSI: 001010000000001\r\n") {
		t.Errorf("expected test IMSI, got:\n%s", got)
	}
	if !strings.Contains(got, "LineNumber: 15550000001\r\n") {
		t.Errorf("expected replaced line number, got:\n%s", got)
	}
	if strings.Count(got, "Address: 15550000002\r\n") != 2 {
		t.Errorf("expected the same caller replaced consistently, got:\n%s", got)
	}
	if !strings.Contains(got, "VoicemailNumber: *86") || !strings.Contains(got, "Address: 911\r\n") {
		t.Errorf("short codes should be kept, got:\n%s", got)
	}
	if !strings.Contains(got, "10.0.0.1") {
		t.Errorf("expected redacted IP, got:\n%s", got)
	}
}

func TestSanitizeFileKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.raw")
	if err := os.WriteFile(path, []byte(capture1), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := sanitizeFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatal(err)
	}
	if string(bak) != capture1 {
		t.Error("backup does not match original")
	}
	out, _ := os.ReadFile(path)
	if strings.Contains(string(out), "310150123456789") {
		t.Error("file was not sanitized")
	}
}
