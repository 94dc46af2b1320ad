package cmd

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestKeygen(t *testing.T) {
	cmd := newKeygenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("keygen failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 output lines, got %d: %q", len(lines), out.String())
	}

	masterKey := strings.TrimPrefix(lines[0], "FITGATE_MASTER_KEY=")
	if masterKey == lines[0] {
		t.Fatalf("first line missing FITGATE_MASTER_KEY prefix: %q", lines[0])
	}
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		t.Fatalf("master key is not base64: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected 32-byte master key, got %d", len(key))
	}

	signingSecret := strings.TrimPrefix(lines[1], "FITGATE_SIGNING_SECRET=")
	if signingSecret == lines[1] {
		t.Fatalf("second line missing FITGATE_SIGNING_SECRET prefix: %q", lines[1])
	}
	secret, err := base64.StdEncoding.DecodeString(signingSecret)
	if err != nil {
		t.Fatalf("signing secret is not base64: %v", err)
	}
	if len(secret) != signingSecretSize {
		t.Errorf("expected %d-byte signing secret, got %d", signingSecretSize, len(secret))
	}
}

func TestKeygen_OutputVaries(t *testing.T) {
	run := func() string {
		cmd := newKeygenCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("keygen failed: %v", err)
		}
		return out.String()
	}

	if run() == run() {
		t.Error("two keygen runs produced identical secrets")
	}
}
