package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"text", "json", ""} {
		logger := New("debug", format)
		if logger == nil {
			t.Fatalf("expected logger for format %q", format)
		}
	}
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level      string
		debugShown bool
	}{
		{level: "debug", debugShown: true},
		{level: "info", debugShown: false},
		{level: "warn", debugShown: false},
		{level: "unknown", debugShown: false},
	}

	for _, tt := range tests {
		logger := New(tt.level, "text")
		if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debugShown {
			t.Errorf("level %q: debug enabled = %v, want %v", tt.level, got, tt.debugShown)
		}
	}
}

func TestAnonymizeTenant(t *testing.T) {
	id := "3d2700ee-6462-4fdb-a1a6-a46add35bbcc"
	hashed := AnonymizeTenant(id)

	if strings.Contains(hashed, id) {
		t.Error("anonymized tenant still contains the raw id")
	}
	if hashed != AnonymizeTenant(id) {
		t.Error("anonymization must be stable for correlation")
	}
	if hashed == AnonymizeTenant("another-tenant") {
		t.Error("different tenants must not collide")
	}
}

func TestSanitizeToken(t *testing.T) {
	token := "very-secret-session-token"
	sanitized := SanitizeToken(token)
	if strings.Contains(sanitized, token) {
		t.Error("sanitized form contains the token")
	}
	if !strings.Contains(sanitized, "25") {
		t.Errorf("sanitized form should carry the length, got %q", sanitized)
	}
}

func TestErr_Nil(t *testing.T) {
	// A nil error attr must not panic and must not log an error key.
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("ok", Err(nil))

	if strings.Contains(buf.String(), KeyError) {
		t.Errorf("nil error leaked into output: %s", buf.String())
	}
}

func TestTenantAttr_Anonymized(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	id := "3d2700ee-6462-4fdb-a1a6-a46add35bbcc"
	logger.Info("request", Tenant(id))

	if strings.Contains(buf.String(), id) {
		t.Errorf("raw tenant id leaked into log output: %s", buf.String())
	}
}
