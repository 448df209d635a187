package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/errors"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestParseLevelAndFormat(t *testing.T) {
	levels := map[string]Level{"debug": LevelDebug, "INFO": LevelInfo, "warning": LevelWarn, "error": LevelError, "bogus": LevelInfo}
	for in, want := range levels {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	formats := map[string]Format{"json": FormatJSON, "TEXT": FormatText, "console": FormatText, "": FormatJSON}
	for in, want := range formats {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom("debug", "text", "1.2.3")
	if cfg.Level != LevelDebug || cfg.Format != FormatText {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.ServiceName != "storefront" || cfg.ServiceVersion != "1.2.3" {
		t.Errorf("unexpected service fields %q %q", cfg.ServiceName, cfg.ServiceVersion)
	}

	if dev := DevelopmentConfig(); !dev.AddSource || dev.Level != LevelDebug {
		t.Errorf("DevelopmentConfig should enable debug with source, got %+v", dev)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at WARN, got %s", buf.String())
	}

	logger.Warn("visible", "key", "value")
	entry := decode(t, &buf)
	if entry["msg"] != "visible" || entry["key"] != "value" {
		t.Errorf("unexpected entry %v", entry)
	}

	if logger.Enabled(context.Background(), LevelDebug) {
		t.Error("debug should be disabled")
	}
}

func TestLoggerServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	New(cfg).Info("hello")

	entry := decode(t, &buf)
	if entry["service"] != "storefront" {
		t.Errorf("expected service attribute, got %v", entry)
	}
}

func TestWithContextRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-42")
	logger.InfoContext(ctx, "handled")

	entry := decode(t, &buf)
	if entry["request_id"] != "req-42" {
		t.Errorf("expected request_id, got %v", entry)
	}
	if RequestID(context.Background()) != "" {
		t.Error("empty context should have no request id")
	}
}

func TestWithError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantSuggs bool
	}{
		{
			name:     "auth error",
			err:      auth.NewError(auth.ErrSessionExpired, auth.MsgSessionExpired, nil),
			wantCode: auth.ErrSessionExpired,
		},
		{
			name:      "storefront error with suggestions",
			err:       errors.NewNotSignedInError(),
			wantCode:  "SESSION-001",
			wantSuggs: true,
		},
		{
			name:     "wrapped auth error",
			err:      fmt.Errorf("login: %w", auth.NewError(auth.ErrInvalidCredentials, auth.MsgInvalidCredentials, nil)),
			wantCode: auth.ErrInvalidCredentials,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("plain"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(Config{Output: &buf}).WithError(tt.err).Error("failed")

			entry := decode(t, &buf)
			if !strings.Contains(fmt.Sprint(entry["error"]), tt.err.Error()) {
				t.Errorf("expected error text, got %v", entry["error"])
			}
			if tt.wantCode == "" {
				if _, ok := entry["error_code"]; ok {
					t.Errorf("plain errors should not carry error_code")
				}
			} else if entry["error_code"] != tt.wantCode {
				t.Errorf("error_code = %v, want %s", entry["error_code"], tt.wantCode)
			}
			if _, ok := entry["suggestions"]; ok != tt.wantSuggs {
				t.Errorf("suggestions present = %v, want %v", ok, tt.wantSuggs)
			}
		})
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	logger.LogError(context.Background(), "ignored", nil)
	if buf.Len() != 0 {
		t.Fatal("nil error should not log")
	}

	logger.LogError(ContextWithRequestID(context.Background(), "r1"), "refresh failed", auth.NewError(auth.ErrRefreshFailed, "refresh rejected", nil))
	entry := decode(t, &buf)
	if entry["msg"] != "refresh failed" || entry["error_code"] != auth.ErrRefreshFailed || entry["request_id"] != "r1" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestDefaultLogger(t *testing.T) {
	original := defaultLogger.Load()
	defer defaultLogger.Store(original)

	defaultLogger.Store(nil)
	if DefaultLogger() == nil {
		t.Fatal("DefaultLogger returned nil")
	}

	custom := Discard()
	SetDefaultLogger(custom)
	if DefaultLogger() != custom {
		t.Error("DefaultLogger did not return the custom logger")
	}
}
