package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"authgate.org/internal/authz"
	"authgate.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	orig := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(orig) })
	return &buf
}

func TestLogEventEnrichesContext(t *testing.T) {
	buf := captureLog(t)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = authz.ContextWithUser(ctx, "user-1")
	if err := LogEvent(ctx, "otp.generated", map[string]any{"identifier": "a@example.com"}); err != nil {
		t.Fatalf("log event: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry %q: %v", buf.String(), err)
	}
	if entry["type"] != "audit" || entry["event"] != "otp.generated" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-1" || entry["user_id"] != "user-1" {
		t.Fatalf("expected context enrichment, got %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["identifier"] != "a@example.com" {
		t.Fatalf("unexpected fields: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestLogEventWithoutContext(t *testing.T) {
	buf := captureLog(t)
	if err := LogEvent(context.Background(), "security.login", nil); err != nil {
		t.Fatalf("log event: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if _, ok := entry["request_id"]; ok {
		t.Fatal("request_id must be omitted when absent")
	}
	if _, ok := entry["user_id"]; ok {
		t.Fatal("user_id must be omitted when absent")
	}
}
