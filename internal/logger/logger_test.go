package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestWithErrorAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	WithError(WithRequestID(base, "req-1"), errors.New("disk full")).Error("Failed to save")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["error"] != "disk full" {
		t.Errorf("expected error attribute, got %v", entry["error"])
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("expected request_id attribute, got %v", entry["request_id"])
	}
	if entry["msg"] != "Failed to save" {
		t.Errorf("unexpected message %v", entry["msg"])
	}
}
