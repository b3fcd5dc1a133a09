package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNewJSONWritesStructuredLines checks component loggers emit JSON fields.
func TestNewJSONWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Format: "json", Out: &buf})
	if err != nil {
		t.Fatal(err)
	}

	coordinatorLog := log.Component("coordinator")
	coordinatorLog.Info().Str("phase", "recognizing").Msg("transition")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if entry["component"] != "coordinator" || entry["phase"] != "recognizing" {
		t.Errorf("entry = %v", entry)
	}
}

// TestNewAutoFormatOnBufferIsJSON picks JSON when the output is not a terminal.
func TestNewAutoFormatOnBufferIsJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Out: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("got %q, want JSON line", buf.String())
	}
}

// TestNewRespectsLevel drops entries below the configured level.
func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Format: "json", Out: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("got %q, want nothing below warn", buf.String())
	}
}

// TestNewRejectsUnknownFormat fails on unknown formats and levels.
func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected format error")
	}
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected level error")
	}
}

// TestNewWritesLogFile mirrors entries into the log directory.
func TestNewWritesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	log, err := New(Options{Format: "json", Dir: dir, Out: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log.Warn().Msg("persist settings")
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "persist settings") {
		t.Errorf("log file = %q", data)
	}
}
