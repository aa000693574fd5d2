package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLevelsAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, Config{Agent: "geo"})
	logger.Debug().Msg("hidden")
	logger.Info().Str("address", "Siam").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q, want exactly the info line", lines)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if entry["agent"] != "geo" || entry["address"] != "Siam" || entry["level"] != "info" {
		t.Fatalf("entry = %#v", entry)
	}
	if _, ok := entry["caller"]; !ok {
		t.Fatalf("entry has no caller: %#v", entry)
	}
}

func TestNewDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, Config{Debug: true})
	logger.Debug().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug line missing: %q", buf.String())
	}
}
