package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestForRunAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	id := NewRunID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("run id %q: %v", id, err)
	}

	log := ForRun(NewWithWriter(&buf, "debug", true), id)
	log.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["run_id"] != id || entry["message"] != "hello" {
		t.Errorf("entry = %v", entry)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", true)
	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}
	fallback := NewWithWriter(&buf, "nonsense", true)
	fallback.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Error("bad level should fall back to info")
	}
}
