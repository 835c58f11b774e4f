package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejects(t *testing.T) {
	cfg := Default()
	cfg.Level = "chatty"
	if _, err := New(cfg); err == nil {
		t.Error("expected an error for a bad level")
	}
	cfg = Default()
	cfg.Format = "xml"
	if _, err := New(cfg); err == nil {
		t.Error("expected an error for a bad format")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bench.log")
	cfg := Default()
	cfg.Format = "json"
	cfg.Output = path
	cfg.Level = "debug"
	logger, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("ask")
	_ = logger.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(b))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("%q is not json: %v", line, err)
	}
	if entry["message"] != "ask" || entry["level"] != "debug" {
		t.Errorf("entry = %v", entry)
	}
}
