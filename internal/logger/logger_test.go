package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/internal/config"
)

func TestSetupWriterFormats(t *testing.T) {
	var buf bytes.Buffer
	log := SetupWriter(&config.Config{Environment: "production", LogLevel: slog.LevelInfo}, &buf)
	id := uuid.New()
	WithRunID(log, id).Info("Scenario started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output in production, got %q: %v", buf.String(), err)
	}
	if entry["run_id"] != id.String() {
		t.Errorf("Expected run_id %s, got %v", id, entry["run_id"])
	}

	buf.Reset()
	log = SetupWriter(&config.Config{Environment: "development", LogLevel: slog.LevelWarn}, &buf)
	log.Info("dropped")
	WithError(log, errors.New("boom")).Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("Info should be filtered at warn level")
	}
	if !strings.Contains(out, "error=boom") {
		t.Errorf("Expected text output with error attribute, got %q", out)
	}
}

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.log")
	log, closeFn, err := SetupFile(&config.Config{LogLevel: slog.LevelDebug}, path)
	if err != nil {
		t.Fatalf("SetupFile failed: %v", err)
	}
	log.Debug("Frame", "fps", 60)
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), "fps=60") {
		t.Errorf("Expected log line in file, got %q", string(data))
	}
}
