package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cryptalert.log")

	logger, closer, err := NewLogger(Config{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	logger.Info().Str("component", "test").Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Fatalf("log file missing entry: %s", data)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, closer, err := NewLogger(Config{Level: "nonsense"})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	defer closer.Close()
	if got := logger.GetLevel().String(); got != "info" {
		t.Fatalf("expected info level, got %s", got)
	}
}
