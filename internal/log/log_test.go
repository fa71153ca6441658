package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupLevels(t *testing.T) {
	var buf bytes.Buffer
	l, closeFn := Setup(Options{Stderr: &buf})
	defer closeFn()
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("default level must be warn: %q", buf.String())
	}

	buf.Reset()
	l, _ = Setup(Options{Stderr: &buf, Verbose: true})
	l.Info("info line")
	l.Debug("debug line")
	if !strings.Contains(buf.String(), "info line") || strings.Contains(buf.String(), "debug line") {
		t.Fatalf("verbose must enable info only: %q", buf.String())
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestSetupFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "tablerepl.log")
	l, closeFn := Setup(Options{Stderr: &buf, File: path})
	l.Info("stage done", "stage", "dump")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"stage":"dump"`) {
		t.Fatalf("file missing record: %s", data)
	}
	if buf.Len() != 0 {
		t.Fatalf("info must not reach stderr at warn level: %q", buf.String())
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}
