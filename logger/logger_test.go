package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want Level
	}{
		{"ERROR", ERROR},
		{"WARN", WARN},
		{"INFO", INFO},
		{"DEBUG", DEBUG},
		{"garbage", INFO},
		{"", INFO},
	}
	for _, tc := range cases {
		if got := LevelFromString(tc.in); got != tc.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWritesToFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := New(INFO, dir)
	l.SetConsoleOutput(false)

	l.Info("flow started", "id", "abc123", "initiation", "automatic")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "updater.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)

	if !strings.Contains(line, "[INFO] flow started") {
		t.Errorf("log line missing level/message: %q", line)
	}
	if !strings.Contains(line, "id=abc123") {
		t.Errorf("log line missing context pair: %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := New(WARN, dir)
	l.SetConsoleOutput(false)

	l.Debug("too quiet")
	l.Info("still too quiet")
	l.Warn("loud enough")
	l.Close()

	data, err := os.ReadFile(filepath.Join(dir, "updater.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)

	if strings.Contains(out, "too quiet") {
		t.Errorf("filtered levels leaked into the log: %q", out)
	}
	if !strings.Contains(out, "loud enough") {
		t.Errorf("WARN message missing from the log: %q", out)
	}
}

func TestNoFileOutputWithoutDir(t *testing.T) {
	t.Parallel()

	l := New(INFO, "")
	l.SetConsoleOutput(false)
	l.Info("goes nowhere")
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
