package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func reset() {
	if defaultLogger != nil {
		defaultLogger.closeFile()
	}
	defaultLogger = nil
	once = *new(sync.Once)
}

func TestInitWithFile(t *testing.T) {
	reset()

	tempDir := t.TempDir()

	err := InitWithFile("debug", tempDir)
	if err != nil {
		t.Fatalf("InitWithFile failed: %v", err)
	}
	defer Close()

	logPath := GetLogFilePath()
	if logPath == "" {
		t.Fatal("Expected log file path, got empty string")
	}

	Debug("test debug message")
	Info("test info message")
	Warn("test warn message")
	Error("test error message")

	// Close to flush
	Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	logContent := string(content)

	if !strings.Contains(logContent, "test debug message") {
		t.Error("Debug message not found in log file")
	}
	if !strings.Contains(logContent, "test info message") {
		t.Error("Info message not found in log file")
	}

	// Check no ANSI color codes
	if strings.Contains(logContent, "\033[") {
		t.Error("Log file contains ANSI color codes")
	}

	if filepath.Dir(logPath) != tempDir {
		t.Errorf("Log file not in expected directory: %s", logPath)
	}
}

func TestLogFilenameFormat(t *testing.T) {
	reset()

	tempDir := t.TempDir()

	err := InitWithFile("info", tempDir)
	if err != nil {
		t.Fatalf("InitWithFile failed: %v", err)
	}
	defer Close()

	logPath := GetLogFilePath()
	filename := filepath.Base(logPath)

	// Check filename format: YYYY-MM-DD_HH-MM-SS_TZ.log
	if !strings.HasSuffix(filename, ".log") {
		t.Errorf("Log filename should end with .log: %s", filename)
	}

	parts := strings.Split(strings.TrimSuffix(filename, ".log"), "_")
	if len(parts) < 3 {
		t.Errorf("Log filename format incorrect: %s", filename)
	}
}

func TestLevelFiltering(t *testing.T) {
	reset()
	defer reset()

	var buf bytes.Buffer
	Init("warn")
	SetOutput(&buf)
	SetColorEnable(false)

	Info("hidden")
	Warn("shown %d", 1)
	if strings.Contains(buf.String(), "hidden") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "[WARN] shown 1") {
		t.Errorf("Warn message missing: %q", buf.String())
	}

	SetLevel("debug")
	Debugf("now %s", "visible")
	if !strings.Contains(buf.String(), "[DEBUG] now visible") {
		t.Errorf("Debug message missing after SetLevel: %q", buf.String())
	}
}

func TestFatalExits(t *testing.T) {
	reset()
	defer reset()

	code := -1
	exit = func(c int) { code = c }
	defer func() { exit = os.Exit }()

	var buf bytes.Buffer
	SetOutput(&buf)
	Fatal("boom")
	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Error("Fatal message not written")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"fatal":   FATAL,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if ValidLevel("bogus") || !ValidLevel("Warn") {
		t.Error("ValidLevel misclassified a level")
	}
}

func TestVerbosityIsMonotonic(t *testing.T) {
	prev := verbosity(DEBUG)
	for _, l := range []Level{INFO, WARN, ERROR, FATAL} {
		v := verbosity(l)
		if v >= prev {
			t.Errorf("verbosity(%v) = %d, want less than %d", l, v, prev)
		}
		prev = v
	}
}
