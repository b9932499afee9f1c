package diaglog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func enableDebug(t *testing.T) {
	t.Helper()
	t.Setenv("OBI_DEBUG", "true")
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func TestLog_WritesNDJSON(t *testing.T) {
	enableDebug(t)
	path := filepath.Join(t.TempDir(), "obi-debug.log")
	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Log(LogEntry{
		Component: ComponentSearch,
		Event:     EventSearchSubmit,
		SessionID: "req-1",
		Payload:   map[string]interface{}{"query": "dusty drum break"},
	})

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if entry.Component != ComponentSearch || entry.Event != EventSearchSubmit {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Timestamp == "" {
		t.Error("expected auto-filled timestamp")
	}
}

func TestLog_RedactsToken(t *testing.T) {
	enableDebug(t)
	path := filepath.Join(t.TempDir(), "obi-debug.log")
	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Log(LogEntry{
		Component: ComponentSearch,
		Event:     EventSearchSubmit,
		Payload:   map[string]interface{}{"token": "super-secret", "query": "hum"},
	})

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if strings.Contains(lines[0], "super-secret") {
		t.Error("token value leaked into log")
	}
	if !strings.Contains(lines[0], "[REDACTED]") {
		t.Error("expected redaction marker")
	}
}

func TestLog_DisabledIsNoOp(t *testing.T) {
	t.Setenv("OBI_DEBUG", "")
	path := filepath.Join(t.TempDir(), "obi-debug.log")
	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Log(LogEntry{Component: ComponentCore, Event: EventCommand})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("disabled logger must not create a file")
	}
}

func TestLog_NilLoggerSafe(t *testing.T) {
	var l *Logger
	l.Log(LogEntry{Component: ComponentCore, Event: EventCommand})
	if err := l.Close(); err != nil {
		t.Errorf("nil logger Close: %v", err)
	}
}

func TestRedact_Nested(t *testing.T) {
	in := map[string]interface{}{
		"outer": map[string]interface{}{
			"password": "hunter2",
			"note":     "keep",
		},
		"list": []interface{}{
			map[string]interface{}{"secret": "x"},
		},
	}
	out := Redact(in).(map[string]interface{})
	inner := out["outer"].(map[string]interface{})
	if inner["password"] != "[REDACTED]" {
		t.Error("nested password not redacted")
	}
	if inner["note"] != "keep" {
		t.Error("non-sensitive field mangled")
	}
	elem := out["list"].([]interface{})[0].(map[string]interface{})
	if elem["secret"] != "[REDACTED]" {
		t.Error("secret inside slice not redacted")
	}
	// Original untouched.
	if in["outer"].(map[string]interface{})["password"] != "hunter2" {
		t.Error("input map was mutated")
	}
}

func TestRollingWriter_TruncatesAtCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rolling.log")
	rw, err := newRollingWriter(path, 64)
	if err != nil {
		t.Fatalf("newRollingWriter: %v", err)
	}
	defer rw.close()

	chunk := []byte(strings.Repeat("a", 40) + "\n")
	if _, err := rw.Write(chunk); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Second write would exceed the cap, so the file truncates first.
	if _, err := rw.Write(chunk); err != nil {
		t.Fatalf("second write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("expected file to hold only the latest chunk (%d bytes), got %d", len(chunk), info.Size())
	}
}
