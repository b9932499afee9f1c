package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obi-core.pid")

	h, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid != os.Getpid() {
		t.Errorf("pid file records %q, want %d", data, os.Getpid())
	}

	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pid file must be gone after release")
	}
}

func TestAcquire_RejectsLiveHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obi-core.pid")
	// This process is definitely alive.
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Acquire(path); err == nil {
		t.Fatal("expected rejection while holder is alive")
	}
}

func TestAcquire_ReclaimsStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obi-core.pid")
	if err := os.WriteFile(path, []byte("999999"), 0644); err != nil {
		t.Fatal(err)
	}
	h, err := Acquire(path)
	if err != nil {
		t.Fatalf("stale file must be reclaimed: %v", err)
	}
	defer h.Release()
}

func TestAcquire_GarbageContentReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obi-core.pid")
	if err := os.WriteFile(path, []byte("not a pid"), 0644); err != nil {
		t.Fatal(err)
	}
	h, err := Acquire(path)
	if err != nil {
		t.Fatalf("garbage pid file must not block startup: %v", err)
	}
	defer h.Release()
}

func TestRelease_NilHandle(t *testing.T) {
	var h *Handle
	if err := h.Release(); err != nil {
		t.Errorf("nil release must be a no-op, got %v", err)
	}
}
