// Package pidfile guards against duplicate daemon instances with a PID file
// under ~/.cache/obi. A stale file left by a dead process is reclaimed.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Handle is an acquired PID file. Release removes it.
type Handle struct {
	path string
	pid  int
}

// Path returns the standard PID file location for an application name.
func Path(appName string) string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "obi", appName+".pid")
}

// Acquire claims the PID file at path for the current process. It fails
// when another live process holds it and reclaims it when the recorded
// process is gone.
func Acquire(path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}

	if existing, ok := readPID(path); ok {
		if processAlive(existing) {
			return nil, fmt.Errorf("another instance is already running (PID %d)", existing)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale pid file: %w", err)
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &Handle{path: path, pid: pid}, nil
}

// Release removes the PID file if it still records this process. Releasing
// a nil handle is a no-op.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	if pid, ok := readPID(h.path); ok && pid == h.pid {
		return os.Remove(h.path)
	}
	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// processAlive probes the PID with signal 0. EPERM means the process exists
// under another user, so it counts as alive.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
