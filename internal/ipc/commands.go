package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command represents user commands from the control surface to the daemon.
type Command string

const (
	CmdStart  Command = "start"  // Start recording
	CmdStop   Command = "stop"   // Stop recording and attach the result
	CmdClear  Command = "clear"  // Discard the current asset
	CmdSubmit Command = "submit" // Submit the current query/asset
	CmdQuery  Command = "query"  // Set the query text; argument is the text
	CmdPlay   Command = "play"   // Toggle playback; argument is a result ID or "asset"
	CmdSeek   Command = "seek"   // Seek; argument is "<result ID|asset> <fraction>"
	CmdQuit   Command = "quit"   // Shutdown daemon

	// Renderer feedback. Whatever process actually plays the audio reports
	// back through these so the daemon's playback state tracks reality.
	CmdDuration Command = "duration" // Track duration learned; argument is "<target> <seconds>"
	CmdTick     Command = "tick"     // Position report; argument is "<target> <seconds>"
	CmdEnded    Command = "ended"    // Track finished; argument is the target
)

// cacheDir returns ~/.cache/obi, creating it if needed.
func cacheDir() (string, error) {
	dir := filepath.Join(os.Getenv("HOME"), ".cache", "obi")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// CommandPath returns the command file location, ~/.cache/obi/cmd.txt.
func CommandPath() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "obi", "cmd.txt")
}

// WriteCommand writes a command (plus optional argument) to the command
// file for the daemon to pick up.
func WriteCommand(cmd Command, arg string) error {
	if _, err := cacheDir(); err != nil {
		return err
	}
	line := string(cmd)
	if arg != "" {
		line += " " + arg
	}
	return os.WriteFile(CommandPath(), []byte(line), 0644)
}

// ReadCommand reads and clears the command file. Returns the empty command
// when nothing is pending; unknown verbs are dropped silently so a stray
// write cannot wedge the watcher.
func ReadCommand() (Command, string, error) {
	data, err := os.ReadFile(CommandPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", err
	}

	// Clear the file immediately to prevent re-execution.
	if err := os.WriteFile(CommandPath(), []byte(""), 0644); err != nil {
		return "", "", err
	}

	line := strings.TrimSpace(string(data))
	if line == "" {
		return "", "", nil
	}
	verb, arg, _ := strings.Cut(line, " ")
	cmd := Command(verb)
	arg = strings.TrimSpace(arg)

	switch cmd {
	case CmdStart, CmdStop, CmdClear, CmdSubmit, CmdQuit:
		return cmd, "", nil
	case CmdQuery, CmdPlay, CmdSeek, CmdDuration, CmdTick, CmdEnded:
		return cmd, arg, nil
	default:
		return "", "", nil
	}
}
