package poller

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessHint resolves the command-line-derived process hint for a pane's
// shell PID by walking up the process tree looking for a known agent
// binary. The teacher's go.mod carries gopsutil but never imports it
// anywhere (process.go hand-rolls /proc/<pid>/stat parsing instead); this
// is where the poller wires that dependency in for real, trading the
// teacher's manual field-offset parsing for gopsutil's typed accessors.
func ProcessHint(shellPID int32) (string, bool) {
	current := shellPID
	for i := 0; i < 10; i++ {
		proc, err := process.NewProcess(current)
		if err != nil {
			return "", false
		}
		name, err := proc.Name()
		if err == nil && isKnownAgentBinary(name) {
			return name, true
		}
		cmdline, err := proc.Cmdline()
		if err == nil && containsAgentToken(cmdline) {
			return cmdline, true
		}
		parent, err := proc.Ppid()
		if err != nil || parent <= 1 || parent == current {
			break
		}
		current = parent
	}
	return "", false
}

func isKnownAgentBinary(name string) bool {
	switch strings.ToLower(name) {
	case "claude", "claude-code", "codex":
		return true
	default:
		return false
	}
}

func containsAgentToken(cmdline string) bool {
	lower := strings.ToLower(cmdline)
	if strings.Contains(lower, "node_modules/.bin") {
		return false
	}
	return strings.Contains(lower, "claude") || strings.Contains(lower, "codex")
}

// ChildShellPID finds the tmux pane's shell PID owning the given process,
// by walking parents until one matches a known pane shell PID.
func ChildShellPID(pid int32, paneShellPIDs map[int32]bool) (int32, bool) {
	current := pid
	for i := 0; i < 10; i++ {
		if paneShellPIDs[current] {
			return current, true
		}
		proc, err := process.NewProcess(current)
		if err != nil {
			return 0, false
		}
		parent, err := proc.Ppid()
		if err != nil || parent <= 1 || parent == current {
			return 0, false
		}
		current = parent
	}
	return 0, false
}
