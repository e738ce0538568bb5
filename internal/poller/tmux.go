package poller

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// TmuxPane is one tmux pane's identity and the shell PID running inside it.
// Adapted from the teacher's monitor.TmuxPane.
type TmuxPane struct {
	SessionName string
	WindowIndex int
	PaneIndex   int
	PanePID     int
	Target      string // "session:window.pane"
	Title       string
	CurrentCmd  string
}

// ListPanes queries tmux for every pane across every session. Returns nil
// (not an error) when tmux is not installed or not running — the poller
// source simply has nothing to snapshot in that tick.
func ListPanes() ([]TmuxPane, error) {
	path, err := exec.LookPath("tmux")
	if err != nil {
		return nil, nil
	}
	out, err := exec.Command(path, "list-panes", "-a", "-F",
		"#{pane_pid}\t#{session_name}\t#{window_index}\t#{pane_index}\t#{pane_title}\t#{pane_current_command}").Output()
	if err != nil {
		return nil, nil
	}
	return parsePanes(string(out)), nil
}

func parsePanes(output string) []TmuxPane {
	var panes []TmuxPane
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 6)
		if len(fields) != 6 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		winIdx, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		paneIdx, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}
		sessionName := fields[1]
		panes = append(panes, TmuxPane{
			SessionName: sessionName,
			WindowIndex: winIdx,
			PaneIndex:   paneIdx,
			PanePID:     pid,
			Target:      fmt.Sprintf("%s:%d.%d", sessionName, winIdx, paneIdx),
			Title:       fields[4],
			CurrentCmd:  fields[5],
		})
	}
	return panes
}

// CapturePane runs tmux capture-pane for the given target and returns the
// visible lines, most recent last.
func CapturePane(target string, lines int) ([]string, error) {
	path, err := exec.LookPath("tmux")
	if err != nil {
		return nil, err
	}
	out, err := exec.Command(path, "capture-pane", "-p", "-t", target, "-S", strconv.Itoa(-lines)).Output()
	if err != nil {
		return nil, err
	}
	raw := strings.Split(string(out), "\n")
	result := make([]string, 0, len(raw))
	for _, l := range raw {
		result = append(result, strings.TrimRight(l, "\r"))
	}
	return result, nil
}
