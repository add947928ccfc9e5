package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"drift/internal/events"
)

// process is one spawned child. The leader runs in its own session, so
// its pid is the process-group id for the whole subtree.
type process struct {
	pid     int
	cmd     *exec.Cmd
	logFile *os.File
}

// spawn launches a service command through the shell with output appended
// to its log file under a timestamped start header.
func spawn(spec Spec, logPath string) (*process, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open service log: %w", err)
	}
	fmt.Fprintf(logFile, "\n--- service '%s' started at %s ---\n", spec.Name, events.Stamp(time.Now()))

	cmd := exec.Command("sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start %q: %w", spec.Command, err)
	}
	return &process{pid: cmd.Process.Pid, cmd: cmd, logFile: logFile}, nil
}

// wait blocks until the child exits and returns its exit code plus
// whether it died to a signal (code -1).
func (p *process) wait() (code int, signalled bool) {
	err := p.cmd.Wait()
	p.logFile.Close()
	if err == nil {
		return 0, false
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
		return code, code == -1
	}
	return -1, true
}

// runStopCommand executes a service's custom stop command with the same
// environment and directory, bounded by the stop timeout.
func runStopCommand(spec Spec, timeout time.Duration) error {
	cmd := exec.Command("sh", "-c", spec.StopCommand)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start stop command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("stop command: %w", err)
		}
		return nil
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		<-done
		return fmt.Errorf("stop command timed out after %s", timeout)
	}
}

// terminateGroup asks the whole process group to exit. ESRCH from an
// already-dead group is fine.
func terminateGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGTERM)
}

// killGroup forcibly ends the process group.
func killGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}
