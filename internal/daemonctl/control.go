// Package daemonctl drives the daemon process from the CLI: launching a
// detached instance, waiting for the control socket, stopping the daemon,
// and force-killing it when a stop request goes unanswered.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"drift/internal/daemon"
	"drift/internal/fileutil"
	"drift/internal/ipc"
	"drift/internal/paths"
)

// ErrDaemonNotRunning indicates the daemon control socket is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// Launch starts a detached daemon child running the foreground daemon
// subcommand.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfgPath := strings.TrimSpace(opts.ConfigPath); cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for control socket availability and returns a
// connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted connects to a running daemon or launches one and waits for
// it to come up.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if client, err := ipc.Dial(socketPath); err == nil {
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && status != nil && status.Running {
			return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
		}
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()

	result := StartResult{State: StartStateStarted, Launched: true}
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		result.PID = status.PID
	}
	return result, nil
}

// WaitForShutdown waits for the control socket to disappear or report a
// stopped daemon.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(200 * time.Millisecond)
			continue
		}
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && status != nil && !status.Running {
			return nil
		}
		if statusErr != nil {
			lastErr = statusErr
		} else {
			lastErr = fmt.Errorf("daemon still running")
		}
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo reports whether the control socket answers and the daemon PID
// when one can be determined. With the socket unreachable the pid file is
// consulted and the recorded process checked for liveness.
func ProcessInfo(socketPath, pidPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		status, statusErr := client.Status()
		if statusErr != nil {
			return true, 0, statusErr
		}
		return true, status.PID, nil
	}
	if !isDaemonUnavailable(err) {
		return false, 0, err
	}
	pid, readErr := readPIDFile(pidPath)
	if readErr != nil || pid <= 0 {
		return false, 0, nil
	}
	if !processAlive(pid) {
		return false, 0, nil
	}
	return false, pid, nil
}

// ForceKillProcess sends SIGKILL to the daemon process and removes its pid
// and lock files. It refuses to kill the calling process.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	if filePID, err := readPIDFile(pidPath); err == nil && filePID > 0 {
		pid = filePID
	} else if err != nil && !errors.Is(err, os.ErrNotExist) && pid <= 0 {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for a daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate requests a daemon stop over the control socket and
// force-kills the process if it is still alive after gracePeriod.
func StopAndTerminate(socketPath string, layout paths.Layout, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		pid = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if resp != nil {
		result.StopAcknowledged = resp.Stopped
	}

	_ = WaitForShutdown(socketPath, gracePeriod)
	reachable, livePID, infoErr := ProcessInfo(socketPath, layout.DaemonPID())
	if infoErr != nil {
		reachable = false
	}
	if !reachable && livePID == 0 {
		return result, nil
	}
	if livePID > 0 {
		pid = livePID
	}

	killedPID, killErr := ForceKillProcess(layout.DaemonPID(), layout.DaemonLock(), pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(socketPath string, layout paths.Layout, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, layout, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// StatusSnapshot returns live daemon status when the control socket
// answers, falling back to the last persisted state document when it does
// not. The fallback always reports a stopped daemon.
func StatusSnapshot(socketPath string, layout paths.Layout) (*ipc.StatusResponse, error) {
	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			return resp, nil
		}
	}
	return offlineStatus(layout)
}

func offlineStatus(layout paths.Layout) (*ipc.StatusResponse, error) {
	resp := &ipc.StatusResponse{}
	st, err := daemon.LoadState(layout)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return resp, nil
	}
	resp.PID = st.PID
	resp.RunID = st.RunID
	resp.StartedAt = st.StartedAt
	if st.ActiveProject != nil {
		resp.ActiveProject = *st.ActiveProject
	}
	resp.Workspaces = make([]ipc.WorkspaceInfo, 0, len(st.Workspaces))
	for _, row := range st.Workspaces {
		resp.Workspaces = append(resp.Workspaces, ipc.WorkspaceInfo{
			WorkspaceID:   row.WorkspaceID,
			WorkspaceName: row.WorkspaceName,
			Project:       row.Project,
			Output:        row.Output,
			IsActive:      row.IsActive,
			IsFocused:     row.IsFocused,
			WindowCount:   row.WindowCount,
		})
	}
	resp.Services = offlineServices(layout)
	return resp, nil
}

// offlineServices collects the last persisted services.json per project.
// The records describe the previous run; status rendering marks them stale.
func offlineServices(layout paths.Layout) map[string][]ipc.ServiceInfo {
	entries, err := os.ReadDir(layout.StateProjectsDir())
	if err != nil {
		return nil
	}
	services := make(map[string][]ipc.ServiceInfo)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var doc daemon.ServicesDocument
		if err := fileutil.ReadJSON(layout.ServicesState(entry.Name()), &doc); err != nil {
			continue
		}
		if len(doc.Services) == 0 {
			continue
		}
		name := doc.Project
		if name == "" {
			name = entry.Name()
		}
		services[name] = doc.Services
	}
	if len(services) == 0 {
		return nil
	}
	return services
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return 0, fmt.Errorf("pid file %s is empty", path)
	}
	pid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
