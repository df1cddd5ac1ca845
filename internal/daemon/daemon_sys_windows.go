//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

func setDaemonSysProcAttr(cmd *exec.Cmd) {
	// No Setsid on Windows; process runs in the same console by default.
}

func processExists(pid int) bool {
	// No kill(pid, 0) on Windows; assume the process exists if the pid is
	// valid (callers get connection refused if it died).
	return pid > 0
}

func signalTerm(proc *os.Process) error {
	// SIGTERM is not supported on Windows; terminate directly.
	return proc.Kill()
}
