package group

import (
	"os"
	"syscall"
)

// killProcess asks the OS to terminate pid. It is a best-effort signal: by
// the time a postLockAction runs, the process may already have exited on
// its own, which os.FindProcess/Signal surfaces as an error we deliberately
// ignore here. None of the retrieved dependencies wrap process-signal
// delivery, so this stays on os/syscall.
func killProcess(pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)
}
