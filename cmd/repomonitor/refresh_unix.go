//go:build !windows

package repomonitor

import (
	"os"
	"syscall"
)

func refreshSignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1}
}

func signalRefresh(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGUSR1)
}
