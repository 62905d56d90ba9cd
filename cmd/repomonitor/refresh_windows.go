//go:build windows

package repomonitor

import (
	"errors"
	"os"
)

func refreshSignals() []os.Signal {
	return nil
}

func signalRefresh(int) error {
	return errors.New("refresh is not supported on windows; restart the watcher instead")
}
