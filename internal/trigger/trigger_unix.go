//go:build linux || darwin

package trigger

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyToggle subscribes ch to the platform's toggle signal.
func notifyToggle(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGUSR1)
}
