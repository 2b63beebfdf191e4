//go:build windows

package trigger

import "os"

// Windows has no user signals; the tray menu is the only trigger.
func notifyToggle(ch chan<- os.Signal) {}
