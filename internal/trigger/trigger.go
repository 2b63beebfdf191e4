// Package trigger turns external toggle requests into app actions.
// On Unix the process toggles dictation when it receives SIGUSR1, so
// any desktop keybinding can be pointed at `pkill -USR1 voxpad`.
package trigger

import (
	"os"
	"os/signal"

	"github.com/rs/zerolog"
)

// Manager forwards external toggle requests to a callback.
type Manager struct {
	log  zerolog.Logger
	ch   chan os.Signal
	done chan struct{}
}

// New starts listening for toggle triggers. fn runs on the manager's
// goroutine and must not block for long.
func New(log zerolog.Logger, fn func()) *Manager {
	m := &Manager{
		log:  log,
		ch:   make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	notifyToggle(m.ch)
	go m.run(fn)
	return m
}

func (m *Manager) run(fn func()) {
	for {
		select {
		case <-m.done:
			return
		case sig := <-m.ch:
			select {
			case <-m.done:
				return
			default:
			}
			m.log.Debug().Str("signal", sig.String()).Msg("Toggle trigger received")
			fn()
		}
	}
}

// Close stops listening. Pending triggers are dropped.
func (m *Manager) Close() error {
	signal.Stop(m.ch)
	close(m.done)
	return nil
}
