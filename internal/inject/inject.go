// Package inject delivers finished transcripts via the system
// clipboard.
package inject

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
)

// Injector defines the interface for transcript delivery
type Injector interface {
	Deliver(text string) error
}

type clipboardInjector struct {
	log zerolog.Logger
}

// NewClipboard creates an injector that places text on the system
// clipboard for the user to paste.
func NewClipboard(log zerolog.Logger) Injector {
	return &clipboardInjector{log: log}
}

func (c *clipboardInjector) Deliver(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	c.log.Debug().Int("chars", len(text)).Msg("Transcript copied to clipboard")
	return nil
}
