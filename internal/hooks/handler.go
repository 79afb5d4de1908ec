// Package hooks implements the app-shell lifecycle hooks. Hooks talk to a
// running server and never fail the caller: errors are logged to stderr and
// the process exits 0.
package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/observability"
)

// Hook events.
const (
	EventForeground = "foreground"
	EventBackground = "background"
)

// Handler dispatches hook events against a server.
type Handler struct {
	Client *Client
	Out    io.Writer
	Log    *zap.Logger
}

// Handle reads HookInput from stdin, dispatches to the handler for event,
// and writes any output to h.Out.
func (h *Handler) Handle(event string, stdin io.Reader) {
	log := observability.OrNop(h.Log).With(zap.String("event", event))

	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		// Stdin may be empty or garbage; fall through with defaults
		log.Warn("decode stdin", zap.Error(err))
	}

	if !h.Client.Healthy() {
		if event == EventForeground {
			WriteForegroundOutput(h.Out, nil)
		}
		return
	}

	var err error
	switch event {
	case EventForeground:
		err = h.foreground(&input)
	case EventBackground:
		err = h.background(&input)
	default:
		err = fmt.Errorf("unknown hook event: %s", event)
	}
	if err != nil {
		log.Warn("hook failed", zap.Error(err))
	}
}
