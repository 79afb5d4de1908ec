package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/tether/internal/config"
	"github.com/lazypower/tether/internal/hooks"
	"github.com/lazypower/tether/internal/observability"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle app-shell lifecycle hooks",
}

var hookForegroundCmd = &cobra.Command{
	Use:   "foreground",
	Short: "App came to the foreground: record battery, print suggestions",
	Run: func(cmd *cobra.Command, args []string) {
		runHook(hooks.EventForeground)
	},
}

var hookBackgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "App went to the background: measure outcomes, schedule notifications",
	Run: func(cmd *cobra.Command, args []string) {
		runHook(hooks.EventBackground)
	},
}

// runHook never returns an error: hooks must not fail the app shell.
func runHook(event string) {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	log, _ := observability.NewLogger("warn", true)
	if log != nil {
		defer log.Sync()
	}

	if !cfg.Hooks.Enabled {
		if event == hooks.EventForeground {
			hooks.WriteForegroundOutput(os.Stdout, nil)
		}
		return
	}

	h := &hooks.Handler{
		Client: hooks.NewClient().WithTimeout(time.Duration(cfg.Hooks.Timeout) * time.Second),
		Out:    os.Stdout,
		Log:    log,
	}
	h.Handle(event, os.Stdin)
}

func init() {
	hookCmd.AddCommand(hookForegroundCmd)
	hookCmd.AddCommand(hookBackgroundCmd)
}
