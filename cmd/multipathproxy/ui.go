package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runwayproxy/multipath/internal/core"
	"github.com/runwayproxy/multipath/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Launch an interactive terminal dashboard showing live routing state.

The dashboard shows:
- Daemon status and connection counters
- Discovered runways
- Per-target, per-runway accessibility and latency

Use 'r' to refresh, 'q' to quit.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	c, err := core.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize core: %w", err)
	}
	if err := c.Start(); err != nil {
		return fmt.Errorf("failed to start core: %w", err)
	}
	defer c.Stop()

	app := tui.NewApp(c)
	return app.Run()
}
