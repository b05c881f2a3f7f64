package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/runwayproxy/multipath/internal/core"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the multipathproxy daemon",
	Long:  "Stop the running multipathproxy daemon gracefully.",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	running, pid := core.CheckRunning(cfg.DataDir)
	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	fmt.Printf("Stopping daemon (PID %d)...\n", pid)

	if err := core.SendStop(cfg.DataDir); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for i := 0; i < 30; i++ {
		time.Sleep(time.Second)
		running, _ := core.CheckRunning(cfg.DataDir)
		if !running {
			fmt.Println("Daemon stopped")
			return nil
		}
	}

	fmt.Println("Warning: daemon may not have stopped completely")
	return nil
}
