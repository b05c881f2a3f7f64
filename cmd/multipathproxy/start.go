package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runwayproxy/multipath/internal/core"
)

var foreground bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the multipathproxy daemon",
	Long:  "Start the multipathproxy daemon in the background to accept and route proxy connections.",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false,
		"Run in foreground instead of daemonizing")
}

func runStart(cmd *cobra.Command, args []string) error {
	running, pid := core.CheckRunning(cfg.DataDir)
	if running {
		fmt.Printf("Daemon is already running (PID %d)\n", pid)
		return nil
	}

	if foreground {
		return runForeground()
	}
	return runDaemon()
}

func runForeground() error {
	fmt.Println("Starting multipathproxy in foreground mode...")

	c, err := core.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize core: %w", err)
	}

	fmt.Printf("Listening on %s:%d. Press Ctrl+C to stop.\n", cfg.ProxyListenHost, cfg.ProxyListenPort)
	return c.RunForeground()
}

func runDaemon() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"start", "--foreground"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	procAttr := &os.ProcAttr{
		Dir:   "/",
		Env:   os.Environ(),
		Files: []*os.File{nil, logFile, logFile},
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	proc, err := os.StartProcess(executable, append([]string{executable}, args...), procAttr)
	if err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	if err := proc.Release(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to release process: %v\n", err)
	}

	fmt.Printf("multipathproxy daemon started (PID %d)\n", proc.Pid)
	fmt.Printf("Proxy: %s:%d\n", cfg.ProxyListenHost, cfg.ProxyListenPort)
	fmt.Printf("Logs: %s\n", cfg.LogFile)

	return nil
}
