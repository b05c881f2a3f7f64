package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/runwayproxy/multipath/internal/core"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Show the current status of the multipathproxy daemon and its routing counters.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	runningStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	stoppedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	running, pid := core.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("multipathproxy Status"))
	fmt.Println()

	fmt.Print(labelStyle.Render("Daemon: "))
	if running {
		fmt.Println(runningStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(stoppedStyle.Render("Stopped"))
	}

	sf, err := core.ReadStatusFile(cfg.DataDir)
	if err != nil {
		return nil
	}

	fmt.Print(labelStyle.Render("Started: "))
	fmt.Println(valueStyle.Render(sf.StartTime))

	fmt.Print(labelStyle.Render("Uptime: "))
	fmt.Println(valueStyle.Render(sf.Uptime))

	fmt.Print(labelStyle.Render("Routing mode: "))
	fmt.Println(valueStyle.Render(sf.RoutingMode))

	fmt.Println()
	fmt.Println(titleStyle.Render("Connections"))
	fmt.Printf("  %s %s\n", labelStyle.Render("Active:"), valueStyle.Render(fmt.Sprintf("%d", sf.ActiveConnections)))
	fmt.Printf("  %s %s\n", labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", sf.TotalConnections)))
	fmt.Printf("  %s %s\n", labelStyle.Render("Bytes sent:"), valueStyle.Render(fmt.Sprintf("%d", sf.TotalBytesSent)))
	fmt.Printf("  %s %s\n", labelStyle.Render("Bytes received:"), valueStyle.Render(fmt.Sprintf("%d", sf.TotalBytesReceived)))

	return nil
}
