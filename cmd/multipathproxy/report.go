package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/runwayproxy/multipath/internal/connlog"
	"github.com/runwayproxy/multipath/internal/report"
)

var (
	reportLast   string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a routing history report",
	Long: `Generate a report of recent proxy connections and runway usage.

Examples:
  multipathproxy report --last 24h
  multipathproxy report --last 7d --output ./report.md`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportLast, "last", "24h", "Time range (e.g., 1h, 24h, 7d)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output file path (default: stdout)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	duration, err := parseDuration(reportLast)
	if err != nil {
		return fmt.Errorf("invalid time range: %w", err)
	}

	since := time.Now().Add(-duration)
	until := time.Now()

	store, err := connlog.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open connection log: %w", err)
	}
	defer store.Close()

	gen := report.NewGenerator(store)
	data, err := gen.Generate(report.Options{Since: since, Until: until})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	content := report.FormatMarkdown(data)

	if reportOutput == "" || reportOutput == "-" {
		fmt.Println(content)
		return nil
	}
	if err := os.WriteFile(reportOutput, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Printf("Report saved to: %s\n", reportOutput)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if len(s) > 0 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	if len(s) > 0 && s[len(s)-1] == 'w' {
		var weeks int
		if _, err := fmt.Sscanf(s, "%dw", &weeks); err == nil {
			return time.Duration(weeks) * 7 * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}
