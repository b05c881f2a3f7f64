// Package report builds human-readable summaries of routing history: a
// connection-history report over completed proxy connections and runway
// accessibility for a given time window.
package report

import (
	"fmt"
	"time"

	"github.com/runwayproxy/multipath/internal/connlog"
)

// Generator builds ReportData from the connection log.
type Generator struct {
	store *connlog.Store
}

// NewGenerator creates a report generator backed by store.
func NewGenerator(store *connlog.Store) *Generator {
	return &Generator{store: store}
}

// Options controls the window a report covers. Rows are selected by Since
// only; Until is recorded in the report as the window's end.
type Options struct {
	Since time.Time
	Until time.Time
}

// Data holds everything rendered into a report.
type Data struct {
	GeneratedAt time.Time
	Since       time.Time
	Until       time.Time

	Targets []connlog.TargetSummary
	Runways []connlog.RunwaySummary
}

// Generate builds a report covering opts.Since through now.
func (g *Generator) Generate(opts Options) (*Data, error) {
	targets, err := g.store.TargetSummaries(opts.Since)
	if err != nil {
		return nil, fmt.Errorf("report: target summaries: %w", err)
	}

	runways, err := g.store.RunwaySummaries(opts.Since)
	if err != nil {
		return nil, fmt.Errorf("report: runway summaries: %w", err)
	}

	return &Data{
		GeneratedAt: time.Now(),
		Since:       opts.Since,
		Until:       opts.Until,
		Targets:     targets,
		Runways:     runways,
	}, nil
}

// FormatMarkdown renders a Data as a Markdown document, including a
// Mermaid diagram of target-to-runway traffic.
func FormatMarkdown(data *Data) string {
	s := fmt.Sprintf("# multipathproxy report\n\nGenerated: %s\nWindow: %s to %s\n\n",
		data.GeneratedAt.Format("2006-01-02 15:04:05"),
		data.Since.Format("2006-01-02 15:04:05"),
		data.Until.Format("2006-01-02 15:04:05"))

	s += "## Targets\n\n"
	if len(data.Targets) == 0 {
		s += "_No connections recorded in this window._\n\n"
	} else {
		s += "| Target | Requests | Completed | Errors | Bytes sent | Bytes received |\n"
		s += "|---|---|---|---|---|---|\n"
		for _, t := range data.Targets {
			s += fmt.Sprintf("| %s | %d | %d | %d | %d | %d |\n",
				t.Target, t.TotalRequests, t.CompletedCount, t.ErrorCount, t.BytesSent, t.BytesReceived)
		}
		s += "\n"
	}

	s += "## Runways\n\n"
	if len(data.Runways) == 0 {
		s += "_No runway usage recorded in this window._\n\n"
	} else {
		s += "| Runway | Requests | Completed | Errors |\n"
		s += "|---|---|---|---|\n"
		for _, r := range data.Runways {
			s += fmt.Sprintf("| %s | %d | %d | %d |\n", r.RunwayID, r.TotalRequests, r.CompletedCount, r.ErrorCount)
		}
		s += "\n"
	}

	s += "## Traffic flow\n\n"
	s += GenerateTrafficDiagram(data.Targets)

	return s
}
