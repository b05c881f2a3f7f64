package report

import (
	"fmt"
	"strings"

	"github.com/runwayproxy/multipath/internal/connlog"
)

// GenerateTrafficDiagram builds a Mermaid flowchart of which runways
// carried each target's traffic: one node per target and per runway that
// served it. Each target node is classed unhealthy when the target's
// errors outnumber its completed connections, healthy otherwise; runway
// nodes and edges carry no counts or classes.
func GenerateTrafficDiagram(targets []connlog.TargetSummary) string {
	if len(targets) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart LR\n")
	sb.WriteString("    classDef healthy fill:#90EE90,stroke:#228B22\n")
	sb.WriteString("    classDef unhealthy fill:#FFB6C1,stroke:#FF0000\n\n")

	for _, t := range targets {
		targetID := sanitizeNodeID("T_" + t.Target)
		sb.WriteString(fmt.Sprintf("    %s[%s]\n", targetID, t.Target))

		for _, runwayID := range t.RunwaysUsed {
			nodeID := sanitizeNodeID("R_" + runwayID)
			sb.WriteString(fmt.Sprintf("    %s[%s]\n", nodeID, runwayID))
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", nodeID, targetID))
		}

		class := "healthy"
		if t.ErrorCount > t.CompletedCount {
			class = "unhealthy"
		}
		sb.WriteString(fmt.Sprintf("    class %s %s\n", targetID, class))
	}

	sb.WriteString("```\n")
	return sb.String()
}

func sanitizeNodeID(s string) string {
	replacer := strings.NewReplacer(".", "_", ":", "_", "/", "_", "-", "_")
	return replacer.Replace(s)
}
