package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// CheckRunning reports whether a multipathproxy process has a live PID
// file under dataDir.
func CheckRunning(dataDir string) (bool, int) {
	data, err := os.ReadFile(filepath.Join(dataDir, "multipathproxy.pid"))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}
	return true, pid
}

// SendStop signals SIGTERM to the running daemon found under dataDir.
func SendStop(dataDir string) error {
	running, pid := CheckRunning(dataDir)
	if !running {
		return fmt.Errorf("core: daemon is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("core: find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("core: signal process %d: %w", pid, err)
	}
	return nil
}

// StatusFile is the JSON-serializable form of Status written to disk so
// `status` can inspect a running daemon without connecting to it.
type StatusFile struct {
	Running            bool   `json:"running"`
	PID                int    `json:"pid"`
	StartTime          string `json:"start_time"`
	Uptime             string `json:"uptime"`
	ActiveConnections  int64  `json:"active_connections"`
	TotalConnections   uint64 `json:"total_connections"`
	TotalBytesSent     uint64 `json:"total_bytes_sent"`
	TotalBytesReceived uint64 `json:"total_bytes_received"`
	RoutingMode        string `json:"routing_mode"`
}

// WriteStatusFile serializes a Status snapshot to status.json under
// dataDir.
func WriteStatusFile(dataDir string, s Status) error {
	sf := StatusFile{
		Running:            s.Running,
		PID:                s.PID,
		StartTime:          s.StartTime.Format("2006-01-02 15:04:05"),
		Uptime:             s.Uptime.String(),
		ActiveConnections:  s.ActiveConnections,
		TotalConnections:   s.TotalConnections,
		TotalBytesSent:     s.TotalBytesSent,
		TotalBytesReceived: s.TotalBytesReceived,
		RoutingMode:        string(s.RoutingMode),
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, "status.json"), data, 0644)
}

// ReadStatusFile reads the most recently written status.json under
// dataDir.
func ReadStatusFile(dataDir string) (*StatusFile, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, "status.json"))
	if err != nil {
		return nil, err
	}
	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	return &sf, nil
}
