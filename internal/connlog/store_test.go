package connlog

import (
	"testing"

	"github.com/runwayproxy/multipath/internal/dispatch"
)

func TestOpenCreatesSchemaAndLogsConnection(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.LogConnection(dispatch.ConnectionInfo{
		ID:         "conn-1",
		ClientIP:   "127.0.0.1",
		ClientPort: 54321,
		TargetHost: "example.com",
		TargetPort: 80,
		Method:     "GET",
		Path:       "/",
		RunwayID:   "direct_eth0_8.8.8.8_0",
		Status:     "completed",
		StatusCode: 200,
		StartTime:  1700000000,
	})

	var count int
	row := s.db.QueryRow("SELECT COUNT(*) FROM connections WHERE id = ?", "conn-1")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 row logged", count)
	}
}

func TestLogHealthProbeDoesNotPanicOnFailure(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.LogHealthProbe("example.com", "direct_eth0_8.8.8.8_0", true, false, 0.12)

	var count int
	row := s.db.QueryRow("SELECT COUNT(*) FROM health_probes")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 row logged", count)
	}
}

func TestOpenFailsOnUnwritableDataDir(t *testing.T) {
	_, err := Open("/nonexistent-path-for-connlog-test/deep/dir")
	if err == nil {
		t.Error("expected an error opening a database under a nonexistent directory")
	}
}
