package routing

import (
	"testing"

	"github.com/runwayproxy/multipath/internal/config"
	"github.com/runwayproxy/multipath/internal/runway"
	"github.com/runwayproxy/multipath/internal/tracker"
)

func mkRunway(id string) *runway.Runway {
	return &runway.Runway{ID: id, IsDirect: true}
}

func TestSelectReturnsNilWithoutAccessibleRunways(t *testing.T) {
	tr := tracker.New(10, 0.5)
	e := New(tr, config.RoutingModeFirstAccessible)
	got := e.Select("example.com", []*runway.Runway{mkRunway("r1")})
	if got != nil {
		t.Errorf("Select() = %v, want nil when tracker has no outcomes", got)
	}
}

func TestSelectByLatencyPicksLowestAvg(t *testing.T) {
	tr := tracker.New(10, 0.5)
	tr.Update("example.com", "slow", true, true, 0.5)
	tr.Update("example.com", "fast", true, true, 0.05)

	e := New(tr, config.RoutingModeLatency)
	got := e.Select("example.com", []*runway.Runway{mkRunway("slow"), mkRunway("fast")})
	if got == nil || got.ID != "fast" {
		t.Errorf("Select() = %v, want the lower-latency runway", got)
	}
}

func TestSelectFirstAccessibleIgnoresLatency(t *testing.T) {
	tr := tracker.New(10, 0.5)
	tr.Update("example.com", "r1", true, true, 0.5)
	tr.Update("example.com", "r2", true, true, 0.05)

	e := New(tr, config.RoutingModeFirstAccessible)
	got := e.Select("example.com", []*runway.Runway{mkRunway("r1"), mkRunway("r2")})
	if got == nil || got.ID != "r1" {
		t.Errorf("Select() = %v, want r1 (first in candidate order)", got)
	}
}

func TestSelectRoundRobinCyclesPerTarget(t *testing.T) {
	tr := tracker.New(10, 0.5)
	tr.Update("example.com", "r1", true, true, 0.1)
	tr.Update("example.com", "r2", true, true, 0.1)

	e := New(tr, config.RoutingModeRoundRobin)
	runways := []*runway.Runway{mkRunway("r1"), mkRunway("r2")}

	first := e.Select("example.com", runways)
	second := e.Select("example.com", runways)
	third := e.Select("example.com", runways)

	if first.ID == second.ID {
		t.Errorf("expected round robin to alternate, got %s then %s", first.ID, second.ID)
	}
	if third.ID != first.ID {
		t.Errorf("expected cursor to wrap back to %s, got %s", first.ID, third.ID)
	}
}

func TestRoundRobinCursorsAreIndependentPerTarget(t *testing.T) {
	tr := tracker.New(10, 0.5)
	tr.Update("a.com", "r1", true, true, 0.1)
	tr.Update("a.com", "r2", true, true, 0.1)
	tr.Update("b.com", "r1", true, true, 0.1)
	tr.Update("b.com", "r2", true, true, 0.1)

	e := New(tr, config.RoutingModeRoundRobin)
	runways := []*runway.Runway{mkRunway("r1"), mkRunway("r2")}

	aFirst := e.Select("a.com", runways)
	bFirst := e.Select("b.com", runways)
	if aFirst.ID != bFirst.ID {
		t.Errorf("expected independent cursors to start at the same candidate: a=%s b=%s", aFirst.ID, bFirst.ID)
	}
}

func TestSetModeAndGetMode(t *testing.T) {
	tr := tracker.New(10, 0.5)
	e := New(tr, config.RoutingModeLatency)
	if e.GetMode() != config.RoutingModeLatency {
		t.Fatalf("initial mode = %v, want latency", e.GetMode())
	}
	e.SetMode(config.RoutingModeRoundRobin)
	if e.GetMode() != config.RoutingModeRoundRobin {
		t.Errorf("GetMode() = %v, want round_robin after SetMode", e.GetMode())
	}
}
