// Package routing selects which runway a target's request should use,
// given the accessibility state the tracker has observed.
package routing

import (
	"sync"

	"github.com/runwayproxy/multipath/internal/config"
	"github.com/runwayproxy/multipath/internal/runway"
	"github.com/runwayproxy/multipath/internal/tracker"
)

// Engine picks a runway for a target according to the active routing mode.
// Mode and the round-robin cursor map are guarded by separate locks, since
// they're read and written independently.
type Engine struct {
	tracker *tracker.Tracker

	modeMu sync.Mutex
	mode   config.RoutingMode

	rrMu    sync.Mutex
	rrIndex map[string]int
}

// New returns an Engine that selects among runways the tracker reports as
// accessible for a target, starting in mode.
func New(t *tracker.Tracker, mode config.RoutingMode) *Engine {
	return &Engine{
		tracker: t,
		mode:    mode,
		rrIndex: make(map[string]int),
	}
}

// SetMode changes the active routing mode.
func (e *Engine) SetMode(mode config.RoutingMode) {
	e.modeMu.Lock()
	defer e.modeMu.Unlock()
	e.mode = mode
}

// GetMode returns the active routing mode.
func (e *Engine) GetMode() config.RoutingMode {
	e.modeMu.Lock()
	defer e.modeMu.Unlock()
	return e.mode
}

// Select returns the runway runways should use to reach target, or nil if
// none of the candidate runways are currently accessible for it.
func (e *Engine) Select(target string, runways []*runway.Runway) *runway.Runway {
	mode := e.GetMode()

	accessibleIDs := e.tracker.GetAccessibleRunways(target)
	if len(accessibleIDs) == 0 {
		return nil
	}
	accessibleSet := make(map[string]bool, len(accessibleIDs))
	for _, id := range accessibleIDs {
		accessibleSet[id] = true
	}

	var candidates []*runway.Runway
	for _, rw := range runways {
		if accessibleSet[rw.ID] {
			candidates = append(candidates, rw)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	switch mode {
	case config.RoutingModeLatency:
		return e.selectByLatency(target, candidates)
	case config.RoutingModeRoundRobin:
		return e.selectRoundRobin(target, candidates)
	default:
		return e.selectFirstAccessible(candidates)
	}
}

func (e *Engine) selectByLatency(target string, candidates []*runway.Runway) *runway.Runway {
	var best *runway.Runway
	bestLatency := 1e9

	for _, rw := range candidates {
		m, ok := e.tracker.GetMetrics(target, rw.ID)
		if ok && m.AvgResponseTime > 0 && m.AvgResponseTime < bestLatency {
			bestLatency = m.AvgResponseTime
			best = rw
		}
	}

	if best != nil {
		return best
	}
	return e.selectFirstAccessible(candidates)
}

func (e *Engine) selectFirstAccessible(candidates []*runway.Runway) *runway.Runway {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

func (e *Engine) selectRoundRobin(target string, candidates []*runway.Runway) *runway.Runway {
	if len(candidates) == 0 {
		return nil
	}

	e.rrMu.Lock()
	defer e.rrMu.Unlock()

	idx := e.rrIndex[target]
	selected := candidates[idx%len(candidates)]
	e.rrIndex[target] = (idx + 1) % len(candidates)
	return selected
}
