// Package tracker maintains per-(target, runway) accessibility metrics: a
// rolling success-rate window, an exponential moving average latency, and
// the accessibility state machine that routing decisions are based on.
package tracker

import (
	"sync"
	"time"

	"github.com/runwayproxy/multipath/internal/runway"
)

// TargetMetrics is a point-in-time snapshot of how a target has fared
// through one runway. Values are copied out of the tracker under lock, so
// callers may read them freely without synchronization.
type TargetMetrics struct {
	Target              string
	RunwayID            string
	State               runway.State
	NetworkSuccessCount uint64
	UserSuccessCount    uint64
	FailureCount        uint64
	PartialSuccessCount uint64
	TotalAttempts       uint64
	AvgResponseTime     float64
	LastSuccessTime     int64
	LastFailureTime     int64
	ConsecutiveFailures uint32
	RecoveryCount       uint64
	SuccessRate         float64
	RecentAttempts      []bool
}

func (m *TargetMetrics) updateSuccessRate() {
	if len(m.RecentAttempts) == 0 {
		m.SuccessRate = 0
		return
	}
	successes := 0
	for _, ok := range m.RecentAttempts {
		if ok {
			successes++
		}
	}
	m.SuccessRate = float64(successes) / float64(len(m.RecentAttempts))
}

// Tracker records outcomes and derives accessibility state. A single coarse
// lock guards all metrics, matching the original's single mutex over its
// whole target->runway map: update volume is low enough (one call per
// completed or probed connection) that finer-grained locking buys nothing.
type Tracker struct {
	window    int
	threshold float64

	mu          sync.Mutex
	metrics     map[string]map[string]*TargetMetrics
	targetOrder []string // insertion order of metrics' keys, for GetAllTargets
}

// New returns a Tracker that keeps the last window attempts per
// (target, runway) and treats a partially-accessible runway as usable once
// its rolling success rate reaches threshold.
func New(window int, threshold float64) *Tracker {
	return &Tracker{
		window:    window,
		threshold: threshold,
		metrics:   make(map[string]map[string]*TargetMetrics),
	}
}

func (t *Tracker) getOrCreate(target, runwayID string) *TargetMetrics {
	byRunway, ok := t.metrics[target]
	if !ok {
		byRunway = make(map[string]*TargetMetrics)
		t.metrics[target] = byRunway
		t.targetOrder = append(t.targetOrder, target)
	}
	m, ok := byRunway[runwayID]
	if !ok {
		m = &TargetMetrics{Target: target, RunwayID: runwayID, State: runway.StateUnknown}
		byRunway[runwayID] = m
	}
	return m
}

// Update records one probe or connection outcome for (target, runwayID).
//
// Resolved ambiguity: a partial outcome (network reachable, user-level
// validation failed) increments only PartialSuccessCount, not
// NetworkSuccessCount. This keeps NetworkSuccessCount+FailureCount+
// PartialSuccessCount equal to TotalAttempts.
func (t *Tracker) Update(target, runwayID string, networkSuccess, userSuccess bool, responseTimeSecs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.getOrCreate(target, runwayID)
	m.TotalAttempts++
	now := time.Now().Unix()
	prevState := m.State

	m.RecentAttempts = append(m.RecentAttempts, userSuccess)
	if len(m.RecentAttempts) > t.window {
		m.RecentAttempts = m.RecentAttempts[len(m.RecentAttempts)-t.window:]
	}

	switch {
	case networkSuccess && userSuccess:
		m.NetworkSuccessCount++
		m.UserSuccessCount++
		m.State = runway.StateAccessible
		m.LastSuccessTime = now
		m.ConsecutiveFailures = 0

		if m.AvgResponseTime == 0 {
			m.AvgResponseTime = responseTimeSecs
		} else {
			m.AvgResponseTime = m.AvgResponseTime*0.7 + responseTimeSecs*0.3
		}

	case networkSuccess && !userSuccess:
		m.PartialSuccessCount++
		m.State = runway.StatePartiallyAccessible

	default:
		m.FailureCount++
		m.LastFailureTime = now
		m.ConsecutiveFailures++
		if m.ConsecutiveFailures > 3 {
			m.State = runway.StateInaccessible
		}
	}

	if prevState == runway.StateInaccessible && userSuccess {
		m.RecoveryCount++
		m.State = runway.StateAccessible
	}

	m.updateSuccessRate()
}

// GetAccessibleRunways returns the ids of runways currently considered
// usable for target: fully Accessible runways, plus PartiallyAccessible
// ones whose rolling success rate has reached the configured threshold.
func (t *Tracker) GetAccessibleRunways(target string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	byRunway, ok := t.metrics[target]
	if !ok {
		return nil
	}

	var out []string
	for id, m := range byRunway {
		switch m.State {
		case runway.StateAccessible:
			out = append(out, id)
		case runway.StatePartiallyAccessible:
			if m.SuccessRate >= t.threshold {
				out = append(out, id)
			}
		}
	}
	return out
}

// GetMetrics returns a copy of the metrics for (target, runwayID), or false
// if no outcome has ever been recorded for that pair.
func (t *Tracker) GetMetrics(target, runwayID string) (TargetMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byRunway, ok := t.metrics[target]
	if !ok {
		return TargetMetrics{}, false
	}
	m, ok := byRunway[runwayID]
	if !ok {
		return TargetMetrics{}, false
	}
	return copyMetrics(m), true
}

// GetAllTargets returns every target that has at least one recorded
// outcome, in the order each was first seen.
func (t *Tracker) GetAllTargets() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.targetOrder))
	copy(out, t.targetOrder)
	return out
}

// GetTargetMetrics returns a copy of every runway's metrics for target,
// keyed by runway id.
func (t *Tracker) GetTargetMetrics(target string) map[string]TargetMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	byRunway, ok := t.metrics[target]
	if !ok {
		return map[string]TargetMetrics{}
	}
	out := make(map[string]TargetMetrics, len(byRunway))
	for id, m := range byRunway {
		out[id] = copyMetrics(m)
	}
	return out
}

func copyMetrics(m *TargetMetrics) TargetMetrics {
	cp := *m
	cp.RecentAttempts = append([]bool(nil), m.RecentAttempts...)
	return cp
}
