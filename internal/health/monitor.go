// Package health runs a background accessibility re-check cycle over
// previously seen targets, so the tracker's view of a runway recovers (or
// degrades further) even without live client traffic.
package health

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runwayproxy/multipath/internal/probe"
	"github.com/runwayproxy/multipath/internal/runway"
	"github.com/runwayproxy/multipath/internal/tracker"
)

const (
	maxTargetsPerCycle     = 10
	maxInaccessiblePerTarg = 5
	maxPartialPerTarget    = 3
	checkTimeout           = 5 * time.Second
)

// Monitor periodically re-probes inaccessible and partially-accessible
// runways for known targets. Stop() returns within one second of being
// called, since the run loop sleeps in one-second slices rather than for
// the whole interval at once.
type Monitor struct {
	registry *runway.Registry
	tracker  *tracker.Tracker
	prober   *probe.Engine
	interval time.Duration
	log      *logrus.Logger
	onProbe  func(target, runwayID string, networkSuccess, userSuccess bool, responseTimeSecs float64)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// OnProbe registers fn to be called with every health probe outcome, so a
// caller can persist a probe history alongside the tracker's in-memory
// view. Registering after Start has no effect on probes already in
// flight, but is safe to call at any time.
func (m *Monitor) OnProbe(fn func(target, runwayID string, networkSuccess, userSuccess bool, responseTimeSecs float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProbe = fn
}

// New returns a Monitor that runs a health check cycle every interval.
func New(registry *runway.Registry, t *tracker.Tracker, prober *probe.Engine, interval time.Duration, log *logrus.Logger) *Monitor {
	return &Monitor{
		registry: registry,
		tracker:  t,
		prober:   prober,
		interval: interval,
		log:      log,
	}
}

// Start launches the monitor loop in a background goroutine. Calling Start
// while already running is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.loop()
}

// Stop signals the monitor loop to exit and waits for it to do so. It
// returns within about one second of the current sleep slice completing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()

	<-doneCh
}

func (m *Monitor) loop() {
	defer close(m.doneCh)

	for {
		m.safeRunCycle()

		slices := int(m.interval / time.Second)
		if slices < 1 {
			slices = 1
		}
		for i := 0; i < slices; i++ {
			select {
			case <-m.stopCh:
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (m *Monitor) safeRunCycle() {
	defer func() {
		if r := recover(); r != nil && m.log != nil {
			m.log.WithField("panic", r).Error("health check cycle recovered from panic")
		}
	}()
	m.runCycle()
}

func (m *Monitor) runCycle() {
	m.registry.Refresh()

	targets := m.tracker.GetAllTargets()
	if len(targets) == 0 {
		return
	}
	if len(targets) > maxTargetsPerCycle {
		targets = targets[:maxTargetsPerCycle]
	}

	for _, target := range targets {
		m.checkTarget(target)
	}
}

func (m *Monitor) checkTarget(target string) {
	defer func() {
		if r := recover(); r != nil && m.log != nil {
			m.log.WithField("panic", r).WithField("target", target).Error("health check for target recovered from panic")
		}
	}()

	metrics := m.tracker.GetTargetMetrics(target)

	var inaccessible, partial []string
	for id, mm := range metrics {
		switch mm.State {
		case runway.StateInaccessible:
			inaccessible = append(inaccessible, id)
		case runway.StatePartiallyAccessible:
			partial = append(partial, id)
		}
	}

	if len(inaccessible) > maxInaccessiblePerTarg {
		inaccessible = inaccessible[:maxInaccessiblePerTarg]
	}
	if len(partial) > maxPartialPerTarget {
		partial = partial[:maxPartialPerTarget]
	}

	for _, id := range append(inaccessible, partial...) {
		rw := m.registry.Get(id)
		if rw == nil {
			continue
		}
		networkSuccess, userSuccess, rtt := m.prober.Probe(target, rw, checkTimeout)

		m.mu.Lock()
		onProbe := m.onProbe
		m.mu.Unlock()
		if onProbe != nil {
			onProbe(target, id, networkSuccess, userSuccess, rtt)
		}
	}
}
