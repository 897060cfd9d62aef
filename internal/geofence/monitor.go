// Package geofence watches a set of named circular zones and emits debounced
// entry/exit events as the tracked position moves. Zones re-arm after exit
// only once a cool-down has elapsed, so GPS jitter at a boundary cannot fire
// the same arrival repeatedly.
package geofence

import (
	"sync"
	"time"

	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
)

const (
	// DefaultDebounce is how long a position must stay inside a zone
	// before the entry callback fires.
	DefaultDebounce = 2 * time.Second

	// DefaultCooldown is the minimum time since the last entry before an
	// exited zone may trigger again.
	DefaultCooldown = 30 * time.Second

	// DefaultEvalInterval is the periodic re-evaluation cadence.
	DefaultEvalInterval = 2 * time.Second
)

// Callbacks carries the optional event hooks for one zone. OnEntry receives
// the zone id and the distance to center measured when the entry was first
// observed.
type Callbacks struct {
	OnEntry func(id string, distanceM float64)
	OnExit  func(id string)
}

type zone struct {
	id        string
	center    geo.Coordinates
	radiusM   float64
	callbacks Callbacks

	inside    bool
	triggered bool
	debounce  *time.Timer
	lastEntry time.Time
}

// Config tunes a Monitor. Zero values fall back to the package defaults.
// EvalInterval < 0 disables the periodic ticker entirely; evaluation then
// happens synchronously on every UpdateLocation, which is what the tests use
// for determinism.
type Config struct {
	Debounce     time.Duration
	Cooldown     time.Duration
	EvalInterval time.Duration
}

// Monitor owns a set of zones and the latest known position. All state
// mutation happens under one mutex; callbacks are always invoked with the
// mutex released so they may call back into the monitor.
type Monitor struct {
	// cbWG counts in-flight callbacks so Close can wait them out.
	// Callbacks may call back into the monitor, but not Close.
	cbWG sync.WaitGroup

	mu       sync.Mutex
	zones    map[string]*zone
	order    []string
	current  *geo.Coordinates
	debounce time.Duration
	cooldown time.Duration
	interval time.Duration

	ticker     *time.Ticker
	done       chan struct{}
	monitoring bool
	closed     bool

	nowFn func() time.Time
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.EvalInterval == 0 {
		cfg.EvalInterval = DefaultEvalInterval
	}

	return &Monitor{
		zones:    map[string]*zone{},
		debounce: cfg.Debounce,
		cooldown: cfg.Cooldown,
		interval: cfg.EvalInterval,
		nowFn:    time.Now,
	}
}

// AddZone registers a circular zone, replacing any existing zone with the
// same id. If a position is already known the zone is evaluated immediately.
// Registering the first zone starts periodic evaluation.
func (m *Monitor) AddZone(id string, center geo.Coordinates, radiusM float64, callbacks Callbacks) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.removeZoneLocked(id)

	z := &zone{id: id, center: center, radiusM: radiusM, callbacks: callbacks}
	m.zones[id] = z
	m.order = append(m.order, id)

	var fire []func()
	if m.current != nil {
		fire = m.checkZoneLocked(z)
	}
	if !m.monitoring && m.interval > 0 {
		m.startMonitoringLocked()
	}
	m.mu.Unlock()

	m.fire(fire)
}

// RemoveZone cancels any pending debounce timer for the zone and deletes it.
// Removing the last zone stops periodic evaluation.
func (m *Monitor) RemoveZone(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeZoneLocked(id)
	if len(m.zones) == 0 {
		m.stopMonitoringLocked()
	}
}

func (m *Monitor) removeZoneLocked(id string) {
	z, ok := m.zones[id]
	if !ok {
		return
	}
	if z.debounce != nil {
		z.debounce.Stop()
		z.debounce = nil
	}
	delete(m.zones, id)
	for i, zid := range m.order {
		if zid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// UpdateLocation records the latest position. When the periodic ticker is
// not running, all zones are evaluated synchronously in registration order.
func (m *Monitor) UpdateLocation(position geo.Coordinates) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.current = &position

	var fire []func()
	if !m.monitoring {
		fire = m.checkAllLocked()
	}
	m.mu.Unlock()

	m.fire(fire)
}

// fire runs deferred callbacks with the state mutex released. The closed
// check and the in-flight count share one critical section, so Close either
// prevents a callback or waits for it.
func (m *Monitor) fire(fns []func()) {
	if len(fns) == 0 {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.cbWG.Add(1)
	m.mu.Unlock()
	defer m.cbWG.Done()

	for _, f := range fns {
		f()
	}
}

func (m *Monitor) checkAllLocked() []func() {
	var fire []func()
	for _, id := range m.order {
		if z, ok := m.zones[id]; ok {
			fire = append(fire, m.checkZoneLocked(z)...)
		}
	}
	return fire
}

// checkZoneLocked runs one evaluation step for a zone and returns the
// callbacks to invoke once the mutex is released.
func (m *Monitor) checkZoneLocked(z *zone) []func() {
	if m.current == nil {
		return nil
	}

	distance := geo.DistanceMeters(*m.current, z.center)
	inside := distance <= z.radiusM

	var fire []func()

	if inside && !z.inside {
		z.inside = true

		// A trigger goes stale once the cool-down since the last entry has
		// elapsed; a fresh visit may then fire again.
		if z.triggered && !z.lastEntry.IsZero() && m.nowFn().Sub(z.lastEntry) > m.cooldown {
			z.triggered = false
		}

		if !z.triggered {
			z.lastEntry = m.nowFn()

			if z.debounce != nil {
				z.debounce.Stop()
			}
			entryDistance := distance
			z.debounce = time.AfterFunc(m.debounce, func() {
				m.confirmEntry(z.id, entryDistance)
			})
		}
	}

	if !inside && z.inside {
		z.inside = false

		if z.debounce != nil {
			z.debounce.Stop()
			z.debounce = nil
		}

		// Re-arm only when the cool-down since the last entry has passed;
		// a legitimate second visit is allowed, boundary jitter is not.
		if !z.lastEntry.IsZero() && m.nowFn().Sub(z.lastEntry) > m.cooldown {
			z.triggered = false
		}

		if cb := z.callbacks.OnExit; cb != nil {
			id := z.id
			fire = append(fire, func() { cb(id) })
		}
	}

	return fire
}

// confirmEntry fires once the debounce window has elapsed, provided the
// position is still inside the zone and the zone has not been removed,
// reset or already triggered in the meantime.
func (m *Monitor) confirmEntry(id string, distanceM float64) {
	m.mu.Lock()
	z, ok := m.zones[id]
	if !ok || m.closed || !z.inside || z.triggered {
		m.mu.Unlock()
		return
	}
	z.triggered = true
	z.debounce = nil
	cb := z.callbacks.OnEntry
	m.cbWG.Add(1)
	m.mu.Unlock()
	defer m.cbWG.Done()

	if cb != nil {
		cb(id, distanceM)
	}
}

// Distance returns the distance in meters from the current position to the
// zone center. The second return is false when the zone is unknown or no
// position has been recorded yet.
func (m *Monitor) Distance(id string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.zones[id]
	if !ok || m.current == nil {
		return 0, false
	}
	return geo.DistanceMeters(*m.current, z.center), true
}

// IsWithinRadius reports whether the current position lies inside the zone.
func (m *Monitor) IsWithinRadius(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.zones[id]
	if !ok || m.current == nil {
		return false
	}
	return geo.DistanceMeters(*m.current, z.center) <= z.radiusM
}

// ResetTrigger clears the triggered flag so the zone may fire again on the
// next confirmed entry, regardless of cool-down.
func (m *Monitor) ResetTrigger(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[id]; ok {
		z.triggered = false
	}
}

// ActiveZoneIDs returns the registered zone ids in registration order.
func (m *Monitor) ActiveZoneIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// ClearAll cancels every pending timer, removes all zones, stops periodic
// evaluation and forgets the current position.
func (m *Monitor) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, z := range m.zones {
		if z.debounce != nil {
			z.debounce.Stop()
			z.debounce = nil
		}
	}
	m.zones = map[string]*zone{}
	m.order = nil
	m.current = nil
	m.stopMonitoringLocked()
}

// Close tears the monitor down. No callback fires after Close returns; an
// in-flight callback is waited out. Must not be called from a callback.
func (m *Monitor) Close() {
	m.ClearAll()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cbWG.Wait()
}

func (m *Monitor) startMonitoringLocked() {
	m.monitoring = true
	m.ticker = time.NewTicker(m.interval)
	m.done = make(chan struct{})

	go func(ticker *time.Ticker, done chan struct{}) {
		for {
			select {
			case <-ticker.C:
				m.mu.Lock()
				fire := m.checkAllLocked()
				m.mu.Unlock()
				m.fire(fire)
			case <-done:
				return
			}
		}
	}(m.ticker, m.done)
}

func (m *Monitor) stopMonitoringLocked() {
	if !m.monitoring {
		return
	}
	m.ticker.Stop()
	close(m.done)
	m.ticker = nil
	m.done = nil
	m.monitoring = false
}
