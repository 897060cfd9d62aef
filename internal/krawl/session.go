// Package krawl orchestrates one live Krawl run: a tracking session feeds a
// geofence monitor armed over the run's stops, arrivals reveal the stop
// detail card, progress and positions fan out to stream consumers, and the
// run closes with completion statistics.
package krawl

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jlescarlan11/project-krawl-sub003/internal/eta"
	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
	"github.com/jlescarlan11/project-krawl-sub003/internal/geofence"
	"github.com/jlescarlan11/project-krawl-sub003/internal/stopcard"
	"github.com/jlescarlan11/project-krawl-sub003/internal/track"
	"github.com/jlescarlan11/project-krawl-sub003/internal/trail"
)

// DefaultStopRadiusM is the arrival radius around each stop.
const DefaultStopRadiusM = 50.0

var (
	ErrNoStops     = errors.New("a krawl needs at least one stop")
	ErrNoSource    = errors.New("a krawl needs a location source")
	ErrUnknownStop = errors.New("unknown stop")
	ErrEnded       = errors.New("session already ended")
)

// StopStatus tracks per-stop progress through the run.
type StopStatus string

const (
	StopPending StopStatus = "pending"
	StopVisited StopStatus = "visited"
	StopSkipped StopStatus = "skipped"
)

// Stop is one waypoint of the run, in visit order.
type Stop struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category,omitempty"`
	CreatorNote  string          `json:"creator_note,omitempty"`
	LokalSecret  string          `json:"lokal_secret,omitempty"`
	ThumbnailURL string          `json:"thumbnail_url,omitempty"`
	Coordinates  geo.Coordinates `json:"coordinates"`
	// RadiusM overrides the session's arrival radius when > 0.
	RadiusM float64 `json:"radius_m,omitempty"`
}

// Broadcaster fans session events out to stream consumers. The stream hub
// satisfies it; tests substitute a recorder.
type Broadcaster interface {
	PublishJSON(sessionID string, v any)
}

// RouteMetrics is the routed distance/duration across the ordered stops.
type RouteMetrics struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// RouteProvider is the external routing collaborator. A failure leaves the
// metrics unavailable for the run; it is never fatal.
type RouteProvider interface {
	RouteMetrics(ctx context.Context, stops []geo.Coordinates) (*RouteMetrics, error)
}

// Config assembles the collaborators of one run. Source is required; Trail,
// Broadcaster and Routes are optional.
type Config struct {
	// SessionID is generated when empty.
	SessionID string
	Stops     []Stop
	// StopRadiusM is the default arrival radius; 0 means DefaultStopRadiusM.
	StopRadiusM    float64
	Geofence       geofence.Config
	UpdateInterval time.Duration
	HighAccuracy   bool

	Source      track.Source
	Trail       trail.Store
	Broadcaster Broadcaster
	Routes      RouteProvider
}

// Session is one live run. All collaborators are owned: End tears down the
// tracker, the monitor and the card together.
type Session struct {
	id          string
	tracker     *track.Session
	monitor     *geofence.Monitor
	card        *stopcard.Controller
	store       trail.Store
	broadcaster Broadcaster
	routes      RouteProvider

	stopRadiusM    float64
	updateInterval time.Duration
	highAccuracy   bool

	mu             sync.Mutex
	stops          []Stop
	status         map[string]StopStatus
	startedAt      time.Time
	lastPos        *geo.Coordinates
	totalDistanceM float64
	metrics        *RouteMetrics
	stats          *CompletionStats
	ended          bool
	done           chan struct{}

	nowFn func() time.Time
}

func NewSession(cfg Config) (*Session, error) {
	if len(cfg.Stops) == 0 {
		return nil, ErrNoStops
	}
	if cfg.Source == nil {
		return nil, ErrNoSource
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.StopRadiusM <= 0 {
		cfg.StopRadiusM = DefaultStopRadiusM
	}

	s := &Session{
		id:             cfg.SessionID,
		tracker:        track.NewSession(cfg.Source, cfg.Trail),
		monitor:        geofence.NewMonitor(cfg.Geofence),
		store:          cfg.Trail,
		broadcaster:    cfg.Broadcaster,
		routes:         cfg.Routes,
		stopRadiusM:    cfg.StopRadiusM,
		updateInterval: cfg.UpdateInterval,
		highAccuracy:   cfg.HighAccuracy,
		stops:          append([]Stop(nil), cfg.Stops...),
		status:         map[string]StopStatus{},
		done:           make(chan struct{}),
		nowFn:          time.Now,
	}
	for _, stop := range s.stops {
		s.status[stop.ID] = StopPending
	}
	s.card = stopcard.NewController(s.onCardChange)
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Start begins the run: subscribes to the location source, pre-fetches stop
// content, arms a geofence per stop and announces the session on the stream.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrEnded
	}
	s.startedAt = s.nowFn()
	s.mu.Unlock()

	err := s.tracker.Start(track.Options{
		SessionID:      s.id,
		UpdateInterval: s.updateInterval,
		HighAccuracy:   s.highAccuracy,
		OnUpdate:       s.onPosition,
	})
	if err != nil {
		return err
	}

	content := make([]stopcard.Content, 0, len(s.stops))
	for _, stop := range s.stops {
		content = append(content, stopcard.Content{
			WaypointID:   stop.ID,
			Name:         stop.Name,
			Category:     stop.Category,
			CreatorNote:  stop.CreatorNote,
			LokalSecret:  stop.LokalSecret,
			ThumbnailURL: stop.ThumbnailURL,
		})
	}
	s.card.Prefetch(content)

	for _, stop := range s.stops {
		radius := stop.RadiusM
		if radius <= 0 {
			radius = s.stopRadiusM
		}
		s.monitor.AddZone(stop.ID, stop.Coordinates, radius, geofence.Callbacks{
			OnEntry: s.onEntry,
			OnExit:  s.onExit,
		})
	}

	var metrics *RouteMetrics
	if s.routes != nil {
		coords := make([]geo.Coordinates, len(s.stops))
		for i, stop := range s.stops {
			coords[i] = stop.Coordinates
		}
		m, err := s.routes.RouteMetrics(ctx, coords)
		if err != nil {
			log.Printf("krawl: route metrics unavailable for %s: %v", s.id, err)
		} else {
			metrics = m
		}
	}
	s.mu.Lock()
	s.metrics = metrics
	s.mu.Unlock()

	go s.drainSensorErrors()

	s.publish(Event{
		Type:  EventSessionStarted,
		Stops: s.Stops(),
		Route: metrics,
	})
	return nil
}

// End stops the run and returns its completion statistics. Idempotent; a
// second call returns the stats computed the first time.
func (s *Session) End() *CompletionStats {
	s.mu.Lock()
	if s.ended {
		stats := s.stats
		s.mu.Unlock()
		return stats
	}
	s.ended = true
	visited := 0
	for _, status := range s.status {
		if status == StopVisited {
			visited++
		}
	}
	stats := calculateCompletionStats(s.startedAt, s.nowFn(), s.totalDistanceM, visited, len(s.stops))
	s.stats = stats
	close(s.done)
	s.mu.Unlock()

	s.tracker.Stop()
	s.monitor.Close()
	s.card.Reset()

	s.publish(Event{Type: EventSessionEnded, Stats: stats})
	return stats
}

// CheckOff marks a stop as visited, disarms its zone and closes its card.
func (s *Session) CheckOff(stopID string) error {
	return s.resolve(stopID, StopVisited)
}

// Skip marks a stop as skipped. Same bookkeeping as CheckOff, different tally.
func (s *Session) Skip(stopID string) error {
	return s.resolve(stopID, StopSkipped)
}

func (s *Session) resolve(stopID string, status StopStatus) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrEnded
	}
	current, ok := s.status[stopID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownStop
	}
	if current != StopPending {
		// Already resolved; retries are harmless.
		s.mu.Unlock()
		return nil
	}
	s.status[stopID] = status
	s.mu.Unlock()

	s.monitor.RemoveZone(stopID)
	if status == StopVisited {
		s.card.CheckOff(stopID)
	} else {
		s.card.Skip(stopID)
	}

	s.publish(Event{
		Type:       EventStopProgress,
		StopID:     stopID,
		StopStatus: status,
		Next:       s.NextEstimate(),
	})
	return nil
}

// DismissCard hides the stop card without resolving the stop.
func (s *Session) DismissCard() {
	s.card.Dismiss()
}

// CardState returns the current stop card state.
func (s *Session) CardState() stopcard.State {
	return s.card.State()
}

// StopContent returns the pre-fetched card content for a stop, or nil.
func (s *Session) StopContent(stopID string) *stopcard.Content {
	return s.card.Content(stopID)
}

// Stops returns the run's stops in visit order.
func (s *Session) Stops() []Stop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Stop(nil), s.stops...)
}

// Progress returns a snapshot of per-stop status.
func (s *Session) Progress() map[string]StopStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]StopStatus, len(s.status))
	for id, status := range s.status {
		out[id] = status
	}
	return out
}

// NextStop returns the first pending stop in visit order, or nil when every
// stop is resolved.
func (s *Session) NextStop() *Stop {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.stops {
		if s.status[s.stops[i].ID] == StopPending {
			stop := s.stops[i]
			return &stop
		}
	}
	return nil
}

// NextEstimate returns the distance/ETA hint toward the next pending stop.
// Nil means no pending stop remains or no position is known yet; callers
// render that as "calculating".
func (s *Session) NextEstimate() *NextStopPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextEstimateLocked()
}

func (s *Session) nextEstimateLocked() *NextStopPayload {
	if s.lastPos == nil {
		return nil
	}
	for i := range s.stops {
		if s.status[s.stops[i].ID] != StopPending {
			continue
		}
		est := eta.Walking(s.lastPos, &s.stops[i].Coordinates)
		if est == nil {
			return nil
		}
		return &NextStopPayload{
			StopID:         s.stops[i].ID,
			Name:           s.stops[i].Name,
			DistanceMeters: est.DistanceMeters,
			EtaSeconds:     est.EtaSeconds,
		}
	}
	return nil
}

// RouteMetrics returns the routed totals for the run, or nil when the
// routing collaborator failed or was not configured.
func (s *Session) RouteMetrics() *RouteMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// TotalDistanceMeters is the distance accumulated between consecutive
// smoothed positions so far.
func (s *Session) TotalDistanceMeters() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalDistanceM
}

// Trail returns the persisted trail samples for this run.
func (s *Session) Trail(ctx context.Context) ([]trail.Sample, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.GetAll(ctx, s.id)
}

// Errors exposes sensor-level failures from the tracking layer.
func (s *Session) Errors() <-chan error {
	return s.tracker.Errors()
}

func (s *Session) onPosition(fix geo.Fix) {
	pos := fix.Coordinates()

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	if s.lastPos != nil {
		s.totalDistanceM += geo.DistanceMeters(*s.lastPos, pos)
	}
	s.lastPos = &pos
	s.mu.Unlock()

	s.monitor.UpdateLocation(pos)

	s.publish(Event{
		Type: EventPosition,
		Position: &PositionPayload{
			Latitude:    fix.Latitude,
			Longitude:   fix.Longitude,
			AccuracyM:   fix.AccuracyM,
			TimestampMs: fix.TimestampMs,
		},
		Next: s.NextEstimate(),
	})
}

func (s *Session) onEntry(stopID string, distanceM float64) {
	s.mu.Lock()
	if s.ended || s.status[stopID] != StopPending {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.card.OnGeofenceEntry(stopID)
	s.publish(Event{
		Type:           EventStopArrival,
		StopID:         stopID,
		DistanceMeters: distanceM,
	})
}

func (s *Session) onExit(stopID string) {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return
	}
	s.publish(Event{Type: EventStopDeparture, StopID: stopID})
}

func (s *Session) onCardChange(state stopcard.State) {
	s.publish(Event{Type: EventCardState, Card: &state})
}

func (s *Session) drainSensorErrors() {
	for {
		select {
		case err := <-s.tracker.Errors():
			s.publish(Event{
				Type:             EventSensorError,
				Error:            err.Error(),
				PermissionDenied: errors.Is(err, track.ErrPermissionDenied),
			})
		case <-s.done:
			return
		}
	}
}

func (s *Session) publish(ev Event) {
	if s.broadcaster == nil {
		return
	}
	ev.SessionID = s.id
	s.broadcaster.PublishJSON(s.id, ev)
}
