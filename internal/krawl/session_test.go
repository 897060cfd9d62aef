package krawl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
	"github.com/jlescarlan11/project-krawl-sub003/internal/geofence"
	"github.com/jlescarlan11/project-krawl-sub003/internal/track"
	"github.com/jlescarlan11/project-krawl-sub003/internal/trail"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) PublishJSON(_ string, v any) {
	ev, ok := v.(Event)
	if !ok {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) byType(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) waitFor(t *testing.T, eventType string, want int) []Event {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := r.byType(eventType); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q events, have %d", want, eventType, len(r.byType(eventType)))
	return nil
}

type stubRoutes struct {
	metrics *RouteMetrics
	err     error
}

func (s stubRoutes) RouteMetrics(context.Context, []geo.Coordinates) (*RouteMetrics, error) {
	return s.metrics, s.err
}

func testStops() []Stop {
	return []Stop{
		{
			ID:          "gem-1",
			Name:        "Carbon Market",
			Category:    "food",
			CreatorNote: "go early",
			LokalSecret: "ask for puso",
			Coordinates: geo.FromLngLat(123.900, 10.300),
		},
		{
			ID:          "gem-2",
			Name:        "Heritage Monument",
			Category:    "culture",
			Coordinates: geo.FromLngLat(123.905, 10.300),
		},
	}
}

func testConfig(source track.Source, store trail.Store, rec *eventRecorder) Config {
	cfg := Config{
		SessionID: "run-1",
		Stops:     testStops(),
		Geofence:  geofence.Config{Debounce: 20 * time.Millisecond, Cooldown: 200 * time.Millisecond, EvalInterval: -1},
		Source:    source,
		Trail:     store,
	}
	// Assigning a nil *eventRecorder directly would box a typed nil into the
	// Broadcaster interface and defeat the session's nil check.
	if rec != nil {
		cfg.Broadcaster = rec
	}
	return cfg
}

func fixAt(c geo.Coordinates, ts int64) geo.Fix {
	return geo.Fix{Latitude: c.Lat, Longitude: c.Lng, AccuracyM: 10, TimestampMs: ts}
}

func TestSessionConfigValidation(t *testing.T) {
	if _, err := NewSession(Config{Source: track.NewPushSource()}); !errors.Is(err, ErrNoStops) {
		t.Fatalf("expected ErrNoStops, got %v", err)
	}
	if _, err := NewSession(Config{Stops: testStops()}); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestSessionGeneratesID(t *testing.T) {
	cfg := testConfig(track.NewPushSource(), nil, nil)
	cfg.SessionID = ""
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.ID() == "" {
		t.Fatalf("expected a generated session id")
	}
}

func TestSessionEndToEnd(t *testing.T) {
	source := track.NewPushSource()
	store := trail.NewMemoryStore()
	rec := &eventRecorder{}

	s, err := NewSession(testConfig(source, store, rec))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()

	atStop := testStops()[0].Coordinates
	for i := 0; i < 5; i++ {
		source.Push(fixAt(atStop, int64(1000+i*1000)))
	}

	rec.waitFor(t, EventPosition, 5)
	arrivals := rec.waitFor(t, EventStopArrival, 1)
	if arrivals[0].StopID != "gem-1" {
		t.Fatalf("arrival for wrong stop: %s", arrivals[0].StopID)
	}

	// Staying inside must not produce a second arrival.
	source.Push(fixAt(atStop, 7000))
	time.Sleep(60 * time.Millisecond)
	if got := rec.byType(EventStopArrival); len(got) != 1 {
		t.Fatalf("expected exactly one arrival, got %d", len(got))
	}

	card := s.CardState()
	if !card.Visible || card.CurrentWaypointID != "gem-1" {
		t.Fatalf("expected visible card for gem-1, got %+v", card)
	}

	deadline := time.Now().Add(time.Second)
	for {
		samples, err := store.GetAll(context.Background(), s.ID())
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		if len(samples) == 6 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 6 trail samples, got %d", len(samples))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionCheckOffAdvancesNext(t *testing.T) {
	source := track.NewPushSource()
	rec := &eventRecorder{}
	s, err := NewSession(testConfig(source, nil, rec))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()

	source.Push(fixAt(testStops()[0].Coordinates, 1000))

	if next := s.NextStop(); next == nil || next.ID != "gem-1" {
		t.Fatalf("expected gem-1 next, got %+v", next)
	}

	if err := s.CheckOff("gem-1"); err != nil {
		t.Fatalf("CheckOff: %v", err)
	}
	if got := s.Progress()["gem-1"]; got != StopVisited {
		t.Fatalf("expected visited, got %s", got)
	}
	if next := s.NextStop(); next == nil || next.ID != "gem-2" {
		t.Fatalf("expected gem-2 next, got %+v", next)
	}

	est := s.NextEstimate()
	if est == nil || est.StopID != "gem-2" {
		t.Fatalf("expected estimate toward gem-2, got %+v", est)
	}
	if est.DistanceMeters < 400 || est.DistanceMeters > 700 {
		t.Fatalf("implausible distance to gem-2: %v", est.DistanceMeters)
	}

	progress := rec.byType(EventStopProgress)
	if len(progress) != 1 || progress[0].StopStatus != StopVisited {
		t.Fatalf("expected one visited progress event, got %+v", progress)
	}

	// The zone is disarmed; re-entering the checked-off stop stays quiet.
	if ids := s.monitor.ActiveZoneIDs(); len(ids) != 1 || ids[0] != "gem-2" {
		t.Fatalf("expected only gem-2 armed, got %v", ids)
	}

	// Retrying a resolved stop is a no-op.
	if err := s.CheckOff("gem-1"); err != nil {
		t.Fatalf("retry CheckOff: %v", err)
	}
	if got := rec.byType(EventStopProgress); len(got) != 1 {
		t.Fatalf("retry must not emit another progress event")
	}
}

func TestSessionSkip(t *testing.T) {
	source := track.NewPushSource()
	s, err := NewSession(testConfig(source, nil, nil))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()

	if err := s.Skip("gem-1"); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if got := s.Progress()["gem-1"]; got != StopSkipped {
		t.Fatalf("expected skipped, got %s", got)
	}

	stats := s.End()
	if stats.StopsVisited != 0 {
		t.Fatalf("skipped stops must not count as visited: %+v", stats)
	}
}

func TestSessionResolveErrors(t *testing.T) {
	source := track.NewPushSource()
	s, err := NewSession(testConfig(source, nil, nil))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.CheckOff("no-such-stop"); !errors.Is(err, ErrUnknownStop) {
		t.Fatalf("expected ErrUnknownStop, got %v", err)
	}

	s.End()
	if err := s.CheckOff("gem-1"); !errors.Is(err, ErrEnded) {
		t.Fatalf("expected ErrEnded, got %v", err)
	}
}

func TestSessionEndStats(t *testing.T) {
	source := track.NewPushSource()
	s, err := NewSession(testConfig(source, nil, nil))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.nowFn = func() time.Time { return t0 }
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.CheckOff("gem-1"); err != nil {
		t.Fatalf("CheckOff: %v", err)
	}

	s.nowFn = func() time.Time { return t0.Add(30 * time.Minute) }
	stats := s.End()

	if stats.TotalTimeMinutes != 30 {
		t.Fatalf("expected 30 minutes, got %d", stats.TotalTimeMinutes)
	}
	if stats.StopsVisited != 1 || stats.TotalStops != 2 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.AvgTimePerStopMinutes != 30 {
		t.Fatalf("expected 30m per stop, got %d", stats.AvgTimePerStopMinutes)
	}
	if !stats.CompletionDate.Equal(t0.Add(30 * time.Minute)) {
		t.Fatalf("unexpected completion date: %v", stats.CompletionDate)
	}
}

func TestSessionEndIdempotent(t *testing.T) {
	source := track.NewPushSource()
	s, err := NewSession(testConfig(source, nil, nil))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := s.End()
	second := s.End()
	if first != second {
		t.Fatalf("End must return the same stats on repeat calls")
	}
}

func TestSessionEndCancelsPendingArrival(t *testing.T) {
	source := track.NewPushSource()
	rec := &eventRecorder{}
	cfg := testConfig(source, nil, rec)
	cfg.Geofence.Debounce = 80 * time.Millisecond
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	source.Push(fixAt(testStops()[0].Coordinates, 1000))
	s.End()

	time.Sleep(150 * time.Millisecond)
	if got := rec.byType(EventStopArrival); len(got) != 0 {
		t.Fatalf("arrival must not fire after End, got %d", len(got))
	}
}

func TestSessionDistanceAccumulation(t *testing.T) {
	source := track.NewPushSource()
	s, err := NewSession(testConfig(source, nil, nil))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()

	// ~100m steps along the equator-parallel at this latitude.
	source.Push(geo.Fix{Latitude: 10.300, Longitude: 123.9000, AccuracyM: 10, TimestampMs: 1000})
	source.Push(geo.Fix{Latitude: 10.300, Longitude: 123.9009, AccuracyM: 10, TimestampMs: 2000})

	total := s.TotalDistanceMeters()
	if total < 50 || total > 150 {
		t.Fatalf("expected roughly 100m accumulated, got %v", total)
	}
}

func TestSessionRouteMetrics(t *testing.T) {
	source := track.NewPushSource()
	cfg := testConfig(source, nil, nil)
	cfg.Routes = stubRoutes{metrics: &RouteMetrics{DistanceMeters: 1200, DurationSeconds: 900}}
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()

	m := s.RouteMetrics()
	if m == nil || m.DistanceMeters != 1200 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestSessionRouteProviderFailureIsNotFatal(t *testing.T) {
	source := track.NewPushSource()
	cfg := testConfig(source, nil, nil)
	cfg.Routes = stubRoutes{err: errors.New("router down")}
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start must succeed despite route failure: %v", err)
	}
	defer s.End()

	if s.RouteMetrics() != nil {
		t.Fatalf("expected nil metrics after provider failure")
	}
}

func TestSessionSensorErrorEvent(t *testing.T) {
	source := track.NewPushSource()
	rec := &eventRecorder{}
	s, err := NewSession(testConfig(source, nil, rec))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()

	source.Fail(track.ErrPermissionDenied)

	events := rec.waitFor(t, EventSensorError, 1)
	if !events[0].PermissionDenied {
		t.Fatalf("expected permission-denied flag on %+v", events[0])
	}
}

func TestSessionDismissCard(t *testing.T) {
	source := track.NewPushSource()
	rec := &eventRecorder{}
	s, err := NewSession(testConfig(source, nil, rec))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()

	source.Push(fixAt(testStops()[0].Coordinates, 1000))
	rec.waitFor(t, EventStopArrival, 1)

	s.DismissCard()
	card := s.CardState()
	if card.Visible || !card.Dismissed {
		t.Fatalf("expected dismissed card, got %+v", card)
	}
	if got := s.Progress()["gem-1"]; got != StopPending {
		t.Fatalf("dismiss must not resolve the stop, got %s", got)
	}
}

func TestSessionStopContent(t *testing.T) {
	source := track.NewPushSource()
	s, err := NewSession(testConfig(source, nil, nil))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.End()

	content := s.StopContent("gem-1")
	if content == nil || content.LokalSecret != "ask for puso" {
		t.Fatalf("unexpected content: %+v", content)
	}
	if s.StopContent("nope") != nil {
		t.Fatalf("unknown stop must have nil content")
	}
}
