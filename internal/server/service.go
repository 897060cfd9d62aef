// Package server is the gateway surface the device UI talks to: fixes come
// in over HTTP, session state and events go out over HTTP and websocket.
// The navigation engine itself stays in-process.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jlescarlan11/project-krawl-sub003/internal/config"
	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
	"github.com/jlescarlan11/project-krawl-sub003/internal/geofence"
	"github.com/jlescarlan11/project-krawl-sub003/internal/krawl"
	"github.com/jlescarlan11/project-krawl-sub003/internal/stream"
	"github.com/jlescarlan11/project-krawl-sub003/internal/track"
	"github.com/jlescarlan11/project-krawl-sub003/internal/trail"
)

var (
	ErrUnknownSession   = errors.New("unknown session")
	ErrPushNotSupported = errors.New("session does not accept pushed fixes")
)

// Service owns the live sessions behind the gateway routes and the wiring
// each new run needs.
type Service struct {
	cfg      config.Config
	store    trail.Store
	hub      *stream.Hub
	routes   krawl.RouteProvider
	sessions *krawl.Manager

	mu      sync.Mutex
	sources map[string]*track.PushSource
}

func NewService(cfg config.Config, store trail.Store, hub *stream.Hub, routes krawl.RouteProvider) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		hub:      hub,
		routes:   routes,
		sessions: krawl.NewManager(),
		sources:  map[string]*track.PushSource{},
	}
}

// StartSession creates, registers and starts a run over the given stops.
func (s *Service) StartSession(ctx context.Context, sessionID string, stops []krawl.Stop) (*krawl.Session, error) {
	source, push := s.newSource(stops)

	sess, err := krawl.NewSession(krawl.Config{
		SessionID:      sessionID,
		Stops:          stops,
		StopRadiusM:    s.cfg.GeofenceRadiusM,
		Geofence:       s.geofenceConfig(),
		UpdateInterval: time.Duration(s.cfg.UpdateIntervalMs) * time.Millisecond,
		HighAccuracy:   s.cfg.HighAccuracy,
		Source:         source,
		Trail:          s.store,
		Broadcaster:    s.hub,
		Routes:         s.routes,
	})
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Add(sess); err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		s.sessions.Remove(sess.ID())
		return nil, err
	}

	if push != nil {
		s.mu.Lock()
		s.sources[sess.ID()] = push
		s.mu.Unlock()
	}
	return sess, nil
}

// EndSession ends a run and returns its completion statistics.
func (s *Service) EndSession(id string) (*krawl.CompletionStats, error) {
	sess, ok := s.sessions.Remove(id)
	if !ok {
		return nil, ErrUnknownSession
	}
	s.mu.Lock()
	delete(s.sources, id)
	s.mu.Unlock()
	return sess.End(), nil
}

// Session resolves a live run by id.
func (s *Service) Session(id string) (*krawl.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// PushFix feeds one raw device fix into a push-sourced session.
func (s *Service) PushFix(id string, fix geo.Fix) error {
	if _, ok := s.sessions.Get(id); !ok {
		return ErrUnknownSession
	}
	s.mu.Lock()
	push := s.sources[id]
	s.mu.Unlock()
	if push == nil {
		return ErrPushNotSupported
	}
	push.Push(fix)
	return nil
}

// Shutdown ends every live session; called when the daemon stops.
func (s *Service) Shutdown() {
	s.sessions.EndAll()
	s.mu.Lock()
	s.sources = map[string]*track.PushSource{}
	s.mu.Unlock()
}

// newSource builds the location source for a new run. The push source doubles
// as the ingestion endpoint's target; the simulated source walks the stops.
func (s *Service) newSource(stops []krawl.Stop) (track.Source, *track.PushSource) {
	if s.cfg.TrackSource == "simulated" {
		path := make([]geo.Coordinates, len(stops))
		for i, stop := range stops {
			path[i] = stop.Coordinates
		}
		return track.NewSimulatedSource(track.SimulatedConfig{
			Origin:    path[0],
			Path:      path,
			JitterM:   5,
			AccuracyM: 10,
		}), nil
	}
	push := track.NewPushSource()
	return push, push
}

func (s *Service) geofenceConfig() geofence.Config {
	return geofence.Config{
		Debounce:     time.Duration(s.cfg.DebounceMs) * time.Millisecond,
		Cooldown:     time.Duration(s.cfg.CooldownMs) * time.Millisecond,
		EvalInterval: time.Duration(s.cfg.EvalIntervalMs) * time.Millisecond,
	}
}
