package track

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
	"github.com/jlescarlan11/project-krawl-sub003/internal/trail"
)

const (
	// DefaultUpdateInterval is the requested cadence of the fix stream.
	DefaultUpdateInterval = 5 * time.Second

	// historyLimit bounds the in-memory fix history used for smoothing.
	historyLimit = 5

	// smoothMinFixes is how many accepted fixes are needed before smoothing
	// kicks in; below that the raw fix is published as-is.
	smoothMinFixes = 3
)

var errAlreadyStarted = errors.New("tracking session already started")

// Options configures one tracking run.
type Options struct {
	// SessionID enables trail persistence when non-empty.
	SessionID string
	// UpdateInterval between requested fixes; defaults to 5s.
	UpdateInterval time.Duration
	// HighAccuracy requests the device's precise positioning mode.
	HighAccuracy bool
	// OnUpdate receives every accepted, smoothed position.
	OnUpdate func(position geo.Fix)
}

// Session owns a single continuous subscription to a location source and
// republishes a smoothed position for every accepted raw fix. Data-quality
// rejections are silent; sensor failures surface on Errors.
type Session struct {
	source Source
	store  trail.Store

	// cbMu serializes OnUpdate delivery with Stop so no update is
	// delivered after Stop returns. OnUpdate must not call Stop.
	cbMu sync.Mutex

	mu      sync.Mutex
	sub     Subscription
	opts    Options
	history []geo.Fix
	last    *geo.Fix
	current *geo.Fix
	started bool

	maxJumpM float64
	window   int
	errs     chan error
}

func NewSession(source Source, store trail.Store) *Session {
	return &Session{
		source:   source,
		store:    store,
		maxJumpM: geo.DefaultMaxJumpMeters,
		window:   geo.DefaultSmoothingWindow,
		errs:     make(chan error, 8),
	}
}

// Start subscribes to the location source. Subscription failures (for
// example an unsupported platform) are returned directly; asynchronous
// sensor errors arrive on Errors.
func (s *Session) Start(opts Options) error {
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = DefaultUpdateInterval
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errAlreadyStarted
	}
	s.opts = opts
	s.history = nil
	s.last = nil
	s.current = nil
	s.started = true
	s.mu.Unlock()

	sub, err := s.source.Subscribe(s.handleFix, s.handleError, SubscribeOptions{
		HighAccuracy: opts.HighAccuracy,
		Interval:     opts.UpdateInterval,
	})
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Stop cancels the subscription. Idempotent; no OnUpdate call is delivered
// after Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.started = false
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}

	// Wait out an in-flight OnUpdate before returning.
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
}

// Current returns the latest smoothed position, or nil before the first
// accepted fix.
func (s *Session) Current() *geo.Fix {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	f := *s.current
	return &f
}

// Errors delivers sensor-level failures (permission denied, unsupported,
// timeouts). The channel is buffered; a failure is dropped when no one is
// draining it.
func (s *Session) Errors() <-chan error {
	return s.errs
}

func (s *Session) handleFix(fix geo.Fix) {
	if fix.TimestampMs == 0 {
		fix.TimestampMs = time.Now().UnixMilli()
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}

	if !geo.IsValidUpdate(s.last, fix, s.maxJumpM) {
		s.mu.Unlock()
		return
	}

	s.history = append(s.history, fix)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}

	published := fix
	if len(s.history) >= smoothMinFixes {
		if smoothed := geo.Smooth(s.history, s.window); smoothed != nil {
			published = *smoothed
		}
	}

	s.current = &published
	s.last = &published

	sessionID := s.opts.SessionID
	store := s.store
	s.mu.Unlock()

	if store != nil && sessionID != "" {
		// Fire and forget: trail persistence never blocks or interrupts
		// the live feed.
		go store.Append(context.Background(), trail.Sample{
			SessionID:   sessionID,
			Latitude:    published.Latitude,
			Longitude:   published.Longitude,
			AccuracyM:   published.AccuracyM,
			TimestampMs: published.TimestampMs,
		})
	}

	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	onUpdate := s.opts.OnUpdate
	if !s.started {
		// Stop won the race; drop the update.
		onUpdate = nil
	}
	s.mu.Unlock()

	if onUpdate != nil {
		onUpdate(published)
	}
}

func (s *Session) handleError(err error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}

	select {
	case s.errs <- err:
	default:
	}
}
