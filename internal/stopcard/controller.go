// Package stopcard drives the stop detail card shown when the user arrives
// at a waypoint: a small state machine over visibility plus an in-memory
// cache of content pre-fetched at session start.
package stopcard

import "sync"

// State is the card's externally visible state. CurrentWaypointID survives
// a dismiss so the UI can keep referring to the last shown stop.
type State struct {
	Visible           bool   `json:"visible"`
	CurrentWaypointID string `json:"current_waypoint_id,omitempty"`
	Dismissed         bool   `json:"dismissed"`
}

// Content is the pre-fetched payload for one waypoint, loaded once at
// session start and read-only afterwards.
type Content struct {
	WaypointID   string `json:"waypoint_id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	CreatorNote  string `json:"creator_note"`
	LokalSecret  string `json:"lokal_secret"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Controller owns the card state for one session. The onChange hook, when
// set, observes every transition and is invoked with the mutex released.
type Controller struct {
	mu       sync.Mutex
	state    State
	content  map[string]Content
	onChange func(State)
}

func NewController(onChange func(State)) *Controller {
	return &Controller{
		content:  map[string]Content{},
		onChange: onChange,
	}
}

// Prefetch loads waypoint content into the cache, replacing any previous
// entry for the same waypoint.
func (c *Controller) Prefetch(items []Content) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range items {
		c.content[item.WaypointID] = item
	}
}

// Content returns the pre-fetched payload for a waypoint, or nil when the
// waypoint was never pre-fetched. A missing entry means "content
// unavailable", not an error.
func (c *Controller) Content(waypointID string) *Content {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.content[waypointID]; ok {
		return &item
	}
	return nil
}

// OnGeofenceEntry reveals the card for the arrived waypoint. The transition
// is unconditional: an entry while a different waypoint's card is visible
// replaces it — last entry wins. Whether arrivals should queue instead is a
// product question; today the most recent arrival is what the user sees.
func (c *Controller) OnGeofenceEntry(waypointID string) {
	c.transition(func(s *State) {
		s.Visible = true
		s.CurrentWaypointID = waypointID
		s.Dismissed = false
	})
}

// Dismiss hides the card and records that the user dismissed it.
func (c *Controller) Dismiss() {
	c.transition(func(s *State) {
		s.Visible = false
		s.Dismissed = true
	})
}

// Hide hides the card without marking it dismissed, for transient UI
// situations like navigating away mid-arrival.
func (c *Controller) Hide() {
	c.transition(func(s *State) {
		s.Visible = false
	})
}

// CheckOff acknowledges the waypoint as done from the card. Visit
// bookkeeping (marking progress, disarming the zone) belongs to the session
// that owns the waypoint list; the controller only closes the card.
func (c *Controller) CheckOff(waypointID string) {
	c.acknowledge(waypointID)
}

// Skip acknowledges the waypoint as skipped from the card. Same division of
// labor as CheckOff.
func (c *Controller) Skip(waypointID string) {
	c.acknowledge(waypointID)
}

func (c *Controller) acknowledge(waypointID string) {
	c.mu.Lock()
	if c.state.CurrentWaypointID != waypointID {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.Dismiss()
}

// State returns a snapshot of the card state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset clears the card state and drops the content cache; called when the
// session ends.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.state = State{}
	c.content = map[string]Content{}
	c.mu.Unlock()
}

func (c *Controller) transition(mutate func(*State)) {
	c.mu.Lock()
	mutate(&c.state)
	snapshot := c.state
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
}
