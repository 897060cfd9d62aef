package stopcard

import "testing"

func TestInitialState(t *testing.T) {
	c := NewController(nil)
	s := c.State()
	if s.Visible || s.CurrentWaypointID != "" || s.Dismissed {
		t.Fatalf("unexpected initial state: %+v", s)
	}
}

func TestEntryRevealsCard(t *testing.T) {
	c := NewController(nil)
	c.OnGeofenceEntry("gem-1")

	s := c.State()
	if !s.Visible || s.CurrentWaypointID != "gem-1" || s.Dismissed {
		t.Fatalf("unexpected state after entry: %+v", s)
	}
}

func TestLastEntryWins(t *testing.T) {
	c := NewController(nil)
	c.OnGeofenceEntry("gem-1")
	c.OnGeofenceEntry("gem-2")

	s := c.State()
	if !s.Visible || s.CurrentWaypointID != "gem-2" {
		t.Fatalf("most recent entry must win: %+v", s)
	}
}

func TestDismissKeepsWaypointReference(t *testing.T) {
	c := NewController(nil)
	c.OnGeofenceEntry("gem-1")
	c.Dismiss()

	s := c.State()
	if s.Visible || !s.Dismissed || s.CurrentWaypointID != "gem-1" {
		t.Fatalf("dismiss must hide but keep the waypoint id: %+v", s)
	}
}

func TestEntryAfterDismissReopens(t *testing.T) {
	c := NewController(nil)
	c.OnGeofenceEntry("gem-1")
	c.Dismiss()
	c.OnGeofenceEntry("gem-2")

	s := c.State()
	if !s.Visible || s.Dismissed || s.CurrentWaypointID != "gem-2" {
		t.Fatalf("a new arrival must reopen the card: %+v", s)
	}
}

func TestHideDoesNotMarkDismissed(t *testing.T) {
	c := NewController(nil)
	c.OnGeofenceEntry("gem-1")
	c.Hide()

	s := c.State()
	if s.Visible || s.Dismissed {
		t.Fatalf("hide must not set dismissed: %+v", s)
	}
}

func TestCheckOffAndSkipCloseCurrentCard(t *testing.T) {
	c := NewController(nil)
	c.OnGeofenceEntry("gem-1")
	c.CheckOff("gem-1")
	if s := c.State(); s.Visible || !s.Dismissed {
		t.Fatalf("check-off must close the card: %+v", s)
	}

	c.OnGeofenceEntry("gem-2")
	c.Skip("gem-2")
	if s := c.State(); s.Visible || !s.Dismissed {
		t.Fatalf("skip must close the card: %+v", s)
	}
}

func TestAcknowledgeIgnoresStaleWaypoint(t *testing.T) {
	c := NewController(nil)
	c.OnGeofenceEntry("gem-2")
	c.CheckOff("gem-1") // not the waypoint on screen

	if s := c.State(); !s.Visible || s.CurrentWaypointID != "gem-2" {
		t.Fatalf("stale acknowledgement must not close the card: %+v", s)
	}
}

func TestContentLookup(t *testing.T) {
	c := NewController(nil)
	c.Prefetch([]Content{
		{WaypointID: "gem-1", Name: "Sugbo Mercado", Category: "food", CreatorNote: "go hungry", LokalSecret: "order the lechon sisig"},
	})

	got := c.Content("gem-1")
	if got == nil || got.Name != "Sugbo Mercado" {
		t.Fatalf("unexpected content: %+v", got)
	}
	if c.Content("gem-404") != nil {
		t.Fatalf("missing content must be nil, not an error")
	}
}

func TestOnChangeObservesTransitions(t *testing.T) {
	var states []State
	c := NewController(func(s State) { states = append(states, s) })

	c.OnGeofenceEntry("gem-1")
	c.Dismiss()

	if len(states) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(states))
	}
	if !states[0].Visible || states[1].Visible || !states[1].Dismissed {
		t.Fatalf("unexpected transition sequence: %+v", states)
	}
}

func TestResetClearsStateAndContent(t *testing.T) {
	c := NewController(nil)
	c.Prefetch([]Content{{WaypointID: "gem-1", Name: "x"}})
	c.OnGeofenceEntry("gem-1")
	c.Reset()

	if s := c.State(); s.Visible || s.CurrentWaypointID != "" {
		t.Fatalf("reset must clear state: %+v", s)
	}
	if c.Content("gem-1") != nil {
		t.Fatalf("reset must drop the content cache")
	}
}
