package krawl

import "github.com/jlescarlan11/project-krawl-sub003/internal/stopcard"

// Event types pushed to stream consumers.
const (
	EventSessionStarted = "session_started"
	EventPosition       = "position"
	EventStopArrival    = "stop_arrival"
	EventStopDeparture  = "stop_departure"
	EventStopProgress   = "stop_progress"
	EventCardState      = "card_state"
	EventSensorError    = "sensor_error"
	EventSessionEnded   = "session_ended"
)

// PositionPayload is one smoothed position as shown on the map.
type PositionPayload struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	AccuracyM   float64 `json:"accuracy_m,omitempty"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// NextStopPayload carries the live distance/ETA hint toward the next
// unresolved stop.
type NextStopPayload struct {
	StopID         string  `json:"stop_id"`
	Name           string  `json:"name,omitempty"`
	DistanceMeters float64 `json:"distance_meters"`
	EtaSeconds     float64 `json:"eta_seconds"`
}

// Event is the envelope published on the session's stream channel. Only the
// fields relevant to the Type are populated.
type Event struct {
	Type             string           `json:"type"`
	SessionID        string           `json:"session_id"`
	Position         *PositionPayload `json:"position,omitempty"`
	StopID           string           `json:"stop_id,omitempty"`
	StopStatus       StopStatus       `json:"stop_status,omitempty"`
	DistanceMeters   float64          `json:"distance_meters,omitempty"`
	Card             *stopcard.State  `json:"card,omitempty"`
	Next             *NextStopPayload `json:"next,omitempty"`
	Stops            []Stop           `json:"stops,omitempty"`
	Route            *RouteMetrics    `json:"route,omitempty"`
	Stats            *CompletionStats `json:"stats,omitempty"`
	Error            string           `json:"error,omitempty"`
	PermissionDenied bool             `json:"permission_denied,omitempty"`
}
