// Package trail persists the location trail of a tracking session so a run
// can be reconstructed offline. Writes are a best-effort side channel: a
// failing backend must never interrupt live navigation, so Append, Clear and
// PruneOlderThan log failures and carry on instead of returning errors.
package trail

import (
	"context"
	"time"
)

// DefaultRetainDays is the age past which samples are pruned.
const DefaultRetainDays = 7

// Sample is one stored location fix. Samples are append-only: they are
// created when a tracked fix is accepted and only ever removed by Clear or
// age-based pruning.
type Sample struct {
	ID          int64   `json:"id"`
	SessionID   string  `json:"session_id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	AccuracyM   float64 `json:"accuracy_m,omitempty"`
	Heading     float64 `json:"heading,omitempty"`
	SpeedMps    float64 `json:"speed_mps,omitempty"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// Store is the trail persistence contract. GetAll returns samples in no
// particular order; callers sort by timestamp when they need a path.
type Store interface {
	Append(ctx context.Context, sample Sample)
	GetAll(ctx context.Context, sessionID string) ([]Sample, error)
	Clear(ctx context.Context, sessionID string)
	PruneOlderThan(ctx context.Context, days int)
}

// nowFn is swapped out by prune tests.
var nowFn = time.Now

func pruneCutoffMs(days int) int64 {
	if days <= 0 {
		days = DefaultRetainDays
	}
	return nowFn().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
}
