// Package track turns a raw, noisy stream of location fixes into a smoothed
// position feed: validity filtering, bounded history, moving-average
// smoothing and optional trail persistence.
package track

import (
	"errors"
	"time"

	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
)

// Sensor-level failures surfaced to the session owner. Permission denial is
// kept distinct because the UI can act on it (prompt to enable location).
var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrUnsupported      = errors.New("location source unsupported")
)

// SubscribeOptions mirrors the knobs of a continuous device location stream.
type SubscribeOptions struct {
	HighAccuracy bool
	Interval     time.Duration
}

// Subscription is a handle to an active fix stream.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
}

// Source is the continuous-location-stream collaborator. Implementations
// deliver fixes asynchronously via onFix and report sensor failures via
// onError; both callbacks may be invoked from arbitrary goroutines.
type Source interface {
	Subscribe(onFix func(geo.Fix), onError func(error), opts SubscribeOptions) (Subscription, error)
}
