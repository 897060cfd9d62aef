package eta

import (
	"math"
	"testing"

	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
)

func TestWalkingNilInputs(t *testing.T) {
	p := geo.FromLngLat(123.90, 10.30)
	if Walking(nil, &p) != nil {
		t.Fatalf("nil current must yield nil")
	}
	if Walking(&p, nil) != nil {
		t.Fatalf("nil target must yield nil")
	}
	if Walking(nil, nil) != nil {
		t.Fatalf("nil both must yield nil")
	}
}

func TestWalkingKilometerApart(t *testing.T) {
	// ~1000m apart along the equator
	current := geo.FromLngLat(0, 0)
	target := geo.FromLngLat(0.0089932, 0)

	est := Walking(&current, &target)
	if est == nil {
		t.Fatalf("expected an estimate")
	}
	if math.Abs(est.DistanceMeters-1000) > 2 {
		t.Fatalf("expected ~1000m, got %v", est.DistanceMeters)
	}
	if math.Abs(est.EtaSeconds-720) > 2 {
		t.Fatalf("expected ~720s at walking pace, got %v", est.EtaSeconds)
	}
}

func TestWalkingZeroDistance(t *testing.T) {
	p := geo.FromLngLat(123.90, 10.30)
	est := Walking(&p, &p)
	if est == nil || est.DistanceMeters != 0 || est.EtaSeconds != 0 {
		t.Fatalf("expected zero estimate at the target: %+v", est)
	}
}

func TestWalkingMatchesSharedDistance(t *testing.T) {
	a := geo.FromLngLat(123.90, 10.30)
	b := geo.FromLngLat(123.91, 10.31)

	est := Walking(&a, &b)
	if est.DistanceMeters != geo.DistanceMeters(a, b) {
		t.Fatalf("estimator must reuse the shared distance function")
	}
}
