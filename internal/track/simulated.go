package track

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
)

// SimulatedConfig shapes the synthetic fix stream.
type SimulatedConfig struct {
	// Origin is where the simulated walker starts.
	Origin geo.Coordinates
	// Path, when set, is walked point to point, one step per tick.
	Path []geo.Coordinates
	// JitterM adds up to this much random positional noise per fix.
	JitterM float64
	// AccuracyM is the reported accuracy of every fix.
	AccuracyM float64
	// Interval between fixes; defaults to one second.
	Interval time.Duration
	// Seed makes the jitter reproducible; 0 seeds from the clock.
	Seed int64
}

// SimulatedSource emits synthetic fixes on a ticker, standing in for a real
// device stream during development and in tests.
type SimulatedSource struct {
	cfg SimulatedConfig
}

func NewSimulatedSource(cfg SimulatedConfig) *SimulatedSource {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &SimulatedSource{cfg: cfg}
}

func (s *SimulatedSource) Subscribe(onFix func(geo.Fix), _ func(error), opts SubscribeOptions) (Subscription, error) {
	interval := s.cfg.Interval
	if opts.Interval > 0 {
		interval = opts.Interval
	}

	sub := &simSubscription{done: make(chan struct{})}
	go s.run(onFix, interval, sub.done)
	return sub, nil
}

func (s *SimulatedSource) run(onFix func(geo.Fix), interval time.Duration, done chan struct{}) {
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pos := s.cfg.Origin
	step := 0

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if len(s.cfg.Path) > 0 {
				pos = s.cfg.Path[step%len(s.cfg.Path)]
				step++
			}
			onFix(geo.Fix{
				Latitude:    pos.Lat + jitterDegrees(rng, s.cfg.JitterM),
				Longitude:   pos.Lng + jitterDegrees(rng, s.cfg.JitterM),
				AccuracyM:   s.cfg.AccuracyM,
				TimestampMs: time.Now().UnixMilli(),
			})
		}
	}
}

// jitterDegrees converts up to meters of noise into a degree offset; one
// degree of latitude is roughly 111km, close enough for jitter purposes.
func jitterDegrees(rng *rand.Rand, meters float64) float64 {
	if meters <= 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * meters / 111000.0
}

type simSubscription struct {
	once sync.Once
	done chan struct{}
}

func (s *simSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.done) })
}
