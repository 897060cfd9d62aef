package track

import (
	"sync"

	"github.com/jlescarlan11/project-krawl-sub003/internal/geo"
)

// PushSource is a Source fed by explicit Push calls. The gateway uses it to
// bridge fixes posted by the device UI into a tracking session; tests use it
// to drive the pipeline deterministically.
type PushSource struct {
	mu      sync.Mutex
	onFix   func(geo.Fix)
	onError func(error)
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

func (p *PushSource) Subscribe(onFix func(geo.Fix), onError func(error), _ SubscribeOptions) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFix = onFix
	p.onError = onError
	return pushSubscription{source: p}, nil
}

// Push delivers one fix to the current subscriber, if any.
func (p *PushSource) Push(fix geo.Fix) {
	p.mu.Lock()
	onFix := p.onFix
	p.mu.Unlock()
	if onFix != nil {
		onFix(fix)
	}
}

// Fail delivers a sensor error to the current subscriber, if any.
func (p *PushSource) Fail(err error) {
	p.mu.Lock()
	onError := p.onError
	p.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

type pushSubscription struct {
	source *PushSource
}

func (s pushSubscription) Unsubscribe() {
	s.source.mu.Lock()
	defer s.source.mu.Unlock()
	s.source.onFix = nil
	s.source.onError = nil
}
