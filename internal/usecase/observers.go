package usecase

import (
	"sync"

	"github.com/google/uuid"

	"angelvoice/internal/ports"
)

// observerSet fans coordinator events out to subscribed sinks in
// subscription order.
type observerSet struct {
	mu    sync.RWMutex
	order []string
	sinks map[string]ports.EventSink
}

func newObserverSet() *observerSet {
	return &observerSet{sinks: map[string]ports.EventSink{}}
}

func (s *observerSet) add(sink ports.EventSink) func() {
	id := uuid.NewString()

	s.mu.Lock()
	s.sinks[id] = sink
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *observerSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sinks[id]; !ok {
		return
	}
	delete(s.sinks, id)
	for i, candidate := range s.order {
		if candidate == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *observerSet) each(fn func(ports.EventSink)) {
	s.mu.RLock()
	sinks := make([]ports.EventSink, 0, len(s.order))
	for _, id := range s.order {
		sinks = append(sinks, s.sinks[id])
	}
	s.mu.RUnlock()

	for _, sink := range sinks {
		fn(sink)
	}
}
