package usecase

import (
	"sync"
	"testing"

	"angelvoice/internal/ports"
)

func TestEventLoopRunsInOrder(t *testing.T) {
	t.Parallel()

	l := newEventLoop()
	defer l.close()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.post(func() { got = append(got, i) })
	}
	l.call(func() {})

	for i, v := range got {
		if v != i {
			t.Fatalf("unexpected order: %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 closures, got %d", len(got))
	}
}

func TestEventLoopPostFromLoop(t *testing.T) {
	t.Parallel()

	l := newEventLoop()
	defer l.close()

	var mu sync.Mutex
	ran := false
	l.call(func() {
		l.post(func() {
			mu.Lock()
			ran = true
			mu.Unlock()
		})
	})
	l.call(func() {})

	mu.Lock()
	defer mu.Unlock()
	if !ran {
		t.Fatalf("expected nested post to run")
	}
}

func TestEventLoopClose(t *testing.T) {
	t.Parallel()

	l := newEventLoop()
	l.close()
	<-l.done

	if l.post(func() {}) {
		t.Fatalf("post after close should fail")
	}
	if l.call(func() {}) {
		t.Fatalf("call after close should fail")
	}
}

func TestObserverSetOrderAndRemoval(t *testing.T) {
	t.Parallel()

	s := newObserverSet()
	first := &fakeEventSink{}
	second := &fakeEventSink{}
	removeFirst := s.add(first)
	s.add(second)

	var seen []*fakeEventSink
	s.each(func(sink ports.EventSink) { seen = append(seen, sink.(*fakeEventSink)) })
	if len(seen) != 2 || seen[0] != first || seen[1] != second {
		t.Fatalf("unexpected order")
	}

	removeFirst()
	removeFirst()
	seen = nil
	s.each(func(sink ports.EventSink) { seen = append(seen, sink.(*fakeEventSink)) })
	if len(seen) != 1 || seen[0] != second {
		t.Fatalf("expected only the second sink, got %d", len(seen))
	}
}
