package usecase

import (
	"time"

	"angelvoice/internal/clock"
	"angelvoice/internal/ports"
)

// activeConnection is the transport of one successful connection attempt.
type activeConnection struct {
	generation uint64
	conn       ports.TransportConn
}

// timerSlot holds at most one pending timer. Arming cancels the previous
// timer and a callback that was already in flight is ignored.
type timerSlot struct {
	timer clock.Timer
	seq   uint64
}

// arm schedules fn through dispatch after d. Slot state is only touched on
// the loop goroutine.
func (s *timerSlot) arm(scheduler clock.Scheduler, d time.Duration, dispatch func(func()) bool, fn func()) {
	s.stop()
	seq := s.seq
	s.timer = scheduler.AfterFunc(d, func() {
		dispatch(func() {
			if s.seq != seq {
				return
			}
			s.timer = nil
			s.seq++
			fn()
		})
	})
}

func (s *timerSlot) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
}

type sessionStats struct {
	sent       int
	received   int
	detections int
	lastClose  int
}
