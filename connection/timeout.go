package connection

import (
	"sync"
	"sync/atomic"
	"time"
)

// commandTimer implements the cooperative command-timeout orchestration
// from spec.md S4.4/S5: it sleeps in 1-second increments so it can observe
// cancellation promptly, and on expiry calls its onExpire callback once.
// It has no notion of an owning Command and no path of its own that
// terminates the connection; Conn.StartCommandTimeout passes a callback
// that interrupts the connection.
type commandTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	stopped  int32
	deadline time.Time
	onExpire func()
}

// startCommandTimer arms a timer for timeout, calling onExpire once when
// it fires. The 1-second-tick discipline (rather than one large
// time.AfterFunc) re-checks the stopped flag at least once a second. The
// timer runs on the real clock (time.AfterFunc).
func startCommandTimer(timeout time.Duration, onExpire func()) *commandTimer {
	ct := &commandTimer{onExpire: onExpire, deadline: time.Now().Add(timeout)}
	ct.timer = time.AfterFunc(tickOrRemaining(timeout), ct.tick)
	return ct
}

func tickOrRemaining(remaining time.Duration) time.Duration {
	if remaining > time.Second {
		return time.Second
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (ct *commandTimer) tick() {
	if atomic.LoadInt32(&ct.stopped) == 1 {
		return
	}
	remaining := time.Until(ct.deadline)
	if remaining <= 0 {
		ct.fire()
		return
	}
	ct.mu.Lock()
	ct.timer = time.AfterFunc(tickOrRemaining(remaining), ct.tick)
	ct.mu.Unlock()
}

func (ct *commandTimer) fire() {
	if atomic.CompareAndSwapInt32(&ct.stopped, 0, 1) {
		ct.onExpire()
	}
}

// Stop cancels the timer; idempotent, matching spec.md's "interrupt is
// idempotent" requirement for the surrounding cancellation machinery.
func (ct *commandTimer) Stop() {
	if atomic.CompareAndSwapInt32(&ct.stopped, 0, 1) {
		ct.mu.Lock()
		ct.timer.Stop()
		ct.mu.Unlock()
	}
}

// interruptState tracks a Command's cancellation flag. Interrupt is
// idempotent: repeated calls while one is already pending are no-ops
// (spec.md S5 "Attention-ack drain must be idempotent").
type interruptState struct {
	pending int32
	reason  atomic.Value // string
}

func (s *interruptState) interrupt(reason string) (first bool) {
	if atomic.CompareAndSwapInt32(&s.pending, 0, 1) {
		s.reason.Store(reason)
		return true
	}
	return false
}

func (s *interruptState) isPending() bool { return atomic.LoadInt32(&s.pending) == 1 }

func (s *interruptState) clear() { atomic.StoreInt32(&s.pending, 0) }

func (s *interruptState) reasonString() string {
	if v, ok := s.reason.Load().(string); ok {
		return v
	}
	return ""
}
