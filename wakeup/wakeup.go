// Package wakeup implements the wakeup scheduler (C8): one software timeout
// and one hardware-RTC alarm for the soonest future trigger. The software
// timer is grounded on the teacher's converger package's channel-based
// timer idiom (a timer that can be cancelled and replaced, never armed
// backwards).
package wakeup

import (
	"sync"
	"time"
)

// PowerupCompensation is how much earlier than the true trigger the
// hardware alarm is armed, to cover boot time (§4.8).
const PowerupCompensation = 60 * time.Second

// InterruptLimit is the floor: the hardware alarm is never armed less than
// this far into the future (§4.8).
const InterruptLimit = 60 * time.Second

// MaxAhead clamps how far ahead either wakeup is armed, so periodic
// re-wakes still catch clock drift (§4.8).
const MaxAhead = 14 * 24 * time.Hour

// RTC abstracts the hardware real-time-clock device so the scheduler can be
// tested without a real /dev/rtc0.
type RTC interface {
	// WriteWakeAlarm arms the device to wake at t (UTC), or disarms it
	// when enable is false. Failures are logged by the caller but are
	// never fatal (§4.8, §6.4).
	WriteWakeAlarm(t time.Time, enable bool) error
}

// Scheduler owns the single pending software timer and the hardware-RTC
// alarm state.
type Scheduler struct {
	Logf func(format string, v ...interface{})
	RTC  RTC

	mu          sync.Mutex
	timer       *time.Timer
	armedSW     time.Time
	haveArmedSW bool
	armedHW     time.Time
	haveArmedHW bool

	fire chan struct{} // poked when the software timer fires
}

// New builds a Scheduler. rtc may be nil if no hardware device is
// configured (writes are then skipped, same as a read/write failure).
func New(rtc RTC, logf func(format string, v ...interface{})) *Scheduler {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Scheduler{
		Logf: logf,
		RTC:  rtc,
		fire: make(chan struct{}, 1),
	}
}

// Fire returns the channel poked whenever the software timer fires; the
// core selects on this to schedule a rethink, same as any other auxiliary
// goroutine poking the core rather than mutating state itself.
func (s *Scheduler) Fire() <-chan struct{} {
	return s.fire
}

// ArmSoftware requests a software wakeup at t. Per §4.8, the timer is only
// *lowered*: a later request is ignored while an earlier one is still
// pending; an earlier request cancels and replaces it.
func (s *Scheduler) ArmSoftware(t time.Time, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveArmedSW && !t.Before(s.armedSW) {
		return // not earlier: ignored until the current timer fires
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	d := t.Sub(now)
	if d < 0 {
		d = 0
	}
	s.armedSW, s.haveArmedSW = t, true
	s.timer = time.AfterFunc(d, func() {
		select {
		case s.fire <- struct{}{}:
		default:
		}
	})
}

// ClearSoftware cancels any pending software timer (used on shutdown or
// when the queue becomes empty).
func (s *Scheduler) ClearSoftware() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.haveArmedSW = false
}

// ArmHardware arms the hardware RTC alarm for the soonest BOOT/ACTDEAD
// trigger, PowerupCompensation earlier, floored at InterruptLimit into the
// future and clamped to MaxAhead. Failures are logged but not fatal.
func (s *Scheduler) ArmHardware(trigger time.Time, now time.Time) {
	target := trigger.Add(-PowerupCompensation)
	if floor := now.Add(InterruptLimit); target.Before(floor) {
		target = floor
	}
	if cap := now.Add(MaxAhead); target.After(cap) {
		target = cap
	}

	s.mu.Lock()
	if s.haveArmedHW && !target.Before(s.armedHW) {
		s.mu.Unlock()
		return // only lowered, never raised, same as the software timer
	}
	s.armedHW, s.haveArmedHW = target, true
	rtc := s.RTC
	s.mu.Unlock()

	if rtc == nil {
		return
	}
	if err := rtc.WriteWakeAlarm(target.UTC(), true); err != nil {
		s.Logf("wakeup: hardware RTC write failed: %v", err)
	}
}

// ClearHardware disarms the hardware RTC alarm.
func (s *Scheduler) ClearHardware() {
	s.mu.Lock()
	s.haveArmedHW = false
	rtc := s.RTC
	s.mu.Unlock()
	if rtc == nil {
		return
	}
	if err := rtc.WriteWakeAlarm(time.Time{}, false); err != nil {
		s.Logf("wakeup: hardware RTC disarm failed: %v", err)
	}
}
