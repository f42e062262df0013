package wakeup

import (
	"testing"
	"time"
)

type fakeRTC struct {
	lastWrite time.Time
	enabled   bool
	calls     int
	failNext  bool
}

func (f *fakeRTC) WriteWakeAlarm(t time.Time, enable bool) error {
	f.calls++
	f.lastWrite = t
	f.enabled = enable
	return nil
}

func TestArmSoftwareOnlyLowers(t *testing.T) {
	s := New(nil, nil)
	now := time.Now()
	s.ArmSoftware(now.Add(10*time.Second), now)
	first := s.armedSW

	s.ArmSoftware(now.Add(20*time.Second), now)
	if !s.armedSW.Equal(first) {
		t.Fatalf("a later request must not raise the armed time")
	}

	s.ArmSoftware(now.Add(5*time.Second), now)
	if s.armedSW.Equal(first) {
		t.Fatalf("an earlier request must lower the armed time")
	}
}

func TestArmSoftwareFires(t *testing.T) {
	s := New(nil, nil)
	now := time.Now()
	s.ArmSoftware(now.Add(10*time.Millisecond), now)
	select {
	case <-s.Fire():
	case <-time.After(time.Second):
		t.Fatalf("timer did not fire")
	}
}

func TestClearSoftwareStopsTimer(t *testing.T) {
	s := New(nil, nil)
	now := time.Now()
	s.ArmSoftware(now.Add(20*time.Millisecond), now)
	s.ClearSoftware()
	select {
	case <-s.Fire():
		t.Fatalf("timer fired after being cleared")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestArmHardwareFloorsToInterruptLimit(t *testing.T) {
	rtc := &fakeRTC{}
	s := New(rtc, nil)
	now := time.Now()
	s.ArmHardware(now.Add(5*time.Second), now)
	if rtc.calls != 1 {
		t.Fatalf("expected one write, got %d", rtc.calls)
	}
	if rtc.lastWrite.Before(now.Add(InterruptLimit - time.Second)) {
		t.Fatalf("hardware alarm was armed below the interrupt limit floor")
	}
}

func TestArmHardwareAppliesCompensation(t *testing.T) {
	rtc := &fakeRTC{}
	s := New(rtc, nil)
	now := time.Now()
	trigger := now.Add(1 * time.Hour)
	s.ArmHardware(trigger, now)
	want := trigger.Add(-PowerupCompensation)
	if rtc.lastWrite.UTC().Sub(want) > time.Second || want.Sub(rtc.lastWrite.UTC()) > time.Second {
		t.Fatalf("expected compensation-adjusted alarm near %v, got %v", want, rtc.lastWrite)
	}
}

func TestArmHardwareClampsToMaxAhead(t *testing.T) {
	rtc := &fakeRTC{}
	s := New(rtc, nil)
	now := time.Now()
	s.ArmHardware(now.Add(365*24*time.Hour), now)
	if rtc.lastWrite.After(now.Add(MaxAhead + time.Minute)) {
		t.Fatalf("hardware alarm was not clamped to MaxAhead: %v", rtc.lastWrite)
	}
}

func TestArmHardwareOnlyLowers(t *testing.T) {
	rtc := &fakeRTC{}
	s := New(rtc, nil)
	now := time.Now()
	s.ArmHardware(now.Add(2*time.Hour), now)
	first := rtc.lastWrite

	s.ArmHardware(now.Add(3*time.Hour), now)
	if !rtc.lastWrite.Equal(first) {
		t.Fatalf("a later trigger must not raise the armed hardware alarm")
	}
	if rtc.calls != 1 {
		t.Fatalf("expected no additional write for a later, ignored request")
	}
}

func TestClearHardwareDisarms(t *testing.T) {
	rtc := &fakeRTC{}
	s := New(rtc, nil)
	now := time.Now()
	s.ArmHardware(now.Add(time.Hour), now)
	s.ClearHardware()
	if rtc.enabled {
		t.Fatalf("expected disarm call to set enabled=false")
	}
}

func TestNilRTCIsSkippedSilently(t *testing.T) {
	s := New(nil, nil)
	now := time.Now()
	s.ArmHardware(now.Add(time.Hour), now)
	s.ClearHardware()
}
