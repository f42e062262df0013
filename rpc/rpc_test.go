package rpc

import (
	"math"
	"testing"
	"time"
)

func TestInstantWireEncodesEpochSeconds(t *testing.T) {
	tm := time.Unix(1_800_000_000, 0)
	if got := instantWire(tm); got != int32(tm.Unix()) {
		t.Fatalf("instantWire(%v) = %d, want %d", tm, got, tm.Unix())
	}
}

func TestInstantWireMapsZeroTimeToInfinitySentinel(t *testing.T) {
	if got := instantWire(time.Time{}); got != math.MaxInt32 {
		t.Fatalf("instantWire(zero) = %d, want math.MaxInt32", got)
	}
}
