package lfo

import (
	"math"
	"testing"
)

func TestSineShape(t *testing.T) {
	l := New(1, ShapeSine)
	l.SetDepth(1)

	sr := 100.0
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = l.Next(sr)
	}
	if math.Abs(samples[0]) > 1e-9 {
		t.Errorf("sine at phase 0: got %f, want 0", samples[0])
	}
	if math.Abs(samples[25]-1) > 0.01 {
		t.Errorf("sine at quarter cycle: got %f, want 1", samples[25])
	}
	if math.Abs(samples[75]+1) > 0.01 {
		t.Errorf("sine at three quarters: got %f, want -1", samples[75])
	}
}

func TestTriangleAndSquare(t *testing.T) {
	tri := New(1, ShapeTriangle)
	tri.SetDepth(2)
	sq := New(1, ShapeSquare)
	sq.SetDepth(2)

	sr := 100.0
	var triVals, sqVals [100]float64
	for i := range triVals {
		triVals[i] = tri.Next(sr)
		sqVals[i] = sq.Next(sr)
	}
	// Triangle starts at the bottom and peaks half way.
	if math.Abs(triVals[0]+2) > 0.05 || math.Abs(triVals[50]-2) > 0.05 {
		t.Errorf("triangle extremes: got %f and %f", triVals[0], triVals[50])
	}
	if sqVals[10] != 2 || sqVals[60] != -2 {
		t.Errorf("square halves: got %f and %f", sqVals[10], sqVals[60])
	}
}

func TestModWheelScalesDepth(t *testing.T) {
	l := New(5, ShapeSine)
	if l.Active() {
		t.Fatalf("LFO without depth should be inactive")
	}
	if v := l.Next(48000); v != 0 {
		t.Fatalf("inactive LFO should output 0, got %f", v)
	}
	l.SetModWheel(127, 0.5)
	if l.Depth() != 0.5 {
		t.Fatalf("full mod wheel should give max depth, got %f", l.Depth())
	}
	l.SetModWheel(0, 0.5)
	if l.Active() {
		t.Fatalf("mod wheel at 0 should disable modulation")
	}
}

func TestSampleHoldStaysBounded(t *testing.T) {
	l := New(50, ShapeSampleHold)
	l.SetDepth(1)
	changes := 0
	prev := l.Next(1000)
	for i := 0; i < 1000; i++ {
		v := l.Next(1000)
		if v < -1 || v > 1 {
			t.Fatalf("sample and hold out of range: %f", v)
		}
		if v != prev {
			changes++
		}
		prev = v
	}
	if changes == 0 || changes > 60 {
		t.Fatalf("expected a held value per cycle, got %d changes", changes)
	}
}

func TestResetRestartsPhase(t *testing.T) {
	l := New(3, ShapeSaw)
	l.SetDepth(1)
	first := l.Next(100)
	for i := 0; i < 17; i++ {
		l.Next(100)
	}
	l.Reset()
	if got := l.Next(100); got != first {
		t.Fatalf("expected %f after reset, got %f", first, got)
	}
}
