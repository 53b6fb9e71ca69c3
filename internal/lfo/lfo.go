// Package lfo provides the low-frequency oscillator behind the mod wheel.
package lfo

import "math"

type Shape int

const (
	ShapeSine Shape = iota
	ShapeTriangle
	ShapeSquare
	ShapeSaw
	ShapeSampleHold
)

// LFO produces one modulation value per sample in [-depth, +depth].
type LFO struct {
	depth float64
	rate  float64
	shape Shape
	phase float64
	hold  float64
	seed  uint32
}

func New(rateHz float64, shape Shape) *LFO {
	l := &LFO{}
	l.Set(0, rateHz, shape)
	return l
}

// Set configures depth, rate and shape. Unknown shapes fall back to sine.
func (l *LFO) Set(depth, rateHz float64, shape Shape) {
	if shape < ShapeSine || shape > ShapeSampleHold {
		shape = ShapeSine
	}
	l.depth = depth
	l.rate = rateHz
	l.shape = shape
}

func (l *LFO) SetDepth(depth float64) { l.depth = depth }

func (l *LFO) Depth() float64 { return l.depth }

// SetModWheel scales depth linearly from a 0..127 controller value.
func (l *LFO) SetModWheel(value uint8, maxDepth float64) {
	l.depth = float64(min(value, 127)) / 127 * maxDepth
}

func (l *LFO) Active() bool { return l.depth != 0 && l.rate != 0 }

// Next advances one sample and returns the modulation value.
func (l *LFO) Next(sampleRate float64) float64 {
	if !l.Active() || sampleRate <= 0 {
		return 0
	}
	var v float64
	switch l.shape {
	case ShapeTriangle:
		v = 1 - 4*math.Abs(l.phase-0.5)
	case ShapeSquare:
		v = 1
		if l.phase >= 0.5 {
			v = -1
		}
	case ShapeSaw:
		v = 2*l.phase - 1
	case ShapeSampleHold:
		v = l.hold
	default:
		v = math.Sin(2 * math.Pi * l.phase)
	}
	l.phase += l.rate / sampleRate
	if l.phase >= 1 {
		l.phase -= math.Floor(l.phase)
		if l.shape == ShapeSampleHold {
			l.hold = l.random()
		}
	}
	return v * l.depth
}

func (l *LFO) Reset() {
	l.phase = 0
	l.hold = 0
}

// random returns a value in [-1, 1) from a xorshift generator.
func (l *LFO) random() float64 {
	if l.seed == 0 {
		l.seed = 0x9E3779B9
	}
	l.seed ^= l.seed << 13
	l.seed ^= l.seed >> 17
	l.seed ^= l.seed << 5
	return float64(l.seed)/float64(math.MaxUint32)*2 - 1
}
