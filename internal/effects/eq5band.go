package effects

import (
	"math"
	"sync/atomic"
)

const EQBands = 5

// EQ5Band is a five band equalizer split at 200Hz, 800Hz, 2.5kHz and 8kHz.
// Gains are stored as float32 bits so they can change while audio runs.
type EQ5Band struct {
	gains  [EQBands]atomic.Uint32
	alphas [EQBands - 1]float32
	lpL    [EQBands - 1]float32
	lpR    [EQBands - 1]float32
}

var defaultCrossovers = [EQBands - 1]float64{200, 800, 2500, 8000}

func NewEQ5Band(sampleRate int) *EQ5Band {
	eq := &EQ5Band{}
	dt := 1.0 / float64(sampleRate)
	for i, freq := range defaultCrossovers {
		rc := 1.0 / (2.0 * math.Pi * freq)
		eq.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1.0))
	}
	return eq
}

// SetGain sets a band's linear gain; 1 is unity. Out of range bands are
// ignored.
func (eq *EQ5Band) SetGain(band int, gain float32) {
	if band >= 0 && band < EQBands {
		eq.gains[band].Store(math.Float32bits(max(gain, 0)))
	}
}

// SetGainDB sets a band's gain in decibels.
func (eq *EQ5Band) SetGainDB(band int, db float64) {
	eq.SetGain(band, float32(math.Pow(10, db/20)))
}

func (eq *EQ5Band) Gain(band int) float32 {
	if band >= 0 && band < EQBands {
		return math.Float32frombits(eq.gains[band].Load())
	}
	return 1.0
}

func (eq *EQ5Band) flat() bool {
	for i := range eq.gains {
		if eq.gains[i].Load() != math.Float32bits(1.0) {
			return false
		}
	}
	return true
}

func (eq *EQ5Band) Process(buf []float32, channels int) {
	if eq.flat() {
		return
	}
	var g [EQBands]float32
	for i := range g {
		g[i] = math.Float32frombits(eq.gains[i].Load())
	}
	frames := len(buf) / channels
	for n := 0; n < frames; n++ {
		l, r := frame(buf, channels, n)
		var outL, outR float32
		for i := range eq.alphas {
			eq.lpL[i] += eq.alphas[i] * (l - eq.lpL[i])
			eq.lpR[i] += eq.alphas[i] * (r - eq.lpR[i])
			outL += eq.lpL[i] * g[i]
			outR += eq.lpR[i] * g[i]
			l -= eq.lpL[i]
			r -= eq.lpR[i]
		}
		store(buf, channels, n, outL+l*g[EQBands-1], outR+r*g[EQBands-1])
	}
}

func (eq *EQ5Band) Reset() {
	clear(eq.lpL[:])
	clear(eq.lpR[:])
}
