package effects

import (
	"math"
	"sync/atomic"
)

// Reverb is a Schroeder reverb: four damped comb filters in parallel feeding
// two allpass filters. Each side uses slightly detuned delay lines.
type Reverb struct {
	combs   [2][4]combFilter
	allpass [2][2]allpassFilter
	wet     atomic.Uint32
}

type combFilter struct {
	buf   []float32
	pos   int
	fb    float32
	damp  float32
	store float32
}

type allpassFilter struct {
	buf []float32
	pos int
	fb  float32
}

const stereoSpread = 23

// NewReverb creates a reverb. roomSize scales the delay lengths, feedback
// sets the decay, damping (0..1) darkens the tail and wet is the mix.
func NewReverb(sampleRate int, roomSize, feedback, damping, wet float32) *Reverb {
	base := max(int(float32(sampleRate)*roomSize*0.05), 10)
	fb := clamp(feedback, 0, 0.95)
	damp := clamp(damping, 0, 1)
	r := &Reverb{}
	r.SetWet(wet)
	combLens := [4]int{base, base * 1117 / 1000, base * 1271 / 1000, base * 1437 / 1000}
	apLens := [2]int{max(base*347/1000, 1), max(base*213/1000, 1)}
	for side := range r.combs {
		spread := side * stereoSpread
		for i := range r.combs[side] {
			r.combs[side][i] = combFilter{buf: make([]float32, combLens[i]+spread), fb: fb, damp: damp}
		}
		for i := range r.allpass[side] {
			r.allpass[side][i] = allpassFilter{buf: make([]float32, apLens[i]+spread), fb: 0.5}
		}
	}
	return r
}

// SetWet sets the wet/dry mix; it is safe to call while audio is running.
func (r *Reverb) SetWet(wet float32) {
	r.wet.Store(math.Float32bits(clamp(wet, 0, 1)))
}

func (r *Reverb) Wet() float32 { return math.Float32frombits(r.wet.Load()) }

func (r *Reverb) Process(buf []float32, channels int) {
	wet := r.Wet()
	if wet == 0 {
		return
	}
	frames := len(buf) / channels
	for i := 0; i < frames; i++ {
		l, rt := frame(buf, channels, i)
		in := (l + rt) * 0.5
		outL := r.side(0, in)
		outR := r.side(1, in)
		store(buf, channels, i, l*(1-wet)+outL*wet, rt*(1-wet)+outR*wet)
	}
}

func (r *Reverb) side(s int, in float32) float32 {
	var out float32
	for i := range r.combs[s] {
		out += r.combs[s][i].process(in)
	}
	out *= 0.25
	for i := range r.allpass[s] {
		out = r.allpass[s][i].process(out)
	}
	return out
}

func (r *Reverb) Reset() {
	for s := range r.combs {
		for i := range r.combs[s] {
			clear(r.combs[s][i].buf)
			r.combs[s][i].pos = 0
			r.combs[s][i].store = 0
		}
		for i := range r.allpass[s] {
			clear(r.allpass[s][i].buf)
			r.allpass[s][i].pos = 0
		}
	}
}

func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = in + c.store*c.fb
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (a *allpassFilter) process(in float32) float32 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + bufOut*a.fb
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}
