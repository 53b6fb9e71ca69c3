package effects

import "math"

// Chorus is a modulated stereo delay. The right side runs a quarter cycle
// behind the left to widen the image.
type Chorus struct {
	bufL, bufR []float32
	pos        int
	size       int
	depth      float32 // modulation depth in samples
	rate       float64 // radians per sample
	phase      float64
	feedback   float32
	wet        float32
}

// NewChorus creates a chorus. delayMs is the centre delay, depthMs the
// modulation depth and rateHz its speed.
func NewChorus(sampleRate int, delayMs, feedback, depthMs, rateHz, wet float32) *Chorus {
	baseSamples := int(float64(delayMs) * float64(sampleRate) / 1000.0)
	depthSamples := float64(depthMs) * float64(sampleRate) / 1000.0
	size := max(2*(baseSamples+int(depthSamples))+2, 4)
	return &Chorus{
		bufL:     make([]float32, size),
		bufR:     make([]float32, size),
		size:     size,
		depth:    float32(depthSamples),
		rate:     2.0 * math.Pi * float64(rateHz) / float64(sampleRate),
		feedback: clamp(feedback, 0, 0.9),
		wet:      clamp(wet, 0, 1),
	}
}

func (c *Chorus) Process(buf []float32, channels int) {
	frames := len(buf) / channels
	centre := float32(c.size / 2)
	for i := 0; i < frames; i++ {
		l, r := frame(buf, channels, i)
		c.bufL[c.pos] = l
		c.bufR[c.pos] = r

		delL := c.read(c.bufL, centre+float32(math.Sin(c.phase))*c.depth)
		delR := c.read(c.bufR, centre+float32(math.Cos(c.phase))*c.depth)
		c.bufL[c.pos] += delL * c.feedback
		c.bufR[c.pos] += delR * c.feedback

		c.phase += c.rate
		if c.phase > 2*math.Pi {
			c.phase -= 2 * math.Pi
		}
		c.pos++
		if c.pos >= c.size {
			c.pos = 0
		}
		store(buf, channels, i, l*(1-c.wet)+delL*c.wet, r*(1-c.wet)+delR*c.wet)
	}
}

// read returns the linearly interpolated sample delay samples behind pos.
func (c *Chorus) read(buf []float32, delay float32) float32 {
	p := float32(c.pos) - delay
	for p < 0 {
		p += float32(c.size)
	}
	idx := int(p)
	frac := p - float32(idx)
	idx2 := idx + 1
	if idx2 >= c.size {
		idx2 = 0
	}
	return buf[idx]*(1-frac) + buf[idx2]*frac
}

func (c *Chorus) Reset() {
	clear(c.bufL)
	clear(c.bufR)
	c.pos = 0
	c.phase = 0
}
