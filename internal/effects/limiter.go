package effects

import "math"

// Limiter keeps the mixed bus under a ceiling. Detection is linked across
// both sides so the stereo image does not shift under gain reduction.
type Limiter struct {
	ceiling float32
	attack  float32
	release float32
	env     float32
}

// NewLimiter creates a limiter with the ceiling in dBFS.
func NewLimiter(sampleRate int, ceilingDB, attackMs, releaseMs float32) *Limiter {
	sr := float64(sampleRate)
	return &Limiter{
		ceiling: float32(math.Pow(10, float64(ceilingDB)/20)),
		attack:  float32(1.0 - math.Exp(-1.0/(max(float64(attackMs), 0.01)*sr/1000.0))),
		release: float32(1.0 - math.Exp(-1.0/(max(float64(releaseMs), 0.01)*sr/1000.0))),
	}
}

func (c *Limiter) Process(buf []float32, channels int) {
	frames := len(buf) / channels
	for i := 0; i < frames; i++ {
		l, r := frame(buf, channels, i)
		peak := max(abs32(l), abs32(r))
		if peak > c.env {
			c.env += c.attack * (peak - c.env)
		} else {
			c.env += c.release * (peak - c.env)
		}
		g := c.gain(max(c.env, peak))
		store(buf, channels, i, l*g, r*g)
	}
}

func (c *Limiter) gain(level float32) float32 {
	if level <= c.ceiling || level == 0 {
		return 1
	}
	return c.ceiling / level
}

func (c *Limiter) Reset() { c.env = 0 }

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
