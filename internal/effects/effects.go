// Package effects processes the interleaved master bus after every channel
// has been mixed.
package effects

import "sync/atomic"

// Effector processes frames of interleaved audio in place. Only the first two
// channels of each frame are treated as stereo; extra channels pass through.
type Effector interface {
	Process(buf []float32, channels int)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
	bypass  atomic.Bool
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(buf []float32, channels int) {
	if channels <= 0 || c.bypass.Load() {
		return
	}
	for _, e := range c.effects {
		e.Process(buf, channels)
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

// Add appends e. It must not be called while audio is being processed.
func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

func (c *Chain) Len() int { return len(c.effects) }

// SetBypass turns the whole chain off without dropping its state.
func (c *Chain) SetBypass(on bool) { c.bypass.Store(on) }

// frame returns the left and right samples at frame i.
func frame(buf []float32, channels, i int) (float32, float32) {
	l := buf[i*channels]
	if channels == 1 {
		return l, l
	}
	return l, buf[i*channels+1]
}

func store(buf []float32, channels, i int, l, r float32) {
	if channels == 1 {
		buf[i] = (l + r) * 0.5
		return
	}
	buf[i*channels] = l
	buf[i*channels+1] = r
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}
