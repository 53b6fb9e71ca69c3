package sequencer

import (
	"math"

	"github.com/cbegin/dmperf-go/internal/event"
	"github.com/cbegin/dmperf-go/internal/timebase"
)

// RenderBlock renders frames of interleaved audio into buf, executing every
// event that falls inside the block at its exact sample. It never fails;
// missing renderers produce silence.
func (p *Performance) RenderBlock(buf []float32, frames int, volume float32) {
	frames = min(frames, len(buf)/p.channels)
	if frames <= 0 {
		return
	}
	p.startPending()

	done := 0
	for done < frames {
		remaining := int64(frames - done)

		p.mu.Lock()
		swapAt := p.transitionOffsetLocked()
		q := p.headLocked()
		eventAt := int64(-1)
		if q != nil {
			head, _ := q.Peek()
			eventAt = p.offsetOf(head.Time)
		}
		p.mu.Unlock()

		if swapAt >= 0 && swapAt < remaining && (eventAt < 0 || swapAt <= eventAt) {
			p.renderSpan(buf, done, int(swapAt), volume)
			done += int(swapAt)
			p.applyTransition()
			continue
		}
		if eventAt >= 0 && eventAt < remaining {
			p.renderSpan(buf, done, int(eventAt), volume)
			done += int(eventAt)
			// A concurrent Stop may have reset q since the peek.
			p.mu.Lock()
			ev, ok := q.Pop()
			p.mu.Unlock()
			if ok {
				ev.Execute(executor{p})
			}
			continue
		}
		p.renderSpan(buf, done, int(remaining), volume)
		done = frames
	}
}

func (p *Performance) startPending() {
	p.mu.Lock()
	stop := p.stopPending
	p.stopPending = false
	var started *Segment
	if p.pendingStart {
		p.pendingStart = false
		started = p.primary
		p.beginLocked(started, p.pulseAt(p.clock))
	}
	p.mu.Unlock()
	if stop {
		p.allNotesOff()
	}
	if started != nil {
		p.notify(NotifySegmentStart, started, p.segStart)
	}
}

// headLocked returns the queue whose head runs first.
func (p *Performance) headLocked() *event.Queue {
	a, okA := p.segQueue.Peek()
	b, okB := p.patQueue.Peek()
	switch {
	case okA && okB:
		if event.Before(b, a) {
			return p.patQueue
		}
		return p.segQueue
	case okA:
		return p.segQueue
	case okB:
		return p.patQueue
	default:
		return nil
	}
}

// beginLocked makes seg the primary segment starting at pulse at.
func (p *Performance) beginLocked(seg *Segment, at int64) {
	p.primary = seg
	p.segQueue.Reset()
	p.patQueue.Reset()
	p.repeatsLeft = seg.Repeats
	p.signature = seg.Signature
	p.enqueueLocked(seg, at)
}

func (p *Performance) enqueueLocked(seg *Segment, at int64) {
	p.segStart = at
	for i := range seg.Events {
		e := &seg.Events[i]
		p.segQueue.Push(e.At(at + e.Time))
	}
}

// transitionOffsetLocked returns the frame offset at which the staged
// segment takes over, or -1 when nothing is staged. The boundary pulse is
// kept in nextAt for applyTransition.
func (p *Performance) transitionOffsetLocked() int64 {
	if p.next == nil || p.primary == nil {
		return -1
	}
	p.nextAt = p.transitionPulseLocked()
	if p.nextTiming == TimingImmediate {
		return 0
	}
	return p.offsetOf(p.nextAt)
}

// transitionPulseLocked returns the first boundary whose sample has not
// passed yet. At the boundary sample itself that boundary is returned.
func (p *Performance) transitionPulseLocked() int64 {
	var length int64
	switch p.nextTiming {
	case TimingGrid:
		length = timebase.GridLength(p.signature)
	case TimingBeat:
		length = timebase.BeatLength(p.signature)
	case TimingMeasure:
		length = timebase.MeasureLength(p.signature)
	default:
		return p.pulseAt(p.clock)
	}
	now := p.pulseAt(p.clock)
	at := p.segStart + timebase.NextMultiple(now-p.segStart, length)
	for p.sampleAt(at) < p.clock {
		at += length
	}
	return at
}

func (p *Performance) applyTransition() {
	p.mu.Lock()
	old, seg := p.primary, p.next
	if seg == nil {
		p.mu.Unlock()
		return
	}
	at := p.nextAt
	p.next = nil
	p.beginLocked(seg, at)
	p.mu.Unlock()

	p.allNotesOff()
	p.notify(NotifySegmentEnd, old, at)
	p.notify(NotifySegmentStart, seg, at)
}

func (p *Performance) renderSpan(buf []float32, from, frames int, volume float32) {
	if frames <= 0 {
		return
	}
	dst := buf[from*p.channels : (from+frames)*p.channels]
	if len(p.slots) == 0 {
		clear(dst)
	}
	for i, s := range p.slots {
		s.renderer.Render(dst, frames, volume, i > 0)
	}
	p.clock += int64(frames)
	p.samples.Store(p.clock)
	p.now.Store(p.pulseAt(p.clock))
}

// offsetOf returns the frames from the clock until pulse t, zero when due.
func (p *Performance) offsetOf(t int64) int64 {
	return max(p.sampleAt(t)-p.clock, 0)
}

func (p *Performance) sampleAt(pulse int64) int64 {
	d := pulse - p.anchorPulse
	if d <= 0 {
		return p.anchorSample
	}
	return p.anchorSample + int64(math.Ceil(timebase.PulsesToSamples(d, p.tempo, p.sampleRate)))
}

func (p *Performance) pulseAt(sample int64) int64 {
	return p.anchorPulse + int64(math.Floor(timebase.SamplesToPulses(sample-p.anchorSample, p.tempo, p.sampleRate)))
}

// retime anchors a new tempo at the current clock.
func (p *Performance) retime(at int64, bpm float64) {
	pulse := max(at, p.pulseAt(p.clock))
	p.anchorSample = p.clock
	p.anchorPulse = pulse
	p.tempo = bpm
	p.tempoBits.Store(math.Float64bits(bpm))
}
