package sequencer

import (
	"github.com/cbegin/dmperf-go/internal/event"
	"github.com/cbegin/dmperf-go/internal/model"
	"github.com/cbegin/dmperf-go/internal/pattern"
	"github.com/cbegin/dmperf-go/internal/pitch"
	"github.com/cbegin/dmperf-go/internal/timebase"
)

// executor applies events to the performance on the render goroutine.
type executor struct {
	p *Performance
}

func (x executor) SetTempo(at int64, bpm float64) {
	if bpm > 0 {
		x.p.retime(at, bpm)
	}
}

func (x executor) ApplyBand(_ int64, b *event.Band) {
	if b == nil {
		return
	}
	for _, a := range b.Assignments {
		x.p.bind(a.Channel, a.Renderer)
	}
}

func (x executor) SetGroove(at int64, level, spread uint8, cmd model.CommandKind) {
	p := x.p
	g := int(level)
	if spread > 0 {
		g += p.rnd.Intn(int(spread)+1) - int(spread)/2
	}
	p.groove = uint8(clampInt(g, 1, 100))
	p.patternRound(at, model.EmbellishmentFor(cmd))
}

func (x executor) SetChord(_ int64, c *model.Chord) {
	x.p.chord = c
}

func (x executor) NoteOn(channel uint32, note, velocity uint8) {
	if i, ok := x.p.findSlot(channel); ok {
		x.p.slots[i].renderer.NoteOn(note, velocity)
	}
}

func (x executor) NoteOff(channel uint32, note uint8) {
	if i, ok := x.p.findSlot(channel); ok {
		x.p.slots[i].renderer.NoteOff(note)
	}
}

func (x executor) EndSegment(at int64) {
	p := x.p
	p.mu.Lock()
	seg := p.primary
	if seg == nil {
		p.mu.Unlock()
		return
	}
	if seg.Infinite || p.repeatsLeft > 0 {
		if !seg.Infinite {
			p.repeatsLeft--
		}
		p.enqueueLocked(seg, at)
		p.mu.Unlock()
		p.notify(NotifySegmentLoop, seg, at)
		return
	}
	if next := p.next; next != nil {
		p.next = nil
		p.beginLocked(next, at)
		p.mu.Unlock()
		p.allNotesOff()
		p.notify(NotifySegmentEnd, seg, at)
		p.notify(NotifySegmentStart, next, at)
		return
	}
	p.primary = nil
	p.segQueue.Reset()
	p.patQueue.Reset()
	p.mu.Unlock()
	p.allNotesOff()
	p.notify(NotifySegmentEnd, seg, at)
}

func (x executor) EndPattern(at int64) {
	x.p.patternRound(at, model.EmbellishmentNormal)
}

// patternRound silences every channel, replaces the pattern queue with the
// notes of a freshly selected pattern and schedules the next round.
func (p *Performance) patternRound(now int64, kind model.Embellishment) {
	p.allNotesOff()
	p.mu.Lock()
	p.patQueue.Reset()
	seg := p.primary
	p.mu.Unlock()
	if seg == nil {
		return
	}
	pat, ok := p.selector.SelectEmbellishment(seg.Patterns, p.groove, kind)
	if !ok {
		return
	}
	sig := p.signature
	if pat.Signature != nil {
		sig = *pat.Signature
	}
	span := max(int64(pat.Measures), 1) * timebase.MeasureLength(sig)

	if len(p.slots) > 0 && p.chord != nil && len(p.chord.Subchords) > 0 {
		for i := range p.lockVariation {
			p.lockVariation[i] = -1
		}
		for i := range pat.Parts {
			p.schedulePart(now, span, &pat.Parts[i], sig)
		}
	}
	p.pushPattern(event.PatternEnd(now + span))
}

func (p *Performance) schedulePart(now, span int64, b *pattern.Binding, sig model.TimeSignature) {
	part := b.Part
	if part == nil || len(part.Notes) == 0 {
		return
	}
	if part.TimeSignature != nil {
		sig = *part.TimeSignature
	}
	grid := timebase.GridLength(sig)
	repeat := span
	if part.Measures > 0 {
		repeat = min(int64(part.Measures)*timebase.MeasureLength(sig), span)
	}
	sub := p.subchordFor(b.Ref.SubchordLevel)
	ctx := pitch.Context{Root: sub.ChordRoot, ChordMask: sub.ChordMask, ScaleMask: alignScale(sub)}
	variation := p.variationFor(b)
	ch := b.Ref.Channel

	for base := int64(0); base < span; base += repeat {
		for i := range part.Notes {
			n := &part.Notes[i]
			if n.Variations != 0 && n.Variations&(1<<uint(variation)) == 0 {
				continue
			}
			mode := n.PlayMode
			if mode == model.PlayModeInherit {
				mode = b.Ref.PlayMode
			}
			note, ok := pitch.Resolve(n.MusicValue, mode == model.PlayModeFixed, ctx)
			if !ok {
				continue
			}
			offset := int64(n.GridStart)*grid + int64(n.TimeOffset) + p.jitter(n.TimeRange)
			if offset >= repeat {
				continue
			}
			on := max(now+base+offset, now)
			dur := max(n.Duration+p.jitter(n.DurationRange), 1)
			vel := uint8(clampInt(int(n.Velocity)+int(p.jitter(n.VelocityRange)), 1, 127))
			p.pushPattern(event.NoteOn(on, ch, note, vel))
			p.pushPattern(event.NoteOff(on+dur, ch, note))
		}
	}
}

func (p *Performance) pushPattern(e event.Event) {
	p.mu.Lock()
	p.patQueue.Push(e)
	p.mu.Unlock()
}

// subchordFor returns the first subchord serving level, else the first.
func (p *Performance) subchordFor(level uint8) *model.Subchord {
	subs := p.chord.Subchords
	if level < 32 {
		for i := range subs {
			if subs[i].Levels&(1<<level) != 0 {
				return &subs[i]
			}
		}
	}
	return &subs[0]
}

// variationFor picks the variation a part plays this round. Parts sharing
// a non-zero lock id play the same variation.
func (p *Performance) variationFor(b *pattern.Binding) int {
	count := min(int(b.Part.Variations), 32)
	if count <= 1 {
		return 0
	}
	lock := b.Ref.VariationLock
	if lock != 0 && p.lockVariation[lock] >= 0 {
		return int(p.lockVariation[lock]) % count
	}
	v := p.rnd.Intn(count)
	if lock != 0 {
		p.lockVariation[lock] = int8(v)
	}
	return v
}

// jitter returns a random offset in [-r/2, r/2].
func (p *Performance) jitter(r uint8) int64 {
	if r == 0 {
		return 0
	}
	return int64(p.rnd.Intn(int(r)+1) - int(r)/2)
}

// alignScale expresses the subchord's scale relative to the chord root.
func alignScale(s *model.Subchord) uint32 {
	if s.ScaleRoot == s.ChordRoot {
		return s.ScaleMask
	}
	shift := ((int(s.ScaleRoot)-int(s.ChordRoot))%12 + 12) % 12
	octave := s.ScaleMask & 0xFFF
	rot := (octave<<shift | octave>>(12-shift)) & 0xFFF
	return rot | rot<<12
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
