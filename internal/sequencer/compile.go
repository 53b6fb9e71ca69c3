package sequencer

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/cbegin/dmperf-go/internal/event"
	"github.com/cbegin/dmperf-go/internal/model"
	"github.com/cbegin/dmperf-go/internal/pattern"
	"github.com/cbegin/dmperf-go/internal/render"
)

var (
	ErrNilSegment  = errors.New("sequencer: nil segment")
	ErrNoLoader    = errors.New("sequencer: no loader configured")
	ErrNoDecoder   = errors.New("sequencer: no decoder configured")
	ErrNoFactory   = errors.New("sequencer: no renderer factory configured")
	ErrLoad        = errors.New("sequencer: resource load failed")
	ErrDecode      = errors.New("sequencer: resource decode failed")
	ErrUnknownPart = errors.New("sequencer: unknown style part")
)

type compiler struct {
	p           *Performance
	loader      model.Loader
	collections map[string]*render.Collection
}

// LoadSegment loads, decodes and compiles the named segment resource.
func (p *Performance) LoadSegment(name string) (*Segment, error) {
	c := p.newCompiler()
	data, err := c.load(name)
	if err != nil {
		return nil, err
	}
	if p.decoder == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoder, name)
	}
	src, err := p.decoder.DecodeSegment(name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
	}
	return c.compile(src)
}

// Compile expands src into an immutable timeline. Referenced styles and
// instrument collections are loaded synchronously and band renderers are
// created through the factory.
func (p *Performance) Compile(src *model.Segment) (*Segment, error) {
	return p.newCompiler().compile(src)
}

func (p *Performance) newCompiler() *compiler {
	return &compiler{
		p:           p,
		loader:      p.currentLoader(),
		collections: make(map[string]*render.Collection),
	}
}

func (c *compiler) compile(src *model.Segment) (*Segment, error) {
	if src == nil {
		return nil, ErrNilSegment
	}
	seg := &Segment{
		ID:       src.ID,
		Name:     src.Name,
		Length:   max(src.Length, 1),
		Repeats:  src.Repeats,
		Infinite: src.Repeats == model.RepeatInfinite,
	}

	var events []event.Event
	sig := model.CommonTime
	for i, ref := range src.Styles {
		style, err := c.style(ref)
		if err != nil {
			return nil, err
		}
		patterns, err := compilePatterns(style)
		if err != nil {
			return nil, err
		}
		seg.Patterns = append(seg.Patterns, patterns...)
		if i > 0 {
			continue
		}
		sig = style.TimeSignature
		if style.Tempo > 0 {
			events = append(events, event.TempoChange(0, style.Tempo))
		}
		if len(style.Bands) > 0 {
			b, err := c.band(style.Bands[0])
			if err != nil {
				return nil, err
			}
			events = append(events, event.BandChange(0, b))
		}
	}
	if src.TimeSignature != nil {
		sig = *src.TimeSignature
	}
	seg.Signature = sig

	for _, t := range src.Tempos {
		if t.BPM > 0 {
			events = append(events, event.TempoChange(max(t.Time, 0), t.BPM))
		}
	}
	grooveAtStart := false
	for _, cmd := range src.Commands {
		if cmd.Time <= 0 {
			grooveAtStart = true
		}
		events = append(events, event.GrooveLevel(max(cmd.Time, 0), cmd))
	}
	if len(seg.Patterns) > 0 && !grooveAtStart {
		events = append(events, event.GrooveLevel(0, model.Command{GrooveLevel: DefaultGrooveLevel}))
	}
	seg.chords = make([]model.Chord, len(src.Chords))
	for i, ch := range src.Chords {
		ch.Subchords = slices.Clone(ch.Subchords)
		seg.chords[i] = ch
		events = append(events, event.ChordChange(max(ch.Time, 0), &seg.chords[i]))
	}
	for _, item := range src.Bands {
		b, err := c.band(item.Band)
		if err != nil {
			return nil, err
		}
		events = append(events, event.BandChange(max(item.Time, 0), b))
	}

	dropped := 0
	kept := events[:0]
	for _, e := range events {
		if e.Time >= seg.Length {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	events = append(kept, event.SegmentEnd(seg.Length))
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time != events[j].Time {
			return events[i].Time < events[j].Time
		}
		return events[i].Priority > events[j].Priority
	})
	seg.Events = events

	c.p.logger.Debug("segment compiled",
		"id", seg.ID,
		"name", seg.Name,
		"length", seg.Length,
		"events", len(seg.Events),
		"patterns", len(seg.Patterns),
		"dropped", dropped,
	)
	return seg, nil
}

func (c *compiler) load(name string) ([]byte, error) {
	if c.loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoLoader, name)
	}
	data, err := c.loader.Load(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, name, err)
	}
	return data, nil
}

func (c *compiler) style(ref model.StyleRef) (*model.Style, error) {
	if ref.Style != nil {
		return ref.Style, nil
	}
	name := ref.File
	if name == "" {
		name = ref.Name
	}
	data, err := c.load(name)
	if err != nil {
		return nil, err
	}
	if c.p.decoder == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoder, name)
	}
	style, err := c.p.decoder.DecodeStyle(name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
	}
	return style, nil
}

func compilePatterns(style *model.Style) ([]*pattern.Pattern, error) {
	parts := make(map[string]*model.Part, len(style.Parts))
	for i := range style.Parts {
		part := style.Parts[i]
		part.Notes = slices.Clone(part.Notes)
		parts[part.ID] = &part
	}
	out := make([]*pattern.Pattern, 0, len(style.Patterns))
	for _, src := range style.Patterns {
		pat := &pattern.Pattern{
			Name:          src.Name,
			GrooveBottom:  src.GrooveBottom,
			GrooveTop:     src.GrooveTop,
			Embellishment: src.Embellishment,
			Measures:      src.Measures,
			Parts:         make([]pattern.Binding, 0, len(src.PartRefs)),
		}
		if src.TimeSignature != nil {
			sig := *src.TimeSignature
			pat.Signature = &sig
		}
		for _, ref := range src.PartRefs {
			part, ok := parts[ref.PartID]
			if !ok {
				return nil, fmt.Errorf("%w: %q in pattern %q of style %q", ErrUnknownPart, ref.PartID, src.Name, style.Name)
			}
			pat.Parts = append(pat.Parts, pattern.Binding{Ref: ref, Part: part})
		}
		out = append(out, pat)
	}
	return out, nil
}

func (c *compiler) band(src model.Band) (*event.Band, error) {
	b := &event.Band{Name: src.Name, Assignments: make([]event.Assignment, 0, len(src.Instruments))}
	for _, inst := range src.Instruments {
		if c.p.factory == nil {
			return nil, fmt.Errorf("%w: band %q", ErrNoFactory, src.Name)
		}
		a := event.Assignment{
			Channel: inst.Channel,
			Patch:   render.DecodePatch(inst.Patch),
			Volume:  render.DecodeVolume(inst.Volume),
			Pan:     render.DecodePan(inst.Pan),
		}
		var err error
		if inst.Collection != "" {
			coll, lerr := c.collection(inst.Collection)
			if lerr != nil {
				return nil, lerr
			}
			a.Renderer, err = c.p.factory.CreateFromCollection(a.Patch, src.Name, coll, c.p.sampleRate, c.p.channels, a.Volume, a.Pan)
		} else {
			a.Renderer, err = c.p.factory.CreateGeneralMIDI(a.Patch, src.Name, c.p.sampleRate, c.p.channels, a.Volume, a.Pan)
		}
		if err != nil {
			return nil, fmt.Errorf("sequencer: band %q channel %d: %w", src.Name, inst.Channel, err)
		}
		b.Assignments = append(b.Assignments, a)
	}
	return b, nil
}

func (c *compiler) collection(name string) (*render.Collection, error) {
	if coll, ok := c.collections[name]; ok {
		return coll, nil
	}
	data, err := c.load(name)
	if err != nil {
		return nil, err
	}
	coll := &render.Collection{Name: name, Data: data}
	c.collections[name] = coll
	return coll, nil
}
