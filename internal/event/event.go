// Package event defines the scheduled events of a performance and the
// ordered queue they wait in.
package event

import (
	"github.com/cbegin/dmperf-go/internal/model"
	"github.com/cbegin/dmperf-go/internal/render"
)

type Kind uint8

const (
	KindTempoChange Kind = iota
	KindBandChange
	KindGrooveLevel
	KindChord
	KindNoteOn
	KindNoteOff
	KindSegmentEnd
	KindPatternEnd
)

func (k Kind) String() string {
	switch k {
	case KindTempoChange:
		return "tempo"
	case KindBandChange:
		return "band"
	case KindGrooveLevel:
		return "groove"
	case KindChord:
		return "chord"
	case KindNoteOn:
		return "note-on"
	case KindNoteOff:
		return "note-off"
	case KindSegmentEnd:
		return "segment-end"
	case KindPatternEnd:
		return "pattern-end"
	default:
		return "unknown"
	}
}

// Priorities break ties between events at the same pulse; higher runs first.
const (
	PriorityTempo      int8 = 40
	PriorityBand       int8 = 30
	PriorityChord      int8 = 20
	PriorityGroove     int8 = 10
	PriorityNoteOff    int8 = 5
	PriorityNoteOn     int8 = 0
	PrioritySegmentEnd int8 = -1
	PriorityPatternEnd int8 = -2
)

// Assignment binds a renderer to a channel.
type Assignment struct {
	Channel  uint32
	Renderer render.Renderer
	Patch    render.Patch
	Volume   float32
	Pan      float32
}

// Band is a compiled band: one renderer per referenced channel.
type Band struct {
	Name        string
	Assignments []Assignment
}

// Event is a scheduled performance event. Only the fields of its Kind are
// meaningful.
type Event struct {
	Time     int64
	Priority int8
	Kind     Kind

	Tempo       float64
	Groove      uint8
	GrooveRange uint8
	Command     model.CommandKind
	Chord       *model.Chord
	Band        *Band
	Channel     uint32
	Note        uint8
	Velocity    uint8

	seq uint64
}

// At returns a copy of e scheduled at t.
func (e Event) At(t int64) Event {
	e.Time = t
	e.seq = 0
	return e
}

func TempoChange(t int64, bpm float64) Event {
	return Event{Time: t, Priority: PriorityTempo, Kind: KindTempoChange, Tempo: bpm}
}

func BandChange(t int64, b *Band) Event {
	return Event{Time: t, Priority: PriorityBand, Kind: KindBandChange, Band: b}
}

func ChordChange(t int64, c *model.Chord) Event {
	return Event{Time: t, Priority: PriorityChord, Kind: KindChord, Chord: c}
}

func GrooveLevel(t int64, cmd model.Command) Event {
	return Event{
		Time:        t,
		Priority:    PriorityGroove,
		Kind:        KindGrooveLevel,
		Groove:      cmd.GrooveLevel,
		GrooveRange: cmd.GrooveRange,
		Command:     cmd.Command,
	}
}

func NoteOn(t int64, channel uint32, note, velocity uint8) Event {
	return Event{Time: t, Priority: PriorityNoteOn, Kind: KindNoteOn, Channel: channel, Note: note, Velocity: velocity}
}

func NoteOff(t int64, channel uint32, note uint8) Event {
	return Event{Time: t, Priority: PriorityNoteOff, Kind: KindNoteOff, Channel: channel, Note: note}
}

func SegmentEnd(t int64) Event {
	return Event{Time: t, Priority: PrioritySegmentEnd, Kind: KindSegmentEnd}
}

func PatternEnd(t int64) Event {
	return Event{Time: t, Priority: PriorityPatternEnd, Kind: KindPatternEnd}
}

// State is the scheduler state events act on. Every call happens on the
// render goroutine at the event's own time.
type State interface {
	SetTempo(at int64, bpm float64)
	ApplyBand(at int64, b *Band)
	SetGroove(at int64, level, spread uint8, cmd model.CommandKind)
	SetChord(at int64, c *model.Chord)
	NoteOn(channel uint32, note, velocity uint8)
	NoteOff(channel uint32, note uint8)
	EndSegment(at int64)
	EndPattern(at int64)
}

// Execute applies e to s.
func (e *Event) Execute(s State) {
	switch e.Kind {
	case KindTempoChange:
		s.SetTempo(e.Time, e.Tempo)
	case KindBandChange:
		s.ApplyBand(e.Time, e.Band)
	case KindGrooveLevel:
		s.SetGroove(e.Time, e.Groove, e.GrooveRange, e.Command)
	case KindChord:
		s.SetChord(e.Time, e.Chord)
	case KindNoteOn:
		s.NoteOn(e.Channel, e.Note, e.Velocity)
	case KindNoteOff:
		s.NoteOff(e.Channel, e.Note)
	case KindSegmentEnd:
		s.EndSegment(e.Time)
	case KindPatternEnd:
		s.EndPattern(e.Time)
	}
}

// Before reports whether a is ordered ahead of b.
func Before(a, b *Event) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}
