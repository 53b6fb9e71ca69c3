package event

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cbegin/dmperf-go/internal/model"
)

type recordingState struct {
	calls []string
	tempo float64
	notes []uint8
}

func (s *recordingState) SetTempo(at int64, bpm float64) {
	s.calls = append(s.calls, "tempo")
	s.tempo = bpm
}
func (s *recordingState) ApplyBand(int64, *Band) { s.calls = append(s.calls, "band") }
func (s *recordingState) SetGroove(int64, uint8, uint8, model.CommandKind) {
	s.calls = append(s.calls, "groove")
}
func (s *recordingState) SetChord(int64, *model.Chord) { s.calls = append(s.calls, "chord") }
func (s *recordingState) NoteOn(ch uint32, note, vel uint8) {
	s.calls = append(s.calls, "note-on")
	s.notes = append(s.notes, note)
}
func (s *recordingState) NoteOff(uint32, uint8) { s.calls = append(s.calls, "note-off") }
func (s *recordingState) EndSegment(int64)      { s.calls = append(s.calls, "segment-end") }
func (s *recordingState) EndPattern(int64)      { s.calls = append(s.calls, "pattern-end") }

func TestExecuteDispatchesByKind(t *testing.T) {
	s := &recordingState{}
	events := []Event{
		TempoChange(0, 90),
		BandChange(0, &Band{}),
		GrooveLevel(0, model.Command{GrooveLevel: 40}),
		ChordChange(0, &model.Chord{}),
		NoteOn(0, 1, 60, 100),
		NoteOff(0, 1, 60),
		SegmentEnd(0),
		PatternEnd(0),
	}
	for i := range events {
		events[i].Execute(s)
	}
	for i, e := range events {
		if s.calls[i] != e.Kind.String() {
			t.Fatalf("event %d: expected %s, got %s", i, e.Kind, s.calls[i])
		}
	}
	if s.tempo != 90 || len(s.notes) != 1 || s.notes[0] != 60 {
		t.Fatalf("payload not delivered: tempo=%v notes=%v", s.tempo, s.notes)
	}
}

func TestQueueOrdersByTimeThenPriorityThenFIFO(t *testing.T) {
	q := NewQueue(8, nil)
	q.Push(NoteOn(100, 1, 62, 100))
	q.Push(NoteOn(50, 1, 60, 100))
	q.Push(NoteOff(100, 1, 61))
	q.Push(TempoChange(100, 140))
	q.Push(NoteOn(100, 1, 63, 100))

	var got []Kind
	var notes []uint8
	for q.Len() > 0 {
		e, _ := q.Pop()
		got = append(got, e.Kind)
		notes = append(notes, e.Note)
	}
	want := []Kind{KindNoteOn, KindTempoChange, KindNoteOff, KindNoteOn, KindNoteOn}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %s want %s", i, got[i], want[i])
		}
	}
	if notes[3] != 62 || notes[4] != 63 {
		t.Fatalf("equal events must pop in insertion order, got %v", notes)
	}
}

func TestAtClonesWithNewTime(t *testing.T) {
	e := NoteOn(10, 2, 64, 90)
	c := e.At(500)
	if c.Time != 500 || e.Time != 10 || c.Note != 64 || c.Channel != 2 {
		t.Fatalf("unexpected clone %+v of %+v", c, e)
	}
}

func TestSharedSequenceKeepsFIFOAcrossQueues(t *testing.T) {
	seq := &Sequence{}
	a := NewQueue(2, seq)
	b := NewQueue(2, seq)
	b.Push(NoteOn(0, 0, 1, 1))
	a.Push(NoteOn(0, 0, 2, 1))
	ha, _ := a.Peek()
	hb, _ := b.Peek()
	if !Before(hb, ha) {
		t.Fatalf("earlier insertion in the other queue should win the tie")
	}
}

func TestQueueResetKeepsCapacity(t *testing.T) {
	q := NewQueue(4, nil)
	for i := 0; i < 4; i++ {
		q.Push(NoteOn(int64(i), 0, 60, 1))
	}
	q.Reset()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue")
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("pop on empty queue should fail")
	}
	if allocs := testing.AllocsPerRun(100, func() {
		q.Push(NoteOn(1, 0, 60, 1))
		q.Pop()
	}); allocs != 0 {
		t.Fatalf("push/pop within capacity allocated %v times", allocs)
	}
}

func TestQueueProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("pops are non-decreasing in time and ordered within a pulse", prop.ForAll(
		func(times []int64, kinds []uint8) bool {
			q := NewQueue(len(times), nil)
			for i, t := range times {
				var e Event
				switch kinds[i%len(kinds)] % 4 {
				case 0:
					e = TempoChange(t, 120)
				case 1:
					e = NoteOff(t, 0, 60)
				case 2:
					e = NoteOn(t, 0, 60, 100)
				default:
					e = PatternEnd(t)
				}
				q.Push(e)
			}
			prev, ok := q.Pop()
			if !ok {
				return len(times) == 0
			}
			for q.Len() > 0 {
				cur, _ := q.Pop()
				if cur.Time < prev.Time {
					return false
				}
				if cur.Time == prev.Time && cur.Priority > prev.Priority {
					return false
				}
				if cur.Time == prev.Time && cur.Priority == prev.Priority && cur.seq < prev.seq {
					return false
				}
				prev = cur
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 64)),
		gen.SliceOfN(4, gen.UInt8()),
	))

	properties.TestingRun(t)
}
