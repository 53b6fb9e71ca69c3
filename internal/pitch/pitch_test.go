package pitch

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const (
	majorTriad = 1<<0 | 1<<4 | 1<<7
	majorScale = 0xAB5
)

func TestResolveChordTones(t *testing.T) {
	c := Context{Root: 60, ChordMask: majorTriad, ScaleMask: majorScale}
	cases := []struct {
		name  string
		value uint16
		want  uint8
	}{
		{"root", Encode(0, 0, 0, 0), 60},
		{"third", Encode(0, 1, 0, 0), 64},
		{"fifth", Encode(0, 2, 0, 0), 67},
		{"octave up", Encode(1, 0, 0, 0), 72},
		{"scale step above third", Encode(0, 1, 1, 0), 65},
		{"flat accidental", Encode(0, 0, 0, -1), 59},
	}
	for _, c2 := range cases {
		got, ok := Resolve(c2.value, false, c)
		if !ok || got != c2.want {
			t.Fatalf("%s: got %d ok=%v want %d", c2.name, got, ok, c2.want)
		}
	}
}

func TestResolveFailsOnMissingChordTone(t *testing.T) {
	c := Context{Root: 60, ChordMask: majorTriad, ScaleMask: majorScale}
	note, ok := Resolve(Encode(0, 5, 0, 0), false, c)
	if ok {
		t.Fatalf("expected failure for sixth chord tone of a triad")
	}
	if note != 67 {
		t.Fatalf("expected clamp to highest tone 67, got %d", note)
	}
	if _, ok := Resolve(0, false, Context{Root: 60}); ok {
		t.Fatalf("expected failure for empty chord")
	}
}

func TestResolveWrapsIntoMIDIRange(t *testing.T) {
	c := Context{Root: 120, ChordMask: majorTriad}
	got, ok := Resolve(Encode(2, 2, 0, 0), false, c)
	if !ok || got > 127 {
		t.Fatalf("expected wrapped note, got %d ok=%v", got, ok)
	}
	if got%12 != (120+24+7)%12 {
		t.Fatalf("wrapping must preserve pitch class, got %d", got)
	}
	low, _ := Resolve(Encode(0, 0, 0, -8), false, Context{Root: 2, ChordMask: 1})
	if low != 6 {
		t.Fatalf("expected 2-8 to wrap to 6, got %d", low)
	}
}

func TestAccidentalIsSigned(t *testing.T) {
	for a := -8; a <= 7; a++ {
		if got := Accidental(Encode(0, 0, 0, a)); got != a {
			t.Fatalf("accidental %d decoded as %d", a, got)
		}
	}
}

func TestResolveProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("results stay within 0..127", prop.ForAll(
		func(value uint16, root uint8, chord, scale uint32) bool {
			note, _ := Resolve(value, false, Context{Root: root, ChordMask: chord, ScaleMask: scale})
			return note <= 127
		},
		gen.UInt16(),
		gen.UInt8Range(0, 23),
		gen.UInt32Range(0, 1<<24-1),
		gen.UInt32Range(0, 1<<24-1),
	))

	properties.Property("fixed values return their low byte", prop.ForAll(
		func(value uint16, chord uint32) bool {
			note, ok := Resolve(value, true, Context{Root: 7, ChordMask: chord})
			return ok && note == uint8(value)
		},
		gen.UInt16(),
		gen.UInt32(),
	))

	properties.Property("resolution is deterministic", prop.ForAll(
		func(value uint16, root uint8, chord, scale uint32) bool {
			c := Context{Root: root, ChordMask: chord, ScaleMask: scale}
			a, okA := Resolve(value, false, c)
			b, okB := Resolve(value, false, c)
			return a == b && okA == okB
		},
		gen.UInt16(),
		gen.UInt8Range(0, 23),
		gen.UInt32Range(0, 1<<24-1),
		gen.UInt32Range(0, 1<<24-1),
	))

	properties.TestingRun(t)
}
