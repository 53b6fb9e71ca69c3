// Package pitch resolves abstract music values against a chord and scale.
package pitch

import "math/bits"

// Context is the harmonic frame a music value is resolved against.
type Context struct {
	Root      uint8
	ChordMask uint32
	ScaleMask uint32
}

// Octave returns bits 12-15 of a music value.
func Octave(v uint16) int { return int(v >> 12 & 0xF) }

// ChordTone returns bits 8-11 of a music value.
func ChordTone(v uint16) int { return int(v >> 8 & 0xF) }

// ScaleTone returns bits 4-7 of a music value.
func ScaleTone(v uint16) int { return int(v >> 4 & 0xF) }

// Accidental returns bits 0-3 of a music value as a signed semitone offset.
func Accidental(v uint16) int {
	a := int(v & 0xF)
	if a > 7 {
		a -= 16
	}
	return a
}

// Encode packs the four fields of a music value. The accidental is stored
// as four-bit two's complement.
func Encode(octave, chordTone, scaleTone, accidental int) uint16 {
	return uint16(octave&0xF)<<12 | uint16(chordTone&0xF)<<8 | uint16(scaleTone&0xF)<<4 | uint16(accidental&0xF)
}

// Resolve maps a music value to a MIDI note. Fixed values return their low
// byte. Chord-relative values fail when the chord has fewer tones than the
// value asks for; the returned note then uses the highest available tone.
func Resolve(value uint16, fixed bool, c Context) (uint8, bool) {
	if fixed {
		return uint8(value), true
	}
	ok := true
	offset, found := nthSetBit(c.ChordMask, ChordTone(value))
	if !found {
		ok = false
		if n := bits.OnesCount32(c.ChordMask); n > 0 {
			offset, _ = nthSetBit(c.ChordMask, n-1)
		}
	}
	note := int(c.Root) + 12*Octave(value) + offset
	if ok {
		if st := ScaleTone(value); st != 0 {
			if step, found := nthSetBit(c.ScaleMask>>offset, st); found {
				note += step
			}
		}
	}
	note += Accidental(value)
	return wrap(note), ok
}

// nthSetBit returns the position of the n-th (0-based) set bit of mask.
func nthSetBit(mask uint32, n int) (int, bool) {
	for mask != 0 {
		pos := bits.TrailingZeros32(mask)
		if n == 0 {
			return pos, true
		}
		n--
		mask &^= 1 << pos
	}
	return 0, false
}

func wrap(note int) uint8 {
	for note < 0 {
		note += 12
	}
	for note > 127 {
		note -= 12
	}
	return uint8(note)
}
