// Package render defines the sound renderer contract a performance drives.
package render

// Renderer produces audio for one performance channel.
type Renderer interface {
	NoteOn(note, velocity uint8)
	NoteOff(note uint8)
	ControlChange(controller, value uint8)
	ProgramChange(bankLow, bankHigh, program uint8)
	// PitchBend takes a signed offset from centre in -8192..8191.
	PitchBend(value int16)
	AllNotesOff()
	// Render writes frames of interleaved audio into dst, scaled by volume.
	// When mix is true the output is added to dst instead of replacing it.
	Render(dst []float32, frames int, volume float32, mix bool)
}

// Collection is a raw instrument collection resource.
type Collection struct {
	Name string
	Data []byte
}

// Factory builds renderers for band instruments.
type Factory interface {
	CreateFromCollection(patch Patch, bandID string, coll *Collection, sampleRate, channels int, volume, pan float32) (Renderer, error)
	CreateGeneralMIDI(patch Patch, bandID string, sampleRate, channels int, volume, pan float32) (Renderer, error)
}

// Patch is a decoded instrument patch.
type Patch struct {
	BankLow  uint8
	BankHigh uint8
	Program  uint8
	Drums    bool
}

// DecodePatch unpacks program (bits 0-6), bank LSB (8-14), bank MSB (16-22)
// and the drum flag (bit 31).
func DecodePatch(id uint32) Patch {
	return Patch{
		Program:  uint8(id & 0x7F),
		BankLow:  uint8(id >> 8 & 0x7F),
		BankHigh: uint8(id >> 16 & 0x7F),
		Drums:    id&(1<<31) != 0,
	}
}

// Encode packs p back into its instrument patch id.
func (p Patch) Encode() uint32 {
	id := uint32(p.Program&0x7F) | uint32(p.BankLow&0x7F)<<8 | uint32(p.BankHigh&0x7F)<<16
	if p.Drums {
		id |= 1 << 31
	}
	return id
}

// DecodeVolume maps 0..127 to 0..1.
func DecodeVolume(v uint8) float32 {
	return float32(min(v, 127)) / 127
}

// DecodePan maps 0..127 (64 centre) to -1..1.
func DecodePan(v uint8) float32 {
	v = min(v, 127)
	if v >= 64 {
		return float32(v-64) / 63
	}
	return float32(int(v)-64) / 64
}

// EncodeVolume maps 0..1 back to a 0..127 controller value.
func EncodeVolume(v float32) uint8 {
	return uint8(clamp01(v)*127 + 0.5)
}

// EncodePan maps -1..1 back to a 0..127 controller value.
func EncodePan(p float32) uint8 {
	p = max(-1, min(1, p))
	if p >= 0 {
		return uint8(64 + p*63 + 0.5)
	}
	return uint8(64 + p*64 + 0.5)
}

func clamp01(v float32) float32 {
	return max(0, min(1, v))
}
