package synth

import (
	"fmt"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/cbegin/dmperf-go/internal/render"
)

const (
	drumChannel  = 9
	scratchSize  = 4096
	midiCC       = 0xB0
	midiProgram  = 0xC0
	midiNoteOn   = 0x90
	midiNoteOff  = 0x80
	midiBend     = 0xE0
	ccBankMSB    = 0
	ccBankLSB    = 32
	ccVolume     = 7
	ccPan        = 10
	ccAllNoteOff = 123
)

// SoundFontRenderer plays one instrument from a SoundFont on its own
// synthesizer so channel volume and pan stay independent.
type SoundFontRenderer struct {
	synth    *meltysynth.Synthesizer
	channel  int32
	channels int
	left     []float32
	right    []float32
}

func NewSoundFontRenderer(sf *meltysynth.SoundFont, patch render.Patch, sampleRate, channels int, volume, pan float32) (*SoundFontRenderer, error) {
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	s, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("synth: %w", err)
	}
	if channels <= 0 {
		channels = 2
	}
	r := &SoundFontRenderer{
		synth:    s,
		channels: channels,
		left:     make([]float32, scratchSize),
		right:    make([]float32, scratchSize),
	}
	if patch.Drums {
		r.channel = drumChannel
	}
	r.ProgramChange(patch.BankLow, patch.BankHigh, patch.Program)
	r.ControlChange(ccVolume, render.EncodeVolume(volume))
	r.ControlChange(ccPan, render.EncodePan(pan))
	return r, nil
}

func (r *SoundFontRenderer) NoteOn(note, velocity uint8) {
	r.synth.ProcessMidiMessage(r.channel, midiNoteOn, int32(note&0x7F), int32(velocity&0x7F))
}

func (r *SoundFontRenderer) NoteOff(note uint8) {
	r.synth.ProcessMidiMessage(r.channel, midiNoteOff, int32(note&0x7F), 0)
}

func (r *SoundFontRenderer) ControlChange(controller, value uint8) {
	r.synth.ProcessMidiMessage(r.channel, midiCC, int32(controller&0x7F), int32(value&0x7F))
}

func (r *SoundFontRenderer) ProgramChange(bankLow, bankHigh, program uint8) {
	r.ControlChange(ccBankMSB, bankHigh)
	r.ControlChange(ccBankLSB, bankLow)
	r.synth.ProcessMidiMessage(r.channel, midiProgram, int32(program&0x7F), 0)
}

func (r *SoundFontRenderer) PitchBend(value int16) {
	v := int32(value) + 8192
	v = max(0, min(16383, v))
	r.synth.ProcessMidiMessage(r.channel, midiBend, v&0x7F, v>>7)
}

func (r *SoundFontRenderer) AllNotesOff() {
	r.ControlChange(ccAllNoteOff, 0)
}

func (r *SoundFontRenderer) Render(dst []float32, frames int, volume float32, mix bool) {
	frames = min(frames, len(dst)/r.channels)
	for done := 0; done < frames; {
		n := min(frames-done, scratchSize)
		l, rt := r.left[:n], r.right[:n]
		r.synth.Render(l, rt)
		out := dst[done*r.channels : (done+n)*r.channels]
		interleave(out, l, rt, r.channels, volume, mix)
		done += n
	}
}

func interleave(dst, left, right []float32, channels int, volume float32, mix bool) {
	for i := range left {
		frame := dst[i*channels : (i+1)*channels]
		l, r := left[i]*volume, right[i]*volume
		if channels == 1 {
			m := (l + r) * 0.5
			if mix {
				frame[0] += m
			} else {
				frame[0] = m
			}
			continue
		}
		if mix {
			frame[0] += l
			frame[1] += r
			continue
		}
		frame[0], frame[1] = l, r
		clear(frame[2:])
	}
}
