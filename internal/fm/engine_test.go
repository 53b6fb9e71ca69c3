package fm

import (
	"math"
	"testing"
)

func peak(buf []float32) float64 {
	var p float64
	for _, s := range buf {
		p = max(p, math.Abs(float64(s)))
	}
	return p
}

func TestNoteOnProducesSound(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	buf := make([]float32, 2*512)
	e.Render(buf, 512, 1, false)
	if peak(buf) != 0 {
		t.Fatalf("idle engine should be silent")
	}
	e.NoteOn(60, 100)
	e.Render(buf, 512, 1, false)
	if peak(buf) == 0 {
		t.Fatalf("expected output after note on")
	}
	if e.ActiveVoiceCount() != 1 {
		t.Fatalf("expected 1 active voice, got %d", e.ActiveVoiceCount())
	}
}

func TestNoteOffReleasesVoice(t *testing.T) {
	p := DefaultParams()
	e := New(48000, 2, p)
	e.ProgramChange(0, 0, 16) // organ
	e.NoteOn(64, 127)
	buf := make([]float32, 2*4800)
	e.Render(buf, 4800, 1, false)
	e.NoteOff(64)
	for i := 0; i < 20; i++ {
		e.Render(buf, 4800, 1, false)
	}
	if e.ActiveVoiceCount() != 0 {
		t.Fatalf("voice should finish its release, %d still active", e.ActiveVoiceCount())
	}
	if peak(buf) != 0 {
		t.Fatalf("released engine should be silent, peak %f", peak(buf))
	}
}

func TestZeroVelocityIsNoteOff(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.NoteOn(60, 100)
	e.NoteOn(60, 0)
	if e.voices[0].carrier.envState != envRelease {
		t.Fatalf("velocity 0 should release the note")
	}
}

func TestSustainPedalHoldsNotes(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.ControlChange(64, 127)
	e.NoteOn(60, 100)
	e.NoteOff(60)
	if !e.voices[0].held || e.voices[0].carrier.envState == envRelease {
		t.Fatalf("pedal down should hold the note")
	}
	e.ControlChange(64, 0)
	if e.voices[0].carrier.envState != envRelease {
		t.Fatalf("pedal up should release held notes")
	}
}

func TestAllSoundOffSilencesImmediately(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.NoteOn(60, 100)
	e.NoteOn(67, 100)
	e.ControlChange(120, 0)
	if e.ActiveVoiceCount() != 0 {
		t.Fatalf("CC 120 should kill every voice")
	}
}

func TestVoiceStealing(t *testing.T) {
	p := DefaultParams()
	p.Polyphony = 2
	e := New(48000, 2, p)
	e.NoteOn(60, 100)
	e.NoteOn(62, 100)
	e.NoteOn(64, 100)
	if e.ActiveVoiceCount() != 2 {
		t.Fatalf("polyphony should cap active voices at 2, got %d", e.ActiveVoiceCount())
	}
}

func TestPanAndVolume(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.ControlChange(10, 0) // hard left
	e.NoteOn(60, 100)
	buf := make([]float32, 2*256)
	e.Render(buf, 256, 1, false)
	var left, right float64
	for i := 0; i < len(buf); i += 2 {
		left = max(left, math.Abs(float64(buf[i])))
		right = max(right, math.Abs(float64(buf[i+1])))
	}
	if left == 0 || right > left*0.01 {
		t.Fatalf("hard left pan: left %f right %f", left, right)
	}

	e.ControlChange(7, 0)
	e.Render(buf, 256, 1, false)
	if peak(buf) > 1e-3 {
		t.Fatalf("volume 0 should silence the channel, peak %f", peak(buf))
	}
}

func TestRenderMixAddsToBuffer(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	buf := make([]float32, 2*64)
	for i := range buf {
		buf[i] = 0.25
	}
	e.Render(buf, 64, 1, true)
	for i, s := range buf {
		if s != 0.25 {
			t.Fatalf("silent mix should keep sample %d, got %f", i, s)
		}
	}
	e.Render(buf, 64, 1, false)
	if peak(buf) != 0 {
		t.Fatalf("silent overwrite should clear the buffer")
	}
}

func TestPitchBendShiftsFrequency(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.PitchBend(8191)
	want := math.Pow(2, 8191.0/8192*2/12)
	if math.Abs(e.bendRatio-want) > 1e-9 {
		t.Fatalf("bend ratio %f, want %f", e.bendRatio, want)
	}
	e.PitchBend(0)
	if e.bendRatio != 1 {
		t.Fatalf("centred bend should be 1, got %f", e.bendRatio)
	}
}

func TestDrumsIgnoreProgramChange(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.SetDrums(true)
	e.ProgramChange(0, 0, 40)
	if e.preset != drumPreset {
		t.Fatalf("drum engine should keep the drum preset")
	}
}

func TestMasterGain(t *testing.T) {
	e := New(48000, 2, DefaultParams())
	e.SetMasterGain(-1)
	if e.masterGainValue() != 0 {
		t.Fatalf("negative gain should clamp to 0")
	}
	e.SetMasterGain(0.5)
	if e.masterGainValue() != 0.5 {
		t.Fatalf("expected 0.5, got %f", e.masterGainValue())
	}
}

func BenchmarkRender(b *testing.B) {
	e := New(48000, 2, DefaultParams())
	for n := uint8(60); n < 68; n++ {
		e.NoteOn(n, 100)
	}
	buf := make([]float32, 2*1024)
	b.ReportAllocs()
	for b.Loop() {
		e.Render(buf, 1024, 1, false)
	}
}
