package synth

import (
	"fmt"
	"io"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/dmperf-go/internal/render"
)

const (
	recordTicks = 960
	recordBPM   = 120
)

type recorded struct {
	sample int64
	msg    midi.Message
}

type track struct {
	name    string
	channel uint8
	events  []recorded
}

// Recording captures every message sent to the renderers built by a wrapped
// factory and writes them out as a standard MIDI file. Each renderer gets a
// track of its own.
type Recording struct {
	sampleRate int

	mu     sync.Mutex
	clock  func() int64
	tracks []*track
}

func NewRecording(sampleRate int) *Recording {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Recording{sampleRate: sampleRate, clock: func() int64 { return 0 }}
}

// SetClock sets the sample clock messages are stamped with.
func (r *Recording) SetClock(clock func() int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if clock != nil {
		r.clock = clock
	}
}

// Wrap returns a factory whose renderers report to r.
func (r *Recording) Wrap(inner render.Factory) render.Factory {
	return &recordingFactory{rec: r, inner: inner}
}

// Tracks returns the number of recorded tracks.
func (r *Recording) Tracks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracks)
}

func (r *Recording) newTrack(name string, drums bool) *track {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := uint8(drumChannel)
	if !drums {
		melodic := len(r.tracks) % 15
		ch = uint8(melodic)
		if melodic >= drumChannel {
			ch++
		}
	}
	t := &track{name: name, channel: ch}
	r.tracks = append(r.tracks, t)
	return t
}

func (r *Recording) add(t *track, msg midi.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.events = append(t.events, recorded{sample: r.clock(), msg: msg})
}

func (r *Recording) tick(sample int64) int64 {
	return sample * recordTicks * recordBPM / (60 * int64(r.sampleRate))
}

// WriteSMF writes a format 1 file at 960 ticks per quarter note and a fixed
// 120 BPM so sample times map linearly onto ticks.
func (r *Recording) WriteSMF(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(recordTicks)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(recordBPM))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return fmt.Errorf("synth: tempo track: %w", err)
	}

	for i, t := range r.tracks {
		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(t.name))
		var last int64
		for _, ev := range t.events {
			at := max(r.tick(ev.sample), last)
			tr.Add(uint32(at-last), ev.msg)
			last = at
		}
		tr.Close(0)
		if err := sm.Add(tr); err != nil {
			return fmt.Errorf("synth: track %d: %w", i, err)
		}
	}
	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("synth: write smf: %w", err)
	}
	return nil
}

type recordingFactory struct {
	rec   *Recording
	inner render.Factory
}

func (f *recordingFactory) CreateFromCollection(patch render.Patch, bandID string, coll *render.Collection, sampleRate, channels int, volume, pan float32) (render.Renderer, error) {
	r, err := f.inner.CreateFromCollection(patch, bandID, coll, sampleRate, channels, volume, pan)
	if err != nil {
		return nil, err
	}
	return f.wrap(r, patch, bandID, volume, pan), nil
}

func (f *recordingFactory) CreateGeneralMIDI(patch render.Patch, bandID string, sampleRate, channels int, volume, pan float32) (render.Renderer, error) {
	r, err := f.inner.CreateGeneralMIDI(patch, bandID, sampleRate, channels, volume, pan)
	if err != nil {
		return nil, err
	}
	return f.wrap(r, patch, bandID, volume, pan), nil
}

func (f *recordingFactory) wrap(inner render.Renderer, patch render.Patch, bandID string, volume, pan float32) render.Renderer {
	t := f.rec.newTrack(bandID, patch.Drums)
	rr := &recordingRenderer{inner: inner, rec: f.rec, track: t}
	f.rec.add(t, midi.ControlChange(t.channel, ccBankMSB, patch.BankHigh))
	f.rec.add(t, midi.ControlChange(t.channel, ccBankLSB, patch.BankLow))
	f.rec.add(t, midi.ProgramChange(t.channel, patch.Program))
	f.rec.add(t, midi.ControlChange(t.channel, ccVolume, render.EncodeVolume(volume)))
	f.rec.add(t, midi.ControlChange(t.channel, ccPan, render.EncodePan(pan)))
	return rr
}

type recordingRenderer struct {
	inner render.Renderer
	rec   *Recording
	track *track
}

func (r *recordingRenderer) NoteOn(note, velocity uint8) {
	r.rec.add(r.track, midi.NoteOn(r.track.channel, note, velocity))
	r.inner.NoteOn(note, velocity)
}

func (r *recordingRenderer) NoteOff(note uint8) {
	r.rec.add(r.track, midi.NoteOff(r.track.channel, note))
	r.inner.NoteOff(note)
}

func (r *recordingRenderer) ControlChange(controller, value uint8) {
	r.rec.add(r.track, midi.ControlChange(r.track.channel, controller, value))
	r.inner.ControlChange(controller, value)
}

func (r *recordingRenderer) ProgramChange(bankLow, bankHigh, program uint8) {
	r.rec.add(r.track, midi.ControlChange(r.track.channel, ccBankMSB, bankHigh))
	r.rec.add(r.track, midi.ControlChange(r.track.channel, ccBankLSB, bankLow))
	r.rec.add(r.track, midi.ProgramChange(r.track.channel, program))
	r.inner.ProgramChange(bankLow, bankHigh, program)
}

func (r *recordingRenderer) PitchBend(value int16) {
	r.rec.add(r.track, midi.Pitchbend(r.track.channel, value))
	r.inner.PitchBend(value)
}

func (r *recordingRenderer) AllNotesOff() {
	r.rec.add(r.track, midi.ControlChange(r.track.channel, ccAllNoteOff, 0))
	r.inner.AllNotesOff()
}

func (r *recordingRenderer) Render(dst []float32, frames int, volume float32, mix bool) {
	r.inner.Render(dst, frames, volume, mix)
}
