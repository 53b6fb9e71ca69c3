package synth

import (
	"bytes"
	"errors"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/dmperf-go/internal/fm"
	"github.com/cbegin/dmperf-go/internal/render"
)

type nopRenderer struct {
	ons []uint8
}

func (n *nopRenderer) NoteOn(note, _ uint8) { n.ons = append(n.ons, note) }
func (n *nopRenderer) NoteOff(uint8) {}
func (n *nopRenderer) ControlChange(uint8, uint8) {}
func (n *nopRenderer) ProgramChange(uint8, uint8, uint8) {}
func (n *nopRenderer) PitchBend(int16) {}
func (n *nopRenderer) AllNotesOff() {}
func (n *nopRenderer) Render([]float32, int, float32, bool) {}

type nopFactory struct{ made []*nopRenderer }

func (f *nopFactory) CreateFromCollection(render.Patch, string, *render.Collection, int, int, float32, float32) (render.Renderer, error) {
	return nil, errors.New("no collections")
}

func (f *nopFactory) CreateGeneralMIDI(render.Patch, string, int, int, float32, float32) (render.Renderer, error) {
	r := &nopRenderer{}
	f.made = append(f.made, r)
	return r, nil
}

func TestGeneralMIDIFallsBackToFM(t *testing.T) {
	f := NewFactory()
	r, err := f.CreateGeneralMIDI(render.Patch{Program: 33}, "band", 44100, 2, 1, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	e, ok := r.(*fm.Engine)
	if !ok {
		t.Fatalf("expected *fm.Engine, got %T", r)
	}
	e.NoteOn(40, 100)
	buf := make([]float32, 2*256)
	e.Render(buf, 256, 1, false)
	silent := true
	for _, s := range buf {
		if s != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Fatalf("fm instrument produced no output")
	}
}

func TestCollectionErrors(t *testing.T) {
	f := NewFactory()
	if _, err := f.CreateFromCollection(render.Patch{}, "band", nil, 44100, 2, 1, 0); !errors.Is(err, ErrNoCollection) {
		t.Fatalf("expected ErrNoCollection, got %v", err)
	}
	coll := &render.Collection{Name: "broken.sf2", Data: []byte("RIFF????sfbk")}
	if _, err := f.CreateFromCollection(render.Patch{}, "band", coll, 44100, 2, 1, 0); !errors.Is(err, ErrSoundFont) {
		t.Fatalf("expected ErrSoundFont, got %v", err)
	}
	if len(f.fonts) != 0 {
		t.Fatalf("failed parses must not be cached")
	}
}

func TestRecordingChannels(t *testing.T) {
	rec := NewRecording(44100)
	f := rec.Wrap(&nopFactory{})
	for i := 0; i < 12; i++ {
		if _, err := f.CreateGeneralMIDI(render.Patch{}, "band", 44100, 2, 1, 0); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if _, err := f.CreateGeneralMIDI(render.Patch{Drums: true}, "kit", 44100, 2, 1, 0); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	for i, tr := range rec.tracks {
		if i < 12 && tr.channel == drumChannel {
			t.Fatalf("melodic track %d was given the drum channel", i)
		}
	}
	if got := rec.tracks[12].channel; got != drumChannel {
		t.Fatalf("drum track channel %d, want %d", got, drumChannel)
	}
	if _, err := f.CreateFromCollection(render.Patch{}, "band", nil, 44100, 2, 1, 0); err == nil {
		t.Fatalf("inner errors should pass through")
	}
	if rec.Tracks() != 13 {
		t.Fatalf("failed creates must not add tracks, got %d", rec.Tracks())
	}
}

func TestRecordingWritesSMF(t *testing.T) {
	rec := NewRecording(44100)
	var now int64
	rec.SetClock(func() int64 { return now })
	inner := &nopFactory{}
	f := rec.Wrap(inner)
	r, err := f.CreateGeneralMIDI(render.Patch{Program: 5}, "lead", 44100, 2, 1, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	now = 22050
	r.NoteOn(60, 100)
	now = 44100
	r.NoteOff(60)
	if len(inner.made[0].ons) != 1 {
		t.Fatalf("messages should reach the wrapped renderer")
	}

	var buf bytes.Buffer
	if err := rec.WriteSMF(&buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	sm, err := smf.ReadFrom(&buf)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if len(sm.Tracks) != 2 {
		t.Fatalf("expected tempo track plus 1, got %d", len(sm.Tracks))
	}
	if sm.TimeFormat.(smf.MetricTicks) != recordTicks {
		t.Fatalf("unexpected time format %v", sm.TimeFormat)
	}
	var tick uint32
	var onAt, offAt int64 = -1, -1
	for _, ev := range sm.Tracks[1] {
		tick += ev.Delta
		var ch, key, vel uint8
		msg := midi.Message(ev.Message)
		switch {
		case msg.GetNoteOn(&ch, &key, &vel):
			onAt = int64(tick)
		case msg.GetNoteOff(&ch, &key, &vel):
			offAt = int64(tick)
		}
	}
	if onAt != 960 || offAt != 1920 {
		t.Fatalf("note on/off at ticks %d/%d, want 960/1920", onAt, offAt)
	}
}
