package dmperf

import (
	"bytes"
	"testing"

	"github.com/cbegin/dmperf-go/internal/content"
	"github.com/cbegin/dmperf-go/internal/model"
	"github.com/cbegin/dmperf-go/internal/pitch"
	"github.com/cbegin/dmperf-go/internal/synth"
)

const (
	cMajorTriad = 0x91
	cMajorScale = 0xAB5
)

// bassSegment plays one bass note a beat into a single measure.
func bassSegment() *model.Segment {
	return &model.Segment{
		ID:     "bass",
		Name:   "bass",
		Length: 3072,
		Chords: []model.Chord{{
			Name:      "C",
			Subchords: []model.Subchord{{ChordMask: cMajorTriad, ScaleMask: cMajorScale, Levels: 1}},
		}},
		Bands: []model.BandItem{{Band: model.Band{
			Name:        "combo",
			Instruments: []model.Instrument{{Channel: 0, Patch: 33, Volume: 100, Pan: 64}},
		}}},
		Styles: []model.StyleRef{{Name: "test", Style: &model.Style{
			Name:          "test",
			TimeSignature: model.CommonTime,
			Tempo:         120,
			Parts: []model.Part{{
				ID:       "bass",
				Measures: 1,
				Notes: []model.Note{{
					GridStart:  4,
					Duration:   768,
					MusicValue: pitch.Encode(5, 1, 0, 0),
					Velocity:   100,
				}},
			}},
			Patterns: []model.Pattern{{
				Name:         "main",
				GrooveBottom: 1,
				GrooveTop:    100,
				Measures:     1,
				PartRefs:     []model.PartRef{{PartID: "bass", Channel: 0}},
			}},
		}}},
	}
}

func TestPlayerMasterVolumeRuntimeAPI(t *testing.T) {
	pl, err := NewPlayer(48000, WithOffline())
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if got := pl.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	pl.SetMasterVolume(0.25)
	if got := pl.MasterVolume(); got != 0.25 {
		t.Fatalf("master volume = %v, want 0.25", got)
	}
	pl.SetMasterVolume(-2)
	if got := pl.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
}

func TestNewPlayerRejectsBadInput(t *testing.T) {
	if _, err := NewPlayer(0); err == nil {
		t.Fatalf("expected an error for a zero sample rate")
	}
	if _, err := NewPlayer(44100, WithSoundFont([]byte("not a soundfont"))); err == nil {
		t.Fatalf("expected an error for invalid soundfont data")
	}
}

func TestWatchReportsSegmentLifecycle(t *testing.T) {
	pl, err := NewPlayer(44100, WithOffline(), WithSeed(1))
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	events := pl.Watch()
	seg, err := pl.Compile(&model.Segment{ID: "a", Name: "a", Length: 3072})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if err := pl.Play(seg, TimingImmediate); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	RenderFrames(pl, 88200+1024)
	pl.Wait()

	want := []EventKind{EventSegmentStart, EventSegmentEnd, EventPlaybackEnded}
	for i, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind {
				t.Fatalf("event %d: got %v, want %v", i, ev.Kind, kind)
			}
			if kind == EventSegmentEnd && ev.Sample != 88200 {
				t.Fatalf("segment should end at sample 88200, got %d", ev.Sample)
			}
		default:
			t.Fatalf("missing event %d (%v)", i, kind)
		}
	}
	if pl.Playing() {
		t.Fatalf("player should be idle")
	}
}

func TestPlayFileLoadsThroughLoader(t *testing.T) {
	loader := content.NewMapLoader()
	loader.Add("Intro.sgt", []byte(`{"id": "intro", "length": 768, "tempos": [{"time": 0, "bpm": 90}]}`))
	pl, err := NewPlayer(44100, WithOffline(), WithLoader(loader))
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	seg, err := pl.PlayFile("intro.sgt", TimingMeasure)
	if err != nil {
		t.Fatalf("play file failed: %v", err)
	}
	if seg.ID != "intro" || !pl.Playing() {
		t.Fatalf("unexpected segment %q, playing %v", seg.ID, pl.Playing())
	}
	RenderFrames(pl, 16)
	if pl.Tempo() != 90 {
		t.Fatalf("tempo event should apply at the start, got %f", pl.Tempo())
	}
	if _, err := pl.PlayFile("missing.sgt", TimingImmediate); err == nil {
		t.Fatalf("expected an error for a missing segment")
	}
}

func TestRenderSegmentIsQuietUntilTheFirstNote(t *testing.T) {
	out, err := RenderSegment(bassSegment(), 44100, 1, WithSeed(7))
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for i, s := range out[:22050*2] {
		if s != 0 {
			t.Fatalf("sample %d before the first note is %f", i, s)
		}
	}
	loud := false
	for _, s := range out[22050*2:] {
		if s != 0 {
			loud = true
			break
		}
	}
	if !loud {
		t.Fatalf("expected audio after the first note")
	}
}

func TestRecordingCapturesChannels(t *testing.T) {
	rec := synth.NewRecording(44100)
	if _, err := RenderSegment(bassSegment(), 44100, 1, WithSeed(7), WithRecording(rec)); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if rec.Tracks() != 1 {
		t.Fatalf("expected one recorded track, got %d", rec.Tracks())
	}
	var buf bytes.Buffer
	if err := rec.WriteSMF(&buf); err != nil {
		t.Fatalf("write smf failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("MThd")) {
		t.Fatalf("output is not a standard MIDI file")
	}
}

func TestEQBandRuntimeAPI(t *testing.T) {
	pl, err := NewPlayer(44100, WithOffline())
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	pl.SetEQBand(2, 0.5)
	if got := pl.EQBand(2); got != 0.5 {
		t.Fatalf("EQ band 2 = %v, want 0.5", got)
	}
	if got := pl.EQBand(7); got != 1 {
		t.Fatalf("out of range band should read unity, got %v", got)
	}
	pl.SetReverb(0)
	if pl.PlaybackPosition() != 0 {
		t.Fatalf("offline player has no device position")
	}
}

func TestStopReleasesWaiters(t *testing.T) {
	pl, err := NewPlayer(44100, WithOffline())
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	seg, err := pl.Compile(&model.Segment{ID: "loop", Name: "loop", Length: 768, Repeats: model.RepeatInfinite})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if err := pl.Play(seg, TimingImmediate); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	RenderFrames(pl, 4096)
	if err := pl.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	pl.Wait()
	if pl.Playing() {
		t.Fatalf("stopped player should be idle")
	}
}
