// Package dmperf plays interactive music segments: it compiles segments and
// styles into event streams, performs them against synthesizer channels and
// streams the mix to the audio device or renders it offline.
package dmperf

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	intaudio "github.com/cbegin/dmperf-go/internal/audio"
	"github.com/cbegin/dmperf-go/internal/content"
	intfx "github.com/cbegin/dmperf-go/internal/effects"
	intfm "github.com/cbegin/dmperf-go/internal/fm"
	"github.com/cbegin/dmperf-go/internal/model"
	"github.com/cbegin/dmperf-go/internal/pattern"
	"github.com/cbegin/dmperf-go/internal/render"
	intseq "github.com/cbegin/dmperf-go/internal/sequencer"
	"github.com/cbegin/dmperf-go/internal/synth"
)

// Re-exported so callers do not need the internal packages.
type (
	Segment = intseq.Segment
	Timing  = intseq.Timing
)

const (
	TimingImmediate = intseq.TimingImmediate
	TimingGrid      = intseq.TimingGrid
	TimingBeat      = intseq.TimingBeat
	TimingMeasure   = intseq.TimingMeasure
)

// ParseTiming accepts immediate, grid, beat and measure (or bar).
func ParseTiming(s string) (Timing, error) { return intseq.ParseTiming(s) }

type EventKind int

const (
	EventSegmentStart EventKind = iota
	EventSegmentLoop
	EventSegmentEnd
	EventPlaybackEnded
)

func (k EventKind) String() string {
	switch k {
	case EventSegmentStart:
		return "start"
	case EventSegmentLoop:
		return "loop"
	case EventSegmentEnd:
		return "end"
	case EventPlaybackEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// PlaybackEvent is delivered on the channel returned by Watch.
type PlaybackEvent struct {
	Kind    EventKind
	Segment string
	Pulse   int64
	Sample  int64
}

type PlayerOption func(*playerConfig)

type playerConfig struct {
	loader     model.Loader
	decoder    model.Decoder
	logger     *slog.Logger
	soundFont  []byte
	fmParams   intfm.Params
	rnd        pattern.Rand
	reverbWet  float32
	chorus     bool
	recording  *synth.Recording
	sampleTap  func([]float32)
	offline    bool
	bufferSize time.Duration
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		decoder:   content.JSONDecoder{},
		logger:    slog.New(slog.DiscardHandler),
		fmParams:  intfm.DefaultParams(),
		reverbWet: 0.18,
	}
}

func WithLoader(l model.Loader) PlayerOption {
	return func(cfg *playerConfig) { cfg.loader = l }
}

// WithDirectory loads segments, styles and collections from dir.
func WithDirectory(dir string) PlayerOption {
	return func(cfg *playerConfig) { cfg.loader = content.NewDirLoader(dir) }
}

func WithDecoder(d model.Decoder) PlayerOption {
	return func(cfg *playerConfig) { cfg.decoder = d }
}

func WithLogger(l *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) { cfg.logger = l }
}

// WithSoundFont renders general MIDI instruments from SoundFont 2 data
// instead of the built-in FM synthesizer.
func WithSoundFont(data []byte) PlayerOption {
	return func(cfg *playerConfig) { cfg.soundFont = data }
}

func WithFMParams(p intfm.Params) PlayerOption {
	return func(cfg *playerConfig) { cfg.fmParams = p }
}

// WithSeed makes pattern selection, variations and humanisation
// reproducible.
func WithSeed(seed int64) PlayerOption {
	return func(cfg *playerConfig) { cfg.rnd = rand.New(rand.NewSource(seed)) }
}

// WithReverb sets the master reverb mix; 0 disables it.
func WithReverb(wet float32) PlayerOption {
	return func(cfg *playerConfig) { cfg.reverbWet = wet }
}

func WithChorus(enabled bool) PlayerOption {
	return func(cfg *playerConfig) { cfg.chorus = enabled }
}

// WithRecording captures every channel message into rec.
func WithRecording(rec *synth.Recording) PlayerOption {
	return func(cfg *playerConfig) { cfg.recording = rec }
}

// WithSampleTap installs a callback invoked with each mixed stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) { cfg.sampleTap = tap }
}

// WithOffline keeps the player off the audio device; audio is pulled with
// RenderFrames.
func WithOffline() PlayerOption {
	return func(cfg *playerConfig) { cfg.offline = true }
}

func WithBufferSize(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) { cfg.bufferSize = d }
}

type Player struct {
	mu         sync.Mutex
	sampleRate int
	perf       *intseq.Performance
	bus        *bus
	masterEQ   *intfx.EQ5Band
	reverb     *intfx.Reverb
	logger     *slog.Logger
	offline    bool
	bufferSize time.Duration
	audio      *intaudio.Output
	done       chan struct{}
	eventCh    chan PlaybackEvent
	eventChMu  sync.Mutex
}

// bus is the audio source: it renders the performance and runs the master
// effects over the mix.
type bus struct {
	perf      *intseq.Performance
	effects   *intfx.Chain
	volume    atomic.Uint32
	sampleTap func([]float32)
	finished  atomic.Bool
}

func (b *bus) Process(dst []float32) {
	frames := len(dst) / intaudio.Channels
	b.perf.RenderBlock(dst, frames, math.Float32frombits(b.volume.Load()))
	b.effects.Process(dst[:frames*intaudio.Channels], intaudio.Channels)
	if b.sampleTap != nil {
		b.sampleTap(dst)
	}
}

func (b *bus) Finished() bool { return b.finished.Load() }

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("dmperf: sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	fopts := []synth.Option{synth.WithFMParams(cfg.fmParams), synth.WithLogger(cfg.logger)}
	if cfg.soundFont != nil {
		sf, err := synth.ParseSoundFont(cfg.soundFont)
		if err != nil {
			return nil, fmt.Errorf("dmperf: %w", err)
		}
		fopts = append(fopts, synth.WithGeneralMIDISoundFont(sf))
	}
	var factory render.Factory = synth.NewFactory(fopts...)
	if cfg.recording != nil {
		factory = cfg.recording.Wrap(factory)
	}

	p := &Player{
		sampleRate: sampleRate,
		masterEQ:   intfx.NewEQ5Band(sampleRate),
		reverb:     intfx.NewReverb(sampleRate, 0.6, 0.72, 0.3, cfg.reverbWet),
		logger:     cfg.logger,
		offline:    cfg.offline,
		bufferSize: cfg.bufferSize,
	}
	p.perf = intseq.NewWithOptions(sampleRate, intseq.Options{
		Channels: intaudio.Channels,
		Factory:  factory,
		Loader:   cfg.loader,
		Decoder:  cfg.decoder,
		Rand:     cfg.rnd,
		Logger:   cfg.logger,
		OnNotify: p.onNotify,
	})
	if cfg.recording != nil {
		cfg.recording.SetClock(p.perf.Clock)
	}

	chain := intfx.NewChain(p.masterEQ)
	if cfg.chorus {
		chain.Add(intfx.NewChorus(sampleRate, 15, 0.2, 3, 0.8, 0.3))
	}
	chain.Add(p.reverb)
	chain.Add(intfx.NewLimiter(sampleRate, -0.5, 1, 80))
	p.bus = &bus{perf: p.perf, effects: chain, sampleTap: cfg.sampleTap}
	p.bus.volume.Store(math.Float32bits(1))
	return p, nil
}

// SetLoader replaces the resource loader used by later loads.
func (p *Player) SetLoader(l model.Loader) { p.perf.SetLoader(l) }

// Compile turns a segment description into a playable segment.
func (p *Player) Compile(src *model.Segment) (*Segment, error) { return p.perf.Compile(src) }

// LoadSegment loads, decodes and compiles the named segment resource.
func (p *Player) LoadSegment(name string) (*Segment, error) { return p.perf.LoadSegment(name) }

// Play starts seg, or stages it behind the current segment at the next
// timing boundary.
func (p *Player) Play(seg *Segment, timing Timing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.perf.Play(seg, timing); err != nil {
		return err
	}
	if p.done == nil {
		p.done = make(chan struct{})
	}
	if p.offline {
		return nil
	}
	if p.audio != nil && !p.bus.Finished() {
		return nil
	}
	p.bus.finished.Store(false)
	out, err := intaudio.NewOutput(p.sampleRate, p.bus, p.bufferSize)
	if err != nil {
		return err
	}
	if p.audio != nil {
		_ = p.audio.Close()
	}
	p.audio = out
	p.audio.Play()
	p.logger.Debug("audio output opened", "sampleRate", p.sampleRate, "buffer", p.bufferSize)
	return nil
}

// PlayFile loads the named segment and plays it.
func (p *Player) PlayFile(name string, timing Timing) (*Segment, error) {
	seg, err := p.LoadSegment(name)
	if err != nil {
		return nil, err
	}
	return seg, p.Play(seg, timing)
}

func (p *Player) onNotify(n intseq.Notification) {
	ev := PlaybackEvent{Segment: n.Segment.Name, Pulse: n.Pulse, Sample: n.Sample}
	switch n.Kind {
	case intseq.NotifySegmentStart:
		ev.Kind = EventSegmentStart
	case intseq.NotifySegmentLoop:
		ev.Kind = EventSegmentLoop
	case intseq.NotifySegmentEnd:
		ev.Kind = EventSegmentEnd
	}
	p.sendEvent(ev)
	if n.Kind == intseq.NotifySegmentEnd && !p.perf.Playing() {
		p.bus.finished.Store(true)
		p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, Segment: ev.Segment, Pulse: n.Pulse, Sample: n.Sample})
		p.signalDone()
	}
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

func (p *Player) signalDone() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
	}
}

// Stop ends playback and releases the audio device.
func (p *Player) Stop() error {
	p.perf.Stop()
	p.mu.Lock()
	var err error
	if p.audio != nil {
		err = p.audio.Close()
		p.audio = nil
	}
	done := p.done
	p.done = nil
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, Sample: p.perf.Clock()})
	if done != nil {
		close(done)
	}
	return err
}

// Wait blocks until playback runs out of segments or is stopped. Looping
// segments never run out. Wait returns immediately when nothing is playing.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives segment start, loop and end events
// and a final EventPlaybackEnded. The channel is buffered (cap 8) and events
// are dropped when it is full. Only the most recent Watch channel receives
// events.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// Playing reports whether a segment is current.
func (p *Player) Playing() bool { return p.perf.Playing() }

// Tempo returns the current tempo in BPM.
func (p *Player) Tempo() float64 { return p.perf.Tempo() }

// Time returns the performance time in pulses.
func (p *Player) Time() int64 { return p.perf.Time() }

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	p.bus.volume.Store(math.Float32bits(float32(max(volume, 0))))
}

func (p *Player) MasterVolume() float64 {
	return float64(math.Float32frombits(p.bus.volume.Load()))
}

// SetReverb sets the master reverb mix.
func (p *Player) SetReverb(wet float32) { p.reverb.SetWet(wet) }

// SetEQBand sets the gain for a master EQ band (0-4). 1.0 = unity.
// Band frequencies: 0=<200Hz, 1=200-800Hz, 2=800-2.5kHz, 3=2.5-8kHz, 4=>8kHz.
func (p *Player) SetEQBand(band int, gain float32) {
	p.masterEQ.SetGain(band, gain)
}

func (p *Player) EQBand(band int) float32 {
	return p.masterEQ.Gain(band)
}

// PlaybackPosition returns what the listener hears right now, in samples.
// Returns 0 if the device is not open.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	return int64(a.Position().Seconds() * float64(p.sampleRate))
}
