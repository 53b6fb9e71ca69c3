// Package synth builds the renderers a band assigns to performance
// channels.
package synth

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/cbegin/dmperf-go/internal/fm"
	"github.com/cbegin/dmperf-go/internal/render"
)

var (
	ErrNoCollection = errors.New("synth: no collection")
	ErrSoundFont    = errors.New("synth: invalid soundfont")
)

type Option func(*Factory)

// WithGeneralMIDISoundFont renders general MIDI instruments from a SoundFont
// instead of the built-in FM engine.
func WithGeneralMIDISoundFont(sf *meltysynth.SoundFont) Option {
	return func(f *Factory) { f.gm = sf }
}

func WithFMParams(p fm.Params) Option {
	return func(f *Factory) { f.fmParams = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// Factory implements render.Factory. Parsed collections are cached by name.
type Factory struct {
	gm       *meltysynth.SoundFont
	fmParams fm.Params
	logger   *slog.Logger

	mu    sync.Mutex
	fonts map[string]*meltysynth.SoundFont
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		fmParams: fm.DefaultParams(),
		logger:   slog.New(slog.DiscardHandler),
		fonts:    make(map[string]*meltysynth.SoundFont),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ParseSoundFont decodes SoundFont 2 data.
func ParseSoundFont(data []byte) (*meltysynth.SoundFont, error) {
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSoundFont, err)
	}
	return sf, nil
}

func (f *Factory) CreateFromCollection(patch render.Patch, bandID string, coll *render.Collection, sampleRate, channels int, volume, pan float32) (render.Renderer, error) {
	if coll == nil {
		return nil, fmt.Errorf("%w: band %q", ErrNoCollection, bandID)
	}
	sf, err := f.soundFont(coll)
	if err != nil {
		return nil, err
	}
	return NewSoundFontRenderer(sf, patch, sampleRate, channels, volume, pan)
}

func (f *Factory) CreateGeneralMIDI(patch render.Patch, bandID string, sampleRate, channels int, volume, pan float32) (render.Renderer, error) {
	if f.gm != nil {
		return NewSoundFontRenderer(f.gm, patch, sampleRate, channels, volume, pan)
	}
	e := fm.New(sampleRate, channels, f.fmParams)
	e.SetDrums(patch.Drums)
	e.ProgramChange(patch.BankLow, patch.BankHigh, patch.Program)
	e.SetVolume(float64(volume))
	e.SetPan(float64(pan))
	f.logger.Debug("fm instrument", "band", bandID, "program", patch.Program, "drums", patch.Drums)
	return e, nil
}

func (f *Factory) soundFont(coll *render.Collection) (*meltysynth.SoundFont, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sf, ok := f.fonts[coll.Name]; ok && coll.Name != "" {
		return sf, nil
	}
	sf, err := ParseSoundFont(coll.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", coll.Name, err)
	}
	if coll.Name != "" {
		f.fonts[coll.Name] = sf
	}
	f.logger.Debug("soundfont loaded", "name", coll.Name, "bytes", len(coll.Data))
	return sf, nil
}
