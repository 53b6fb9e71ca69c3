// Package sequencer compiles segments and plays them against a set of
// channel renderers in virtual time.
package sequencer

import (
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/dmperf-go/internal/event"
	"github.com/cbegin/dmperf-go/internal/model"
	"github.com/cbegin/dmperf-go/internal/pattern"
	"github.com/cbegin/dmperf-go/internal/render"
)

const (
	DefaultTempo         = 120
	DefaultGrooveLevel   = 62
	defaultMaxChannels   = 64
	defaultQueueCapacity = 1024
)

type Options struct {
	// Channels is the interleaved channel count of rendered audio (default 2).
	Channels int
	Factory  render.Factory
	Loader   model.Loader
	Decoder  model.Decoder
	// Rand drives pattern selection, variations and humanisation. It is only
	// used from the render goroutine. Defaults to a time-seeded source.
	Rand     pattern.Rand
	Logger   *slog.Logger
	OnNotify func(Notification)
	// MaxChannels and QueueCapacity size storage up front so rendering does
	// not allocate.
	MaxChannels   int
	QueueCapacity int
}

type slot struct {
	channel  uint32
	renderer render.Renderer
}

// Performance is the playing context: it owns virtual time, the channel
// table and the event queues. RenderBlock must be called from a single
// goroutine; Play, Compile and the queries may be called from any other.
type Performance struct {
	sampleRate int
	channels   int
	factory    render.Factory
	decoder    model.Decoder
	logger     *slog.Logger
	onNotify   func(Notification)

	loaderMu sync.RWMutex
	loader   model.Loader

	mu           sync.Mutex
	segQueue     *event.Queue
	patQueue     *event.Queue
	primary      *Segment
	next         *Segment
	nextTiming   Timing
	nextAt       int64
	pendingStart bool
	stopPending  bool

	// Owned by the render goroutine.
	rnd           pattern.Rand
	selector      *pattern.Selector
	tempo         float64
	groove        uint8
	chord         *model.Chord
	signature     model.TimeSignature
	slots         []slot
	clock         int64
	anchorSample  int64
	anchorPulse   int64
	segStart      int64
	repeatsLeft   uint32
	lockVariation [256]int8

	now       atomic.Int64
	samples   atomic.Int64
	tempoBits atomic.Uint64
}

func New(sampleRate int) *Performance {
	return NewWithOptions(sampleRate, Options{})
}

func NewWithOptions(sampleRate int, opts Options) *Performance {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if opts.Channels <= 0 {
		opts.Channels = 2
	}
	if opts.MaxChannels <= 0 {
		opts.MaxChannels = defaultMaxChannels
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	seq := &event.Sequence{}
	p := &Performance{
		sampleRate: sampleRate,
		channels:   opts.Channels,
		factory:    opts.Factory,
		decoder:    opts.Decoder,
		logger:     opts.Logger,
		onNotify:   opts.OnNotify,
		loader:     opts.Loader,
		segQueue:   event.NewQueue(opts.QueueCapacity, seq),
		patQueue:   event.NewQueue(opts.QueueCapacity, seq),
		rnd:        opts.Rand,
		selector:   pattern.NewSelector(opts.Rand),
		tempo:      DefaultTempo,
		groove:     DefaultGrooveLevel,
		signature:  model.CommonTime,
		slots:      make([]slot, 0, opts.MaxChannels),
	}
	p.tempoBits.Store(math.Float64bits(DefaultTempo))
	return p
}

// SetLoader replaces the resource loader used by later compiles.
func (p *Performance) SetLoader(l model.Loader) {
	p.loaderMu.Lock()
	p.loader = l
	p.loaderMu.Unlock()
}

func (p *Performance) currentLoader() model.Loader {
	p.loaderMu.RLock()
	defer p.loaderMu.RUnlock()
	return p.loader
}

// Play starts seg when idle. While playing, seg is staged to replace the
// current segment at the next timing boundary; replaying the current
// segment is a no-op.
func (p *Performance) Play(seg *Segment, timing Timing) error {
	if seg == nil {
		return ErrNilSegment
	}
	p.mu.Lock()
	switch {
	case p.primary == nil:
		p.primary = seg
		p.next = nil
		p.pendingStart = true
		p.mu.Unlock()
		p.logger.Info("segment queued", "id", seg.ID, "name", seg.Name)
	case sameSegment(p.primary, seg):
		p.mu.Unlock()
		p.logger.Debug("segment already playing", "id", seg.ID, "name", seg.Name)
	default:
		p.next = seg
		p.nextTiming = timing
		p.mu.Unlock()
		p.logger.Info("segment staged", "id", seg.ID, "name", seg.Name, "timing", timing.String())
	}
	return nil
}

// PlaySegment compiles src and plays it.
func (p *Performance) PlaySegment(src *model.Segment, timing Timing) (*Segment, error) {
	seg, err := p.Compile(src)
	if err != nil {
		return nil, err
	}
	return seg, p.Play(seg, timing)
}

// Stop discards the playing and staged segments. Sounding notes are
// released on the next render call.
func (p *Performance) Stop() {
	p.mu.Lock()
	p.primary = nil
	p.next = nil
	p.pendingStart = false
	p.stopPending = true
	p.segQueue.Reset()
	p.patQueue.Reset()
	p.mu.Unlock()
}

// Playing reports whether a segment is current.
func (p *Performance) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.primary != nil
}

// Primary returns the current segment, or nil when idle.
func (p *Performance) Primary() *Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.primary
}

// Staged returns the segment waiting to replace the current one.
func (p *Performance) Staged() (*Segment, Timing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next, p.nextTiming
}

// Time returns the current virtual time in pulses.
func (p *Performance) Time() int64 { return p.now.Load() }

// Clock returns the number of frames rendered so far.
func (p *Performance) Clock() int64 { return p.samples.Load() }

// Tempo returns the current tempo in BPM.
func (p *Performance) Tempo() float64 { return math.Float64frombits(p.tempoBits.Load()) }

func (p *Performance) SampleRate() int { return p.sampleRate }

// Channels returns the interleaved channel count of rendered audio.
func (p *Performance) Channels() int { return p.channels }

// Renderer returns the renderer bound to channel. It reads render-goroutine
// state and must not race with RenderBlock.
func (p *Performance) Renderer(channel uint32) (render.Renderer, bool) {
	if i, ok := p.findSlot(channel); ok {
		return p.slots[i].renderer, true
	}
	return nil, false
}

// ChannelCount returns the number of channels holding a renderer. It reads
// render-goroutine state and must not race with RenderBlock.
func (p *Performance) ChannelCount() int { return len(p.slots) }

func (p *Performance) findSlot(channel uint32) (int, bool) {
	return slices.BinarySearchFunc(p.slots, channel, func(s slot, ch uint32) int {
		switch {
		case s.channel < ch:
			return -1
		case s.channel > ch:
			return 1
		default:
			return 0
		}
	})
}

func (p *Performance) bind(channel uint32, r render.Renderer) {
	i, ok := p.findSlot(channel)
	switch {
	case ok && r == nil:
		p.slots = slices.Delete(p.slots, i, i+1)
	case ok:
		p.slots[i].renderer = r
	case r != nil:
		p.slots = slices.Insert(p.slots, i, slot{channel: channel, renderer: r})
	}
}

func (p *Performance) allNotesOff() {
	for _, s := range p.slots {
		s.renderer.AllNotesOff()
	}
}

func (p *Performance) notify(kind NotificationKind, seg *Segment, pulse int64) {
	if p.onNotify == nil || seg == nil {
		return
	}
	p.onNotify(Notification{Kind: kind, Segment: seg, Pulse: pulse, Sample: p.clock})
}
