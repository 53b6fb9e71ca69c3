// Package fm is a small two-operator FM instrument used as the built-in
// general MIDI renderer.
package fm

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/dmperf-go/internal/lfo"
)

const twoPi = math.Pi * 2

type Params struct {
	Polyphony   int
	CarrierMul  float64
	ModMul      float64
	ModIndex    float64
	AttackSec   float64
	DecaySec    float64
	SustainLvl  float64
	ReleaseSec  float64
	MasterGain  float64
	VelocityAmp float64
	LPFCutoff   float64 // lowpass cutoff in Hz (0 = disabled)
	BendRange   float64 // semitones at full pitch bend
	VibratoMax  float64 // semitones of vibrato at full mod wheel
	VibratoRate float64
}

func DefaultParams() Params {
	return Params{
		Polyphony:   16,
		CarrierMul:  1.0,
		ModMul:      2.0,
		ModIndex:    1.6,
		AttackSec:   0.005,
		DecaySec:    0.12,
		SustainLvl:  0.75,
		ReleaseSec:  0.2,
		MasterGain:  0.3,
		VelocityAmp: 0.8,
		LPFCutoff:   12000,
		BendRange:   2,
		VibratoMax:  0.5,
		VibratoRate: 5.5,
	}
}

type waveform int

const (
	waveSine waveform = iota
	waveSaw
	waveTriangle
	waveSquare
	waveNoise
)

// preset shapes a general MIDI instrument family.
type preset struct {
	wave     waveform
	modMul   float64
	modIndex float64
	attack   float64
	decay    float64
	sustain  float64
	release  float64
}

// familyPresets is indexed by general MIDI program / 8.
var familyPresets = [16]preset{
	{waveSine, 1, 1.8, 0.002, 0.9, 0.25, 0.3},      // piano
	{waveSine, 3.5, 2.4, 0.001, 0.5, 0.0, 0.4},     // chromatic percussion
	{waveSine, 1, 0.6, 0.01, 0.05, 0.9, 0.08},      // organ
	{waveTriangle, 2, 1.2, 0.002, 0.6, 0.2, 0.25},  // guitar
	{waveSine, 0.5, 1.4, 0.003, 0.3, 0.6, 0.12},    // bass
	{waveSaw, 1, 0.4, 0.12, 0.2, 0.85, 0.4},        // strings
	{waveSaw, 1, 0.3, 0.2, 0.3, 0.8, 0.6},          // ensemble
	{waveSaw, 1, 2.2, 0.03, 0.15, 0.8, 0.15},       // brass
	{waveSquare, 2, 0.8, 0.02, 0.1, 0.85, 0.1},     // reed
	{waveSine, 2, 0.3, 0.04, 0.1, 0.9, 0.15},       // pipe
	{waveSquare, 1, 1.0, 0.005, 0.2, 0.7, 0.15},    // synth lead
	{waveSaw, 0.5, 0.5, 0.4, 0.5, 0.8, 1.0},        // synth pad
	{waveTriangle, 7, 3.0, 0.1, 0.8, 0.4, 0.8},     // synth effects
	{waveTriangle, 3, 1.5, 0.002, 0.4, 0.3, 0.3},   // ethnic
	{waveSine, 1.41, 3.0, 0.001, 0.25, 0.0, 0.2},   // percussive
	{waveNoise, 1, 0.0, 0.01, 0.4, 0.5, 0.4},       // sound effects
}

var drumPreset = preset{waveNoise, 1, 0, 0.001, 0.15, 0.0, 0.08}

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type operator struct {
	phase    float64
	env      float64
	envState envState
	mul      float64
	ar       float64
	dr       float64
	sl       float64
	rr       float64
}

type voice struct {
	active   bool
	held     bool
	note     uint8
	freq     float64
	velocity float64
	carrier  operator
	mod      operator
}

// Engine renders one performance channel.
type Engine struct {
	sampleRate float64
	channels   int
	params     Params
	preset     preset
	voices     []voice
	masterGain uint64

	volume     float64
	expression float64
	panL       float64
	panR       float64
	bendRatio  float64
	sustain    bool
	drums      bool
	vibrato    *lfo.LFO
	noise      uint32

	lpfL     float64
	lpfR     float64
	lpfAlpha float64
}

func New(sampleRate, channels int, params Params) *Engine {
	if params.Polyphony <= 0 {
		params.Polyphony = 16
	}
	if channels <= 0 {
		channels = 2
	}
	e := &Engine{
		sampleRate: float64(sampleRate),
		channels:   channels,
		params:     params,
		preset:     familyPresets[0],
		voices:     make([]voice, params.Polyphony),
		masterGain: math.Float64bits(params.MasterGain),
		volume:     100.0 / 127,
		expression: 1,
		bendRatio:  1,
		vibrato:    lfo.New(params.VibratoRate, lfo.ShapeSine),
		noise:      0x7FFF,
	}
	e.SetPan(0)
	if params.LPFCutoff > 0 && params.LPFCutoff < float64(sampleRate)/2 {
		rc := 1.0 / (twoPi * params.LPFCutoff)
		dt := 1.0 / float64(sampleRate)
		e.lpfAlpha = dt / (rc + dt)
	}
	return e
}

// SetDrums switches the engine to unpitched percussion.
func (e *Engine) SetDrums(on bool) {
	e.drums = on
	if on {
		e.preset = drumPreset
	}
}

// SetPan places the channel with a constant-power law; pan is -1..1.
func (e *Engine) SetPan(pan float64) {
	angle := (clamp(pan, -1, 1) + 1) * math.Pi / 4
	e.panL = math.Cos(angle)
	e.panR = math.Sin(angle)
}

// SetVolume sets channel volume in 0..1.
func (e *Engine) SetVolume(v float64) { e.volume = clamp(v, 0, 1) }

func (e *Engine) NoteOn(note, velocity uint8) {
	if velocity == 0 {
		e.NoteOff(note)
		return
	}
	p := e.preset
	idx := e.stealVoice()
	e.voices[idx] = voice{
		active:   true,
		note:     note,
		freq:     midiToFreq(int(note)) * e.params.CarrierMul,
		velocity: 1 - e.params.VelocityAmp + e.params.VelocityAmp*float64(min(velocity, 127))/127,
		carrier: operator{
			envState: envAttack,
			mul:      1,
			ar:       max(p.attack, e.params.AttackSec),
			dr:       p.decay,
			sl:       p.sustain,
			rr:       max(p.release, e.params.ReleaseSec*0.25),
		},
		mod: operator{
			envState: envAttack,
			mul:      p.modMul,
			ar:       p.attack,
			dr:       e.params.DecaySec,
			sl:       e.params.SustainLvl,
			rr:       p.release,
		},
	}
}

func (e *Engine) NoteOff(note uint8) {
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active || v.note != note || v.carrier.envState == envRelease {
			continue
		}
		if e.sustain {
			v.held = true
			continue
		}
		release(v)
	}
}

func release(v *voice) {
	v.held = false
	v.carrier.envState = envRelease
	v.mod.envState = envRelease
}

func (e *Engine) ControlChange(controller, value uint8) {
	value = min(value, 127)
	switch controller {
	case 1:
		e.vibrato.SetModWheel(value, e.params.VibratoMax)
	case 7:
		e.volume = float64(value) / 127
	case 10:
		e.SetPan((float64(value) - 64) / 64)
	case 11:
		e.expression = float64(value) / 127
	case 64:
		e.sustain = value >= 64
		if !e.sustain {
			for i := range e.voices {
				if e.voices[i].held {
					release(&e.voices[i])
				}
			}
		}
	case 120:
		for i := range e.voices {
			e.voices[i].active = false
		}
	case 123:
		e.AllNotesOff()
	}
}

func (e *Engine) ProgramChange(_, _, program uint8) {
	if e.drums {
		return
	}
	e.preset = familyPresets[min(program, 127)/8]
}

func (e *Engine) PitchBend(value int16) {
	semis := float64(value) / 8192 * e.params.BendRange
	e.bendRatio = math.Pow(2, semis/12)
}

func (e *Engine) AllNotesOff() {
	e.sustain = false
	for i := range e.voices {
		if e.voices[i].active {
			release(&e.voices[i])
		}
	}
}

func (e *Engine) Render(dst []float32, frames int, volume float32, mix bool) {
	frames = min(frames, len(dst)/e.channels)
	gain := e.masterGainValue() * e.volume * e.expression * float64(volume)
	for f := 0; f < frames; f++ {
		ratio := e.bendRatio
		if e.vibrato.Active() {
			ratio *= math.Pow(2, e.vibrato.Next(e.sampleRate)/12)
		}
		var s float64
		for i := range e.voices {
			if e.voices[i].active {
				s += e.renderVoice(&e.voices[i], ratio)
			}
		}
		l, r := s*e.panL*gain, s*e.panR*gain
		if e.lpfAlpha > 0 {
			e.lpfL += e.lpfAlpha * (l - e.lpfL)
			e.lpfR += e.lpfAlpha * (r - e.lpfR)
			l, r = e.lpfL, e.lpfR
		}
		e.write(dst[f*e.channels:(f+1)*e.channels], float32(l), float32(r), mix)
	}
}

func (e *Engine) write(frame []float32, l, r float32, mix bool) {
	if len(frame) == 1 {
		m := (l + r) * 0.5
		if mix {
			frame[0] += m
		} else {
			frame[0] = m
		}
		return
	}
	if mix {
		frame[0] += l
		frame[1] += r
		return
	}
	frame[0], frame[1] = l, r
	clear(frame[2:])
}

func (e *Engine) renderVoice(v *voice, ratio float64) float64 {
	advanceOpEnv(&v.carrier, e.sampleRate)
	advanceOpEnv(&v.mod, e.sampleRate)
	if v.carrier.envState == envOff {
		v.active = false
		return 0
	}
	step := twoPi * v.freq * ratio / e.sampleRate
	v.mod.phase += step * v.mod.mul
	v.carrier.phase += step
	if v.carrier.phase > twoPi {
		v.carrier.phase -= twoPi
	}
	if v.mod.phase > twoPi {
		v.mod.phase -= twoPi * math.Floor(v.mod.phase/twoPi)
	}
	m := math.Sin(v.mod.phase) * v.mod.env * e.preset.modIndex * e.params.ModIndex / 1.6
	return e.waveformSample(v.carrier.phase+m, e.preset.wave) * v.carrier.env * v.velocity
}

func (e *Engine) stealVoice() int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	quiet := 0
	minEnv := e.voices[0].carrier.env
	for i := 1; i < len(e.voices); i++ {
		if e.voices[i].carrier.env < minEnv {
			minEnv = e.voices[i].carrier.env
			quiet = i
		}
	}
	return quiet
}

func advanceOpEnv(op *operator, sampleRate float64) {
	switch op.envState {
	case envAttack:
		step := 1.0
		if op.ar > 0 {
			step = 1 / (op.ar * sampleRate)
		}
		op.env += step
		if op.env >= 1 {
			op.env = 1
			op.envState = envDecay
		}
	case envDecay:
		step := 1.0
		if op.dr > 0 {
			step = (1 - op.sl) / (op.dr * sampleRate)
		}
		op.env -= step
		if op.env <= op.sl {
			op.env = op.sl
			op.envState = envSustain
			if op.sl <= 0 {
				op.envState = envOff
			}
		}
	case envRelease:
		step := 1.0
		if op.rr > 0 {
			step = 1 / (op.rr * sampleRate)
		}
		op.env -= step
		if op.env <= 0.0001 {
			op.env = 0
			op.envState = envOff
		}
	case envOff:
		op.env = 0
	}
}

func (e *Engine) waveformSample(phase float64, w waveform) float64 {
	switch w {
	case waveSaw:
		return 1.0 - 2.0*math.Mod(phase, twoPi)/twoPi
	case waveTriangle:
		return 2.0*math.Abs(2.0*math.Mod(phase, twoPi)/twoPi-1.0) - 1.0
	case waveSquare:
		if math.Mod(phase, twoPi) < math.Pi {
			return 1.0
		}
		return -1.0
	case waveNoise:
		e.noise = (e.noise >> 1) ^ (-(e.noise & 1) & 0xB400)
		return float64(e.noise)/float64(0xFFFF)*2.0 - 1.0
	default:
		return math.Sin(phase)
	}
}

func midiToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func (e *Engine) SetMasterGain(gain float64) {
	atomic.StoreUint64(&e.masterGain, math.Float64bits(max(gain, 0)))
}

func (e *Engine) masterGainValue() float64 {
	return math.Float64frombits(atomic.LoadUint64(&e.masterGain))
}

func (e *Engine) ActiveVoiceCount() int {
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}
