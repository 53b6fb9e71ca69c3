// Package model holds the parsed musical object graph consumed by the
// performance engine: segments, styles, parts, patterns, chords and bands.
package model

import "math"

// RepeatInfinite marks a segment that loops until replaced.
const RepeatInfinite = math.MaxUint32

// TimeSignature describes beats per measure, the note value of one beat
// (4 = quarter, 8 = eighth, 0 = 256th) and the grid resolution of a beat.
type TimeSignature struct {
	BeatsPerMeasure uint8  `json:"beatsPerMeasure"`
	BeatUnit        uint8  `json:"beatUnit"`
	GridsPerBeat    uint16 `json:"gridsPerBeat"`
}

// CommonTime is 4/4 with four grids per beat.
var CommonTime = TimeSignature{BeatsPerMeasure: 4, BeatUnit: 4, GridsPerBeat: 4}

// Tempo is a tempo track entry.
type Tempo struct {
	Time int64   `json:"time"`
	BPM  float64 `json:"bpm"`
}

// CommandKind is the command-track entry type.
type CommandKind uint8

const (
	CommandGroove CommandKind = iota
	CommandFill
	CommandIntro
	CommandBreak
	CommandEnd
)

// Command sets the groove level and optionally requests an embellishment.
type Command struct {
	Time        int64       `json:"time"`
	Command     CommandKind `json:"command"`
	GrooveLevel uint8       `json:"grooveLevel"`
	GrooveRange uint8       `json:"grooveRange"`
}

// Subchord is one harmonic layer of a chord. Masks hold up to 24 semitones
// above their root.
type Subchord struct {
	ChordMask uint32 `json:"chordMask"`
	ScaleMask uint32 `json:"scaleMask"`
	ChordRoot uint8  `json:"chordRoot"`
	ScaleRoot uint8  `json:"scaleRoot"`
	// Levels is a bit set of the subchord levels this layer serves.
	Levels uint32 `json:"levels"`
}

type Chord struct {
	Time      int64      `json:"time"`
	Name      string     `json:"name"`
	Subchords []Subchord `json:"subchords"`
}

// Instrument binds a performance channel to a patch. Patch packs program
// (bits 0-6), bank LSB (8-14), bank MSB (16-22) and the drum flag (bit 31).
// Volume and Pan are 0..127, pan 64 is centre. Collection names an
// instrument collection resource; empty selects general MIDI.
type Instrument struct {
	Channel    uint32 `json:"channel"`
	Patch      uint32 `json:"patch"`
	Volume     uint8  `json:"volume"`
	Pan        uint8  `json:"pan"`
	Collection string `json:"collection,omitempty"`
}

type Band struct {
	Name        string       `json:"name"`
	Instruments []Instrument `json:"instruments"`
}

// BandItem places a band on a segment's band track.
type BandItem struct {
	Time int64 `json:"time"`
	Band Band  `json:"band"`
}

// PlayMode selects how a note's music value is interpreted.
type PlayMode uint8

const (
	PlayModeInherit PlayMode = iota
	PlayModeChord
	PlayModeFixed
)

// Note is a grid-indexed note declaration inside a style part.
type Note struct {
	GridStart  uint32 `json:"gridStart"`
	TimeOffset int16  `json:"timeOffset"`
	Duration   int64  `json:"duration"`
	MusicValue uint16 `json:"musicValue"`
	Velocity   uint8  `json:"velocity"`
	// Variations is a bit set of the part variations that play this note;
	// zero plays in every variation.
	Variations    uint32   `json:"variations"`
	PlayMode      PlayMode `json:"playMode"`
	TimeRange     uint8    `json:"timeRange"`
	DurationRange uint8    `json:"durationRange"`
	VelocityRange uint8    `json:"velocityRange"`
}

type Part struct {
	ID            string         `json:"id"`
	TimeSignature *TimeSignature `json:"timeSignature,omitempty"`
	Measures      uint16         `json:"measures"`
	Variations    uint8          `json:"variations"`
	Notes         []Note         `json:"notes"`
}

// PartRef places a style part on a channel within a pattern.
type PartRef struct {
	PartID        string   `json:"partId"`
	Channel       uint32   `json:"channel"`
	VariationLock uint8    `json:"variationLock"`
	SubchordLevel uint8    `json:"subchordLevel"`
	PlayMode      PlayMode `json:"playMode"`
}

// Embellishment classifies a pattern; only normal patterns are chosen
// automatically.
type Embellishment uint8

const (
	EmbellishmentNormal Embellishment = iota
	EmbellishmentFill
	EmbellishmentIntro
	EmbellishmentBreak
	EmbellishmentEnd
)

type Pattern struct {
	Name          string         `json:"name"`
	GrooveBottom  uint8          `json:"grooveBottom"`
	GrooveTop     uint8          `json:"grooveTop"`
	Embellishment Embellishment  `json:"embellishment"`
	Measures      uint16         `json:"measures"`
	TimeSignature *TimeSignature `json:"timeSignature,omitempty"`
	PartRefs      []PartRef      `json:"partRefs"`
}

type Style struct {
	Name          string        `json:"name"`
	TimeSignature TimeSignature `json:"timeSignature"`
	Tempo         float64       `json:"tempo"`
	Bands         []Band        `json:"bands"`
	Parts         []Part        `json:"parts"`
	Patterns      []Pattern     `json:"patterns"`
}

// StyleRef references a style either inline or by resource name.
type StyleRef struct {
	Name  string `json:"name"`
	File  string `json:"file,omitempty"`
	Style *Style `json:"style,omitempty"`
}

type Segment struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Length        int64          `json:"length"`
	Repeats       uint32         `json:"repeats"`
	TimeSignature *TimeSignature `json:"timeSignature,omitempty"`
	Tempos        []Tempo        `json:"tempos"`
	Commands      []Command      `json:"commands"`
	Chords        []Chord        `json:"chords"`
	Bands         []BandItem     `json:"bands"`
	Styles        []StyleRef     `json:"styles"`
}

// Loader resolves resource names to bytes.
type Loader interface {
	Load(name string) ([]byte, error)
}

// Decoder turns resource bytes into object graphs.
type Decoder interface {
	DecodeSegment(name string, data []byte) (*Segment, error)
	DecodeStyle(name string, data []byte) (*Style, error)
}

// EmbellishmentFor maps a command-track entry to the pattern kind it asks for.
func EmbellishmentFor(c CommandKind) Embellishment {
	switch c {
	case CommandFill:
		return EmbellishmentFill
	case CommandIntro:
		return EmbellishmentIntro
	case CommandBreak:
		return EmbellishmentBreak
	case CommandEnd:
		return EmbellishmentEnd
	default:
		return EmbellishmentNormal
	}
}
