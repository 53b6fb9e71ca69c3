// Package timebase converts between musical pulses and audio samples.
package timebase

import "github.com/cbegin/dmperf-go/internal/model"

// PPQN is the number of pulses per quarter note.
const PPQN = 768

// BeatLength returns the pulses in one beat of sig. Units that are not a
// power of two truncate: 3 and 5 both give a quarter note.
func BeatLength(sig model.TimeSignature) int64 {
	unit := int64(sig.BeatUnit)
	var n int64
	switch {
	case unit == 0:
		n = PPQN / 64
	case unit <= 4:
		n = PPQN * (4 / unit)
	default:
		n = PPQN / (unit / 4)
	}
	return max(n, 1)
}

// MeasureLength returns the pulses in one measure of sig.
func MeasureLength(sig model.TimeSignature) int64 {
	return max(int64(sig.BeatsPerMeasure)*BeatLength(sig), 1)
}

// GridLength returns the pulses in one grid step of sig.
func GridLength(sig model.TimeSignature) int64 {
	grids := int64(sig.GridsPerBeat)
	if grids == 0 {
		grids = 1
	}
	return max(BeatLength(sig)/grids, 1)
}

// PulsesToSamples converts a pulse span to samples at tempo (BPM).
func PulsesToSamples(pulses int64, tempo float64, sampleRate int) float64 {
	return float64(pulses) * float64(sampleRate) * 60 / (tempo * PPQN)
}

// SamplesToPulses converts a sample span to pulses at tempo (BPM).
func SamplesToPulses(samples int64, tempo float64, sampleRate int) float64 {
	return float64(samples) * tempo * PPQN / (float64(sampleRate) * 60)
}

// NextGrid returns the first grid boundary at or after offset.
func NextGrid(offset int64, sig model.TimeSignature) int64 {
	return NextMultiple(offset, GridLength(sig))
}

// NextBeat returns the first beat boundary at or after offset.
func NextBeat(offset int64, sig model.TimeSignature) int64 {
	return NextMultiple(offset, BeatLength(sig))
}

// NextMeasure returns the first measure boundary at or after offset.
func NextMeasure(offset int64, sig model.TimeSignature) int64 {
	return NextMultiple(offset, MeasureLength(sig))
}

// NextMultiple returns the smallest multiple of length that is >= offset.
// Negative offsets resolve to 0.
func NextMultiple(offset, length int64) int64 {
	if offset <= 0 {
		return 0
	}
	if length <= 1 {
		return offset
	}
	return (offset + length - 1) / length * length
}
