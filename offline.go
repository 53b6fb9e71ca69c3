package dmperf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	intaudio "github.com/cbegin/dmperf-go/internal/audio"
	"github.com/cbegin/dmperf-go/internal/model"
)

// offlineBlock matches a typical device callback so offline renders hit the
// same block boundaries as live playback.
const offlineBlock = 1024

// RenderFrames pulls frames of interleaved stereo from the player without
// touching the audio device.
func RenderFrames(p *Player, frames int) []float32 {
	out := make([]float32, frames*intaudio.Channels)
	for done := 0; done < frames; {
		n := min(offlineBlock, frames-done)
		p.bus.Process(out[done*intaudio.Channels : (done+n)*intaudio.Channels])
		done += n
	}
	return out
}

// RenderSegment compiles src, plays it from the start on an offline player
// and returns seconds of stereo audio.
func RenderSegment(src *model.Segment, sampleRate int, seconds float64, opts ...PlayerOption) ([]float32, error) {
	p, err := NewPlayer(sampleRate, append(opts, WithOffline())...)
	if err != nil {
		return nil, err
	}
	seg, err := p.Compile(src)
	if err != nil {
		return nil, err
	}
	if err := p.Play(seg, TimingImmediate); err != nil {
		return nil, err
	}
	return RenderFrames(p, int(float64(sampleRate)*seconds)), nil
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}

// WriteWAV writes samples as a 32-bit float WAV file.
func WriteWAV(w io.Writer, samples []float32, sampleRate, channels int) error {
	if _, err := w.Write(EncodeWAVFloat32LE(samples, sampleRate, channels)); err != nil {
		return fmt.Errorf("dmperf: write wav: %w", err)
	}
	return nil
}
