package sequencer

import (
	"fmt"
	"strings"

	"github.com/cbegin/dmperf-go/internal/event"
	"github.com/cbegin/dmperf-go/internal/model"
	"github.com/cbegin/dmperf-go/internal/pattern"
)

// Segment is a compiled, immutable segment. It may be played any number of
// times and shared between goroutines.
type Segment struct {
	ID        string
	Name      string
	Length    int64
	Repeats   uint32
	Infinite  bool
	Signature model.TimeSignature
	// Events are relative to the segment start and sorted.
	Events   []event.Event
	Patterns []*pattern.Pattern

	chords []model.Chord
}

func sameSegment(a, b *Segment) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.ID == "" {
		return false
	}
	return a.ID == b.ID && a.Name == b.Name && a.Length == b.Length
}

// Timing selects where a staged segment replaces the playing one.
type Timing uint8

const (
	TimingImmediate Timing = iota
	TimingGrid
	TimingBeat
	TimingMeasure
)

func (t Timing) String() string {
	switch t {
	case TimingImmediate:
		return "immediate"
	case TimingGrid:
		return "grid"
	case TimingBeat:
		return "beat"
	case TimingMeasure:
		return "measure"
	default:
		return fmt.Sprintf("timing(%d)", uint8(t))
	}
}

// ParseTiming accepts the names returned by Timing.String.
func ParseTiming(s string) (Timing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate", "":
		return TimingImmediate, nil
	case "grid":
		return TimingGrid, nil
	case "beat":
		return TimingBeat, nil
	case "measure", "bar":
		return TimingMeasure, nil
	default:
		return 0, fmt.Errorf("unknown transition timing %q", s)
	}
}

// NotificationKind identifies segment lifecycle notifications.
type NotificationKind int

const (
	NotifySegmentStart NotificationKind = iota
	NotifySegmentLoop
	NotifySegmentEnd
)

func (k NotificationKind) String() string {
	switch k {
	case NotifySegmentStart:
		return "start"
	case NotifySegmentLoop:
		return "loop"
	case NotifySegmentEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Notification reports a segment lifecycle change at a pulse and at the
// sample position it took effect.
type Notification struct {
	Kind    NotificationKind
	Segment *Segment
	Pulse   int64
	Sample  int64
}
