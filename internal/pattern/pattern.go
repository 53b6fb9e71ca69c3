// Package pattern holds compiled style patterns and chooses one per round.
package pattern

import "github.com/cbegin/dmperf-go/internal/model"

// Binding pairs a pattern's part reference with the style part it cites.
type Binding struct {
	Ref  model.PartRef
	Part *model.Part
}

// Pattern is a style pattern with its part references resolved.
type Pattern struct {
	Name          string
	GrooveBottom  uint8
	GrooveTop     uint8
	Embellishment model.Embellishment
	Measures      uint16
	Signature     *model.TimeSignature
	Parts         []Binding
}

// Eligible reports whether p plays at groove level g as embellishment kind.
func (p *Pattern) Eligible(g uint8, kind model.Embellishment) bool {
	return p.Embellishment == kind && g >= p.GrooveBottom && g <= p.GrooveTop
}

// Rand is the random source the selector draws from.
type Rand interface {
	Intn(n int) int
}

type Selector struct {
	rnd Rand
}

func NewSelector(rnd Rand) *Selector {
	return &Selector{rnd: rnd}
}

// Select picks a normal pattern eligible at groove level g.
func (s *Selector) Select(patterns []*Pattern, g uint8) (*Pattern, bool) {
	return s.SelectEmbellishment(patterns, g, model.EmbellishmentNormal)
}

// SelectEmbellishment picks uniformly among the patterns of kind eligible at
// g. Non-normal requests fall back to normal patterns when none match.
func (s *Selector) SelectEmbellishment(patterns []*Pattern, g uint8, kind model.Embellishment) (*Pattern, bool) {
	n := 0
	for _, p := range patterns {
		if p.Eligible(g, kind) {
			n++
		}
	}
	if n == 0 {
		if kind != model.EmbellishmentNormal {
			return s.SelectEmbellishment(patterns, g, model.EmbellishmentNormal)
		}
		return nil, false
	}
	pick := 0
	if n > 1 {
		pick = s.rnd.Intn(n)
	}
	for _, p := range patterns {
		if !p.Eligible(g, kind) {
			continue
		}
		if pick == 0 {
			return p, true
		}
		pick--
	}
	return nil, false
}
