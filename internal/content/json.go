package content

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cbegin/dmperf-go/internal/model"
)

var ErrInvalid = errors.New("content: invalid resource")

// JSONDecoder decodes segments and styles stored as JSON documents.
type JSONDecoder struct{}

func (JSONDecoder) DecodeSegment(name string, data []byte) (*model.Segment, error) {
	var seg model.Segment
	if err := json.Unmarshal(data, &seg); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if seg.Length < 0 {
		return nil, fmt.Errorf("%w: %s: negative length %d", ErrInvalid, name, seg.Length)
	}
	if seg.Name == "" {
		seg.Name = name
	}
	for _, ref := range seg.Styles {
		if ref.Style == nil && ref.File == "" && ref.Name == "" {
			return nil, fmt.Errorf("%w: %s: style reference without a name", ErrInvalid, name)
		}
		if ref.Style != nil {
			if err := validateStyle(ref.Style); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return &seg, nil
}

func (JSONDecoder) DecodeStyle(name string, data []byte) (*model.Style, error) {
	var style model.Style
	if err := json.Unmarshal(data, &style); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if style.Name == "" {
		style.Name = name
	}
	if style.TimeSignature == (model.TimeSignature{}) {
		style.TimeSignature = model.CommonTime
	}
	if err := validateStyle(&style); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &style, nil
}

func validateStyle(s *model.Style) error {
	seen := make(map[string]bool, len(s.Parts))
	for _, p := range s.Parts {
		if seen[p.ID] {
			return fmt.Errorf("%w: style %q: duplicate part %q", ErrInvalid, s.Name, p.ID)
		}
		seen[p.ID] = true
	}
	for _, p := range s.Patterns {
		if p.GrooveBottom > p.GrooveTop {
			return fmt.Errorf("%w: style %q: pattern %q groove range %d-%d", ErrInvalid, s.Name, p.Name, p.GrooveBottom, p.GrooveTop)
		}
	}
	return nil
}
