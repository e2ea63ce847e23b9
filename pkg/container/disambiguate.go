package container

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disambiguator picks the entry shape of a container whose version shipped
// with more than one layout. It runs once, when the reader is created.
type Disambiguator interface {
	Choose(data []byte, h Header, candidates []Shape) (Shape, error)
}

// ProbeDisambiguator frames the first entry under each candidate in order and
// commits to the first one after which the stream either ends or continues with
// a valid entry magic.
type ProbeDisambiguator struct{}

// Choose implements Disambiguator
func (ProbeDisambiguator) Choose(data []byte, h Header, candidates []Shape) (Shape, error) {
	if len(data) <= HeaderSize {
		return candidates[0], nil
	}

	tried := make([]string, 0, len(candidates))
	for _, shape := range candidates {
		tried = append(tried, shape.Name)
		_, next, err := parseEntry(data, HeaderSize, shape)
		if err != nil {
			continue
		}
		if next == int64(len(data)) {
			return shape, nil
		}
		if next+4 <= int64(len(data)) && binary.LittleEndian.Uint32(data[next:]) == Magic {
			return shape, nil
		}
	}

	return Shape{}, &FormatError{
		Offset: HeaderSize,
		Reason: fmt.Sprintf("version %d entry layout matches none of [%s]", h.Version, strings.Join(tried, ", ")),
	}
}

// FixedShape always commits to one shape
type FixedShape Shape

// Choose implements Disambiguator
func (f FixedShape) Choose([]byte, Header, []Shape) (Shape, error) {
	return Shape(f), nil
}
