package container

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Magic is "XFTH" read as a little-endian uint32
const Magic uint32 = 'X' | 'F'<<8 | 'T'<<16 | 'H'<<24

const (
	// IntegritySize is the size of the opaque block after the build number
	IntegritySize = 32
	// HeaderSize is the size of the container header
	HeaderSize = 4 + 4 + 4 + IntegritySize
)

// Header is the container header
type Header struct {
	Magic     uint32
	Version   uint32
	Build     uint32
	Integrity [IntegritySize]byte // kept, never validated
}

// Status is the validity code of a hotfix entry
type Status uint8

const (
	StatusCurrent    Status = 1
	StatusDelete     Status = 2
	StatusSuperseded Status = 3 // earlier pushes for the same record are discarded
	StatusVoid       Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusCurrent:
		return "current"
	case StatusDelete:
		return "delete"
	case StatusSuperseded:
		return "superseded"
	case StatusVoid:
		return "void"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// EntryHeader is the per-entry metadata preceding a payload
type EntryHeader struct {
	Region    int32 // present only for shapes with Region
	PushID    int32
	UniqueID  uint32 // present only for shapes with UniqueID
	TableHash uint32
	RecordID  uint32
	DataSize  int32
	Status    Status
	Reserved  [3]byte
}

// RawEntry is one framed entry. Data aliases the container bytes.
type RawEntry struct {
	Index         int   // sequence number in the stream
	Offset        int64 // offset of the entry magic
	PayloadOffset int64 // offset of the first payload byte
	Header        EntryHeader
	Data          []byte
}

// Shape selects which optional entry header fields are present
type Shape struct {
	Name     string
	Region   bool
	UniqueID bool
}

var (
	ShapeV7  = Shape{Name: "v7"}
	ShapeV8  = Shape{Name: "v8", UniqueID: true}
	ShapeV9A = Shape{Name: "v9a", Region: true, UniqueID: true}
	ShapeV9B = Shape{Name: "v9b", UniqueID: true}
)

// EntryHeaderSize returns the encoded size of an entry header in this shape
func (s Shape) EntryHeaderSize() int {
	n := 4 + 4 + 4 + 4 + 4 + 1 + 3
	if s.Region {
		n += 4
	}
	if s.UniqueID {
		n += 4
	}
	return n
}

func (s Shape) String() string {
	return s.Name
}

// ParseShape maps a shape name used in configuration
func ParseShape(name string) (Shape, error) {
	for _, s := range []Shape{ShapeV7, ShapeV8, ShapeV9A, ShapeV9B} {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return Shape{}, fmt.Errorf("unknown entry shape %q", name)
}

// DefaultAmbiguous lists the candidate shapes for versions that shipped with more
// than one entry layout, in probe order
func DefaultAmbiguous() map[uint32][]Shape {
	return map[uint32][]Shape{
		9: {ShapeV9A, ShapeV9B},
	}
}

// ShapeFor returns the candidate entry shapes for a container version
func ShapeFor(version uint32, ambiguous map[uint32][]Shape) ([]Shape, error) {
	if candidates, ok := ambiguous[version]; ok && len(candidates) > 0 {
		return candidates, nil
	}
	switch version {
	case 7:
		return []Shape{ShapeV7}, nil
	case 8:
		return []Shape{ShapeV8}, nil
	case 9:
		return []Shape{ShapeV9A}, nil
	}
	return nil, &FormatError{Offset: 4, Reason: fmt.Sprintf("unsupported version %d", version)}
}

// ErrFormat marks a structural error that makes the rest of the stream unreadable
var ErrFormat = errors.New("format error")

// FormatError reports where framing was lost
type FormatError struct {
	Offset int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrFormat, e.Offset, e.Reason)
}

// Is matches ErrFormat
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// EntryIterator provides streaming access to entries
type EntryIterator interface {
	Next() bool
	Entry() *RawEntry
	Err() error
	Close() error
}
