package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// ReaderConfig holds configuration for the container reader
type ReaderConfig struct {
	FilePath      string             // Path to the DBCache file (Open only)
	Ambiguous     map[uint32][]Shape // Candidate shapes per version; nil uses DefaultAmbiguous
	Disambiguator Disambiguator      // Picks among candidates; nil uses ProbeDisambiguator
}

// Reader provides sequential access to the entries of a DBCache container
type Reader struct {
	data   []byte
	header Header
	shape  Shape
	offset int64
	index  int
}

// Open reads the whole file named by config.FilePath and creates a reader over it
func Open(config ReaderConfig) (*Reader, error) {
	data, err := os.ReadFile(config.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "reading container")
	}
	return NewReader(data, config)
}

// NewReader validates the container header and commits to an entry shape
func NewReader(data []byte, config ReaderConfig) (*Reader, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	ambiguous := config.Ambiguous
	if ambiguous == nil {
		ambiguous = DefaultAmbiguous()
	}
	candidates, err := ShapeFor(h.Version, ambiguous)
	if err != nil {
		return nil, err
	}

	shape := candidates[0]
	if len(candidates) > 1 {
		d := config.Disambiguator
		if d == nil {
			d = ProbeDisambiguator{}
		}
		if shape, err = d.Choose(data, h, candidates); err != nil {
			return nil, err
		}
	}

	return &Reader{
		data:   data,
		header: h,
		shape:  shape,
		offset: HeaderSize,
	}, nil
}

func parseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, &FormatError{Offset: 0, Reason: fmt.Sprintf("container header needs %d bytes, have %d", HeaderSize, len(data))}
	}
	h.Magic = binary.LittleEndian.Uint32(data[0:])
	if h.Magic != Magic {
		return h, &FormatError{Offset: 0, Reason: fmt.Sprintf("bad container magic %#08x", h.Magic)}
	}
	h.Version = binary.LittleEndian.Uint32(data[4:])
	h.Build = binary.LittleEndian.Uint32(data[8:])
	copy(h.Integrity[:], data[12:HeaderSize])
	return h, nil
}

// parseEntry frames the entry starting at off and returns it with the offset of
// the next entry
func parseEntry(data []byte, off int64, shape Shape) (*RawEntry, int64, error) {
	size := int64(shape.EntryHeaderSize())
	if int64(len(data))-off < size {
		return nil, 0, &FormatError{Offset: off, Reason: "truncated entry header"}
	}

	b := data[off : off+size]
	if m := binary.LittleEndian.Uint32(b); m != Magic {
		return nil, 0, &FormatError{Offset: off, Reason: fmt.Sprintf("bad entry magic %#08x", m)}
	}

	var h EntryHeader
	p := 4
	if shape.Region {
		h.Region = int32(binary.LittleEndian.Uint32(b[p:]))
		p += 4
	}
	h.PushID = int32(binary.LittleEndian.Uint32(b[p:]))
	p += 4
	if shape.UniqueID {
		h.UniqueID = binary.LittleEndian.Uint32(b[p:])
		p += 4
	}
	h.TableHash = binary.LittleEndian.Uint32(b[p:])
	h.RecordID = binary.LittleEndian.Uint32(b[p+4:])
	h.DataSize = int32(binary.LittleEndian.Uint32(b[p+8:]))
	h.Status = Status(b[p+12])
	copy(h.Reserved[:], b[p+13:p+16])

	start := off + size
	if h.DataSize < 0 || int64(h.DataSize) > int64(len(data))-start {
		return nil, 0, &FormatError{Offset: off, Reason: fmt.Sprintf("data size %d exceeds stream", h.DataSize)}
	}
	end := start + int64(h.DataSize)

	return &RawEntry{
		Offset:        off,
		PayloadOffset: start,
		Header:        h,
		Data:          data[start:end],
	}, end, nil
}

// Next returns the next entry, or io.EOF once the stream is exhausted. A
// *FormatError is fatal: later entries cannot be located.
func (r *Reader) Next() (*RawEntry, error) {
	if r.offset >= int64(len(r.data)) {
		return nil, io.EOF
	}

	e, next, err := parseEntry(r.data, r.offset, r.shape)
	if err != nil {
		return nil, err
	}
	e.Index = r.index
	r.index++
	r.offset = next
	return e, nil
}

// Entries frames every remaining entry
func (r *Reader) Entries() ([]*RawEntry, error) {
	var entries []*RawEntry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}

// Reset rewinds to the first entry
func (r *Reader) Reset() {
	r.offset = HeaderSize
	r.index = 0
}

// Offset returns the current read offset
func (r *Reader) Offset() int64 {
	return r.offset
}

// Header returns the container header
func (r *Reader) Header() Header {
	return r.header
}

// Version returns the container format version
func (r *Reader) Version() uint32 {
	return r.header.Version
}

// Build returns the client build that wrote the container
func (r *Reader) Build() uint32 {
	return r.header.Build
}

// Shape returns the entry shape the reader committed to
func (r *Reader) Shape() Shape {
	return r.shape
}

// Len returns the size of the container in bytes
func (r *Reader) Len() int {
	return len(r.data)
}

// Iterator returns a streaming iterator for entries
func (r *Reader) Iterator() EntryIterator {
	return &entryIterator{next: r.Next}
}

// entryIterator implements EntryIterator over any Next function
type entryIterator struct {
	next  func() (*RawEntry, error)
	entry *RawEntry
	err   error
}

func (it *entryIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.entry, it.err = it.next()
	return it.err == nil
}

func (it *entryIterator) Entry() *RawEntry {
	return it.entry
}

// Err returns the error that stopped iteration; io.EOF is not an error
func (it *entryIterator) Err() error {
	if it.err == io.EOF {
		return nil
	}
	return it.err
}

func (it *entryIterator) Close() error {
	// The reader is owned by the caller
	return nil
}
