package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/ssargent/dbcache/pkg/schema"
)

const (
	// WDBHeaderSize is the size of a .wdb cache header
	WDBHeaderSize = 24
	// WDBEntryHeaderSize is the size of the id and length preceding each record
	WDBEntryHeaderSize = 8
)

var wdbTables = map[string]string{
	"WMOB": "CreatureCache",
	"WGOB": "GameObjectCache",
	"WPTX": "PageTextCache",
	"WQST": "QuestCache",
	"WNPC": "NPCCache",
	"WPTN": "PetitionCache",
}

// WDBHeader is the header of a .wdb client cache
type WDBHeader struct {
	Identifier    string // e.g. WMOB, stored reversed on disk
	Build         uint32
	Locale        string // e.g. enUS, stored reversed on disk
	RecordSize    uint32
	RecordVersion uint32
	FormatVersion uint32
}

// TableName maps the identifier to the table whose schema decodes its records
func (h WDBHeader) TableName() (string, bool) {
	name, ok := wdbTables[h.Identifier]
	return name, ok
}

// WDBReader provides sequential access to .wdb cache records. Each record's
// data is bounded by its declared length and the next record starts right after
// it, whatever a schema makes of the payload.
type WDBReader struct {
	data   []byte
	header WDBHeader
	hash   uint32
	offset int64
	index  int
	done   bool
}

// OpenWDB reads the whole file at path and creates a reader over it
func OpenWDB(path string) (*WDBReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading wdb cache")
	}
	return NewWDBReader(data)
}

// NewWDBReader parses the cache header
func NewWDBReader(data []byte) (*WDBReader, error) {
	if len(data) < WDBHeaderSize {
		return nil, &FormatError{Offset: 0, Reason: fmt.Sprintf("wdb header needs %d bytes, have %d", WDBHeaderSize, len(data))}
	}

	h := WDBHeader{
		Identifier:    reversed(data[0:4]),
		Build:         binary.LittleEndian.Uint32(data[4:]),
		Locale:        reversed(data[8:12]),
		RecordSize:    binary.LittleEndian.Uint32(data[12:]),
		RecordVersion: binary.LittleEndian.Uint32(data[16:]),
		FormatVersion: binary.LittleEndian.Uint32(data[20:]),
	}

	r := &WDBReader{data: data, header: h, offset: WDBHeaderSize}
	if name, ok := h.TableName(); ok {
		r.hash = schema.TableHash(name)
	}
	return r, nil
}

func reversed(b []byte) string {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return string(out)
}

// Next returns the next record, or io.EOF at the end of the stream or at a
// zero-length terminator
func (r *WDBReader) Next() (*RawEntry, error) {
	if r.done || r.offset >= int64(len(r.data)) {
		return nil, io.EOF
	}

	off := r.offset
	if int64(len(r.data))-off < WDBEntryHeaderSize {
		return nil, &FormatError{Offset: off, Reason: "truncated wdb entry header"}
	}
	id := binary.LittleEndian.Uint32(r.data[off:])
	length := binary.LittleEndian.Uint32(r.data[off+4:])
	if length == 0 {
		r.done = true
		return nil, io.EOF
	}

	start := off + WDBEntryHeaderSize
	if int64(length) > int64(len(r.data))-start {
		return nil, &FormatError{Offset: off, Reason: fmt.Sprintf("record length %d exceeds stream", length)}
	}
	end := start + int64(length)

	e := &RawEntry{
		Index:         r.index,
		Offset:        off,
		PayloadOffset: start,
		Header: EntryHeader{
			TableHash: r.hash,
			RecordID:  id,
			DataSize:  int32(length),
			Status:    StatusCurrent,
		},
		Data: r.data[start:end],
	}
	r.index++
	r.offset = end
	return e, nil
}

// Entries reads every remaining record
func (r *WDBReader) Entries() ([]*RawEntry, error) {
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

// Iterator returns a streaming iterator for records
func (r *WDBReader) Iterator() EntryIterator {
	return &entryIterator{next: r.Next}
}

// Header returns the cache header
func (r *WDBReader) Header() WDBHeader {
	return r.header
}

// Offset returns the current read offset
func (r *WDBReader) Offset() int64 {
	return r.offset
}

// WDBRecord is one record passed to EncodeWDB
type WDBRecord struct {
	ID   uint32
	Data []byte
}

// EncodeWDB builds a .wdb cache, closing it with a zero-length terminator
func EncodeWDB(h WDBHeader, records ...WDBRecord) []byte {
	buf := make([]byte, WDBHeaderSize)
	copy(buf[0:4], reversed([]byte(h.Identifier)))
	binary.LittleEndian.PutUint32(buf[4:], h.Build)
	copy(buf[8:12], reversed([]byte(h.Locale)))
	binary.LittleEndian.PutUint32(buf[12:], h.RecordSize)
	binary.LittleEndian.PutUint32(buf[16:], h.RecordVersion)
	binary.LittleEndian.PutUint32(buf[20:], h.FormatVersion)

	var eh [WDBEntryHeaderSize]byte
	for _, rec := range records {
		binary.LittleEndian.PutUint32(eh[0:], rec.ID)
		binary.LittleEndian.PutUint32(eh[4:], uint32(len(rec.Data)))
		buf = append(buf, eh[:]...)
		buf = append(buf, rec.Data...)
	}
	return append(buf, make([]byte, WDBEntryHeaderSize)...)
}
