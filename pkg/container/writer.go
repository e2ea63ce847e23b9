package container

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// WriterConfig holds configuration for the container writer
type WriterConfig struct {
	FilePath   string // Path of the container to create (NewWriter only)
	BufferSize int    // Write buffer size
	Version    uint32
	Build      uint32
	Integrity  [IntegritySize]byte
	Shape      Shape // Entry shape; zero value uses the single shape of Version
}

// Writer encodes a container: the header first, then entries in Put order
type Writer struct {
	file   *os.File
	writer *bufio.Writer
	config WriterConfig
	shape  Shape
	mutex  sync.Mutex
	offset int64 // Current write offset
}

// NewWriter creates (or truncates) config.FilePath and writes the container header
func NewWriter(config WriterConfig) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	w, err := newWriter(file, config)
	if err != nil {
		file.Close()
		return nil, err
	}
	w.file = file
	return w, nil
}

// NewStreamWriter writes a container to an arbitrary stream
func NewStreamWriter(out io.Writer, config WriterConfig) (*Writer, error) {
	return newWriter(out, config)
}

func newWriter(out io.Writer, config WriterConfig) (*Writer, error) {
	shape := config.Shape
	if shape.Name == "" {
		candidates, err := ShapeFor(config.Version, nil)
		if err != nil {
			return nil, err
		}
		shape = candidates[0]
	}

	size := config.BufferSize
	if size <= 0 {
		size = 64 * 1024
	}

	w := &Writer{
		writer: bufio.NewWriterSize(out, size),
		config: config,
		shape:  shape,
	}

	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], Magic)
	binary.LittleEndian.PutUint32(hdr[4:], config.Version)
	binary.LittleEndian.PutUint32(hdr[8:], config.Build)
	copy(hdr[12:], config.Integrity[:])
	if _, err := w.writer.Write(hdr[:]); err != nil {
		return nil, errors.Wrap(err, "writing container header")
	}
	w.offset = HeaderSize
	return w, nil
}

// EncodeEntry encodes one entry in the given shape. DataSize is taken from data.
func EncodeEntry(shape Shape, h EntryHeader, data []byte) []byte {
	buf := make([]byte, shape.EntryHeaderSize(), shape.EntryHeaderSize()+len(data))
	binary.LittleEndian.PutUint32(buf, Magic)
	p := 4
	if shape.Region {
		binary.LittleEndian.PutUint32(buf[p:], uint32(h.Region))
		p += 4
	}
	binary.LittleEndian.PutUint32(buf[p:], uint32(h.PushID))
	p += 4
	if shape.UniqueID {
		binary.LittleEndian.PutUint32(buf[p:], h.UniqueID)
		p += 4
	}
	binary.LittleEndian.PutUint32(buf[p:], h.TableHash)
	binary.LittleEndian.PutUint32(buf[p+4:], h.RecordID)
	binary.LittleEndian.PutUint32(buf[p+8:], uint32(len(data)))
	buf[p+12] = byte(h.Status)
	copy(buf[p+13:], h.Reserved[:])
	return append(buf, data...)
}

// Put appends an entry and returns the offset of its magic
func (w *Writer) Put(h EntryHeader, data []byte) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n, err := w.writer.Write(EncodeEntry(w.shape, h, data))
	if err != nil {
		return 0, err
	}

	entryOffset := w.offset
	w.offset += int64(n)
	return entryOffset, nil
}

// Flush writes buffered data to the underlying stream
func (w *Writer) Flush() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.writer.Flush()
}

// Close flushes and, for file writers, syncs and closes the file
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if err := w.writer.Flush(); err != nil {
		if w.file != nil {
			w.file.Close()
		}
		return err
	}
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Size returns the number of bytes written so far
func (w *Writer) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}

// Shape returns the entry shape being written
func (w *Writer) Shape() Shape {
	return w.shape
}

// Path returns the file path
func (w *Writer) Path() string {
	return w.config.FilePath
}
