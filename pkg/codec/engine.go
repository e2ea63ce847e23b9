package codec

import (
	"bytes"
	"fmt"

	"github.com/ssargent/dbcache/pkg/schema"
)

// Engine decodes record payloads against resolved version schemas.
// It holds no state and is safe for concurrent use.
type Engine struct{}

// NewEngine creates a new decode engine
func NewEngine() *Engine {
	return &Engine{}
}

// Decode walks vs.Fields over payload and returns the decoded record together
// with the number of payload bytes consumed. On a *FieldDecodeError the record
// still carries every field decoded before the failure.
func (e *Engine) Decode(payload []byte, vs *schema.VersionSchema, table string, recordID uint32) (*Record, int, error) {
	d := &decodeState{
		c:        NewCursor(payload),
		vs:       vs,
		table:    table,
		recordID: recordID,
		slots:    make([][]Field, len(vs.Fields)),
	}

	var err error
	if vs.Layout == schema.LayoutBitPacked {
		err = d.bitPacked()
	} else {
		err = d.inline()
	}

	rec := &Record{Table: table, RecordID: recordID}
	for _, s := range d.slots {
		rec.Fields = append(rec.Fields, s...)
	}
	return rec, d.c.Pos(), err
}

type decodeState struct {
	c        *Cursor
	vs       *schema.VersionSchema
	table    string
	recordID uint32
	slots    [][]Field // per declared field, so bit-packed records keep declared order
}

func (d *decodeState) fail(field string, offset int, err error) error {
	return &FieldDecodeError{Table: d.table, Field: field, Offset: offset, Err: err}
}

func (d *decodeState) inline() error {
	for i, f := range d.vs.Fields {
		if d.c.AtEnd() {
			return nil
		}
		if err := d.field(i, f); err != nil {
			return err
		}
	}
	return nil
}

// bitPacked decodes the packed prologue, flushes, reads the byte-aligned body
// and finally the sized strings whose lengths the prologue supplied.
func (d *decodeState) bitPacked() error {
	fields := d.vs.Fields
	br := NewBitReader(d.c)
	lengths := make(map[string]int)

	i := 0
	for ; i < len(fields) && fields[i].Packed; i++ {
		f := fields[i]
		if d.c.AtEnd() && br.Aligned() {
			return nil
		}
		start := d.c.Pos()
		v, err := br.GetBits(f.Bits)
		if err != nil {
			return d.fail(f.Name, start, err)
		}
		lengths[f.Name] = int(v)
		if f.Bits == 1 {
			d.slots[i] = []Field{{Name: f.Name, Value: v != 0}}
		} else {
			d.slots[i] = []Field{{Name: f.Name, Value: v}}
		}
	}
	br.Flush()

	var sized []int
	for ; i < len(fields); i++ {
		f := fields[i]
		if f.Kind == schema.KindSizedString {
			sized = append(sized, i)
			continue
		}
		if d.c.AtEnd() {
			return nil
		}
		if err := d.field(i, f); err != nil {
			return err
		}
	}

	for _, i := range sized {
		f := fields[i]
		n := lengths[f.LengthField]
		if n == 0 {
			d.slots[i] = []Field{{Name: f.Name, Value: ""}}
			continue
		}
		if d.c.AtEnd() {
			return nil
		}
		start := d.c.Pos()
		b, err := d.c.ReadBytes(n)
		if err != nil {
			return d.fail(f.Name, start, err)
		}
		d.slots[i] = []Field{{Name: f.Name, Value: string(bytes.TrimRight(b, "\x00"))}}
	}
	return nil
}

func (d *decodeState) field(i int, f schema.FieldSchema) error {
	if f.Kind == schema.KindNonInlineID {
		d.slots[i] = []Field{{Name: f.Name, Value: d.recordID}}
		return nil
	}

	if !f.IsArray() {
		v, err := d.element(f, f.Name)
		if err != nil {
			return err
		}
		d.slots[i] = []Field{{Name: f.Name, Value: v}}
		return nil
	}

	for n := 0; n < f.ArrayLength; n++ {
		if d.c.AtEnd() {
			return nil
		}
		name := f.ElementName(n)
		v, err := d.element(f, name)
		if err != nil {
			return err
		}
		d.slots[i] = append(d.slots[i], Field{Name: name, Value: v})
	}
	return nil
}

func (d *decodeState) element(f schema.FieldSchema, name string) (interface{}, error) {
	start := d.c.Pos()
	v, err := readValue(d.c, f)
	if err != nil {
		return nil, d.fail(name, start, err)
	}
	return v, nil
}

// readValue reads one scalar. A failed read leaves the cursor where it was.
func readValue(c *Cursor, f schema.FieldSchema) (interface{}, error) {
	if f.Kind == schema.KindFloat && (f.Bits == 0 || f.Bits == 32) {
		return c.ReadFloat32()
	}
	if f.Bits == 0 {
		return c.ReadCString()
	}

	switch f.Bits {
	case 8:
		if f.Signed {
			return c.ReadInt8()
		}
		return c.ReadUint8()
	case 16:
		if f.Signed {
			return c.ReadInt16()
		}
		return c.ReadUint16()
	case 32:
		if f.Signed {
			return c.ReadInt32()
		}
		return c.ReadUint32()
	case 64:
		if f.Signed {
			return c.ReadInt64()
		}
		return c.ReadUint64()
	}
	return nil, fmt.Errorf("unsupported bit width %d", f.Bits)
}
