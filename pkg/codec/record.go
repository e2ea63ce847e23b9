package codec

import (
	"errors"
	"fmt"
)

// ErrFieldDecode marks a record whose payload could not be decoded against its schema
var ErrFieldDecode = errors.New("field decode error")

// FieldDecodeError reports the field and payload offset where decoding failed
type FieldDecodeError struct {
	Table  string
	Field  string
	Offset int
	Err    error
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("%s: decoding %s.%s at offset %d: %v", ErrFieldDecode, e.Table, e.Field, e.Offset, e.Err)
}

func (e *FieldDecodeError) Unwrap() error {
	return e.Err
}

// Is matches ErrFieldDecode
func (e *FieldDecodeError) Is(target error) bool {
	return target == ErrFieldDecode
}

// Field is one decoded value. Array elements are named Name[i].
type Field struct {
	Name  string
	Value interface{}
}

// Record is a payload decoded against a version schema
type Record struct {
	Table    string
	RecordID uint32
	Fields   []Field
	Trailing bool // trailing bytes followed the schema fields
}

// Get returns the value of a field by name
func (r *Record) Get(name string) (interface{}, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the decoded field names in order
func (r *Record) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of decoded fields
func (r *Record) Len() int {
	return len(r.Fields)
}
