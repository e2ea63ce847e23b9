// Package codec decodes cache record payloads against schema descriptions.
//
// The package has three layers. Cursor reads little-endian primitives and
// NUL-terminated strings from a payload slice. BitReader shares a Cursor and
// reads MSB-first bit-packed values for layouts that prefix strings with packed
// lengths. Engine walks a schema.VersionSchema over a payload and produces a
// Record.
//
// # Inline layout
//
// Fields are read in declared order:
//
//	[u32 ID][f32 Scale][cstring Name\0][u32 Flags[0]][u32 Flags[1]]...
//
// A field with Bits == 0 is a float when its Kind is KindFloat and a
// NUL-terminated string otherwise. Widths 8, 16, 32 and 64 are little-endian
// integers. A KindNonInlineID field consumes nothing and takes the record id
// from the entry header. When the payload runs out between fields or between
// array elements the remaining fields are skipped; a primitive cut in half by
// the end of the payload is a *FieldDecodeError.
//
// # Bit-packed layout
//
//	[packed prologue bits][flush][byte-aligned fields][sized strings]
//
// The prologue carries string lengths and one-bit flags. After it the reader
// is flushed to a byte boundary, byte-aligned fields follow in declared order,
// and sized strings are read last using the lengths from the prologue.
// Decoded fields are reported in declared order regardless of read order.
//
// # Usage
//
//	vs, err := registry.Resolve("SpellName", schema.BuildOnly(build), 0)
//	if err != nil {
//	    return err
//	}
//
//	rec, consumed, err := codec.NewEngine().Decode(payload, vs, "SpellName", recordID)
//	if errors.Is(err, codec.ErrFieldDecode) {
//	    // rec holds the fields decoded before the failure
//	}
//
// # Thread Safety
//
// Engine is stateless and safe for concurrent use. Cursor and BitReader are not.
package codec
