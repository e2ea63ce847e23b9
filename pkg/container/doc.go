// Package container frames the entries of client cache files.
//
// A hotfix DBCache container is a fixed header followed by entries:
//
//	MAGIC(4) VERSION(u32) BUILD(u32) INTEGRITY(32) ENTRY*
//	ENTRY: MAGIC(4) [REGION(i32)] PUSH_ID(i32) [UNIQUE_ID(u32)] TABLE_HASH(u32)
//	       RECORD_ID(u32) DATA_SIZE(i32) STATUS(u8) RESERVED(3) DATA
//
// Which optional fields are present depends on the version; see Shape. One
// version shipped with two incompatible shapes, so the reader asks a
// Disambiguator to pick one when it is created.
//
// Framing is sequential: each entry starts where the previous one's payload
// ends, so a bad entry magic is a *FormatError that ends the stream.
//
// WDBReader frames .wdb creature, quest and page text caches, whose records
// are an id and a length followed by bit-packed data.
package container
