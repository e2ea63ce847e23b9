// Package drift checks how far a schema's consumption strayed from a record's
// declared length.
//
// Hotfix payloads declare their own length, so consuming more than declared
// means the schema misread the record and is a *container.FormatError.
// Leftover bytes start with a table hash: zero is padding, a registered
// Structure such as TactKey is decoded, and anything else is reported and
// discarded. WDB caches are checked in ModeReposition, where the next read
// simply resumes at the declared end.
package drift
