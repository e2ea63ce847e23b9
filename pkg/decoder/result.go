package decoder

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/ssargent/dbcache/pkg/codec"
	"github.com/ssargent/dbcache/pkg/container"
	"github.com/ssargent/dbcache/pkg/drift"
)

// UnknownTable names entries whose table hash resolves to no known table
const UnknownTable = "unknown"

// Result is the outcome for one entry, in entry order
type Result struct {
	Entry  *container.RawEntry
	Table  string
	Record *codec.Record // nil when the payload was not decoded; partial on a field decode error
	Raw    []byte        // the payload when Record is nil or partial
	Digest string        // lowercase hex MD5 of the payload, empty for an empty payload
	Err    error         // per-record failure, never fatal
	Drift  *drift.Report
}

// Decoded reports whether the record decoded completely
func (r *Result) Decoded() bool {
	return r.Record != nil && r.Err == nil
}

// Digest returns the payload digest stored by downstream diffing
func Digest(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// Summary holds statistics of one decode run
type Summary struct {
	RunID    string
	Source   string // "dbcache" or "wdb"
	Build    uint32
	Entries  int
	Decoded  int
	Empty    int // entries without payload, nothing to decode
	Raw      int // no table name or schema
	Failed   int // schema found but the payload did not decode
	Trailing int
	Duration time.Duration
}

// OK reports whether any entry went through without error. Entries with an
// empty payload count, since there was nothing to decode.
func (s Summary) OK() bool {
	return s.Decoded+s.Empty > 0
}

// Run is a finished decode run
type Run struct {
	Summary Summary
	Results []*Result
}
