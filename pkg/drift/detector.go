package drift

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/ssargent/dbcache/pkg/codec"
	"github.com/ssargent/dbcache/pkg/container"
	"github.com/ssargent/dbcache/pkg/schema"
)

// Mode selects how a consumption mismatch is handled
type Mode uint8

const (
	// ModeStrict is for payloads with a self-declared length: overrun is fatal
	// and leftover bytes are sniffed for a trailing record.
	ModeStrict Mode = iota
	// ModeReposition is for caches whose record lengths are not trusted by the
	// schema: the cursor is moved to the declared end and drift is only logged.
	ModeReposition
)

func (m Mode) String() string {
	if m == ModeReposition {
		return "reposition"
	}
	return "strict"
}

// TrailingKind classifies bytes left after the schema fields
type TrailingKind uint8

const (
	TrailingPadding   TrailingKind = iota + 1
	TrailingStructure              // a registered structure, decoded
	TrailingKnown                  // a known table name without a registered structure
	TrailingUnknown
)

func (k TrailingKind) String() string {
	switch k {
	case TrailingPadding:
		return "padding"
	case TrailingStructure:
		return "structure"
	case TrailingKnown:
		return "known"
	case TrailingUnknown:
		return "unknown"
	}
	return "none"
}

// Trailing describes a trailing payload
type Trailing struct {
	Kind   TrailingKind
	Hash   uint32
	Table  string
	Size   int // bytes after the hash, or the whole remainder when no hash fit
	Fields []codec.Field
	Err    error // structure decode failure, reported not raised
}

// Report is the outcome of a drift check
type Report struct {
	Mode     Mode
	Consumed int
	Declared int
	Drift    int // Consumed - Declared
	End      int // where the next read resumes
	Trailing *Trailing
}

// Kind returns a short label for metrics and logs
func (r *Report) Kind() string {
	switch {
	case r.Trailing != nil:
		return r.Trailing.Kind.String()
	case r.Drift != 0:
		return "reposition"
	}
	return "clean"
}

// Input is one decoded record as seen by the detector
type Input struct {
	Table    string
	RecordID uint32
	Offset   int64  // stream offset of the payload, for errors
	Window   []byte // the declared payload
	Declared int
	Consumed int
	Index    *schema.TableIndex // overrides the detector's index when set
}

// Structure is a small fixed record that may trail a payload
type Structure struct {
	Name   string
	Schema *schema.VersionSchema
}

// TactKey is the encryption key record that hotfix entries can carry
func TactKey() Structure {
	return Structure{
		Name: "TactKey",
		Schema: &schema.VersionSchema{
			IDField: "Lookup",
			Fields: []schema.FieldSchema{
				{Name: "Lookup", Bits: 64},
				{Name: "Key", Bits: 8, ArrayLength: 16},
			},
		},
	}
}

// DetectorConfig holds configuration for the drift detector
type DetectorConfig struct {
	Index      *schema.TableIndex // resolves trailing hashes to table names; may be nil
	Structures []Structure        // nil registers TactKey
	Engine     *codec.Engine
	Logger     log.Logger
	LogUnknown bool // log unknown trailing payloads at warn instead of debug
}

// Detector compares consumed and declared payload lengths and sniffs trailing data
type Detector struct {
	index      *schema.TableIndex
	structures map[uint32]Structure
	engine     *codec.Engine
	logger     log.Logger
	logUnknown bool
}

// NewDetector creates a detector
func NewDetector(config DetectorConfig) *Detector {
	structures := config.Structures
	if structures == nil {
		structures = []Structure{TactKey()}
	}
	d := &Detector{
		index:      config.Index,
		structures: make(map[uint32]Structure, len(structures)),
		engine:     config.Engine,
		logger:     config.Logger,
		logUnknown: config.LogUnknown,
	}
	for _, s := range structures {
		d.structures[schema.TableHash(s.Name)] = s
	}
	if d.engine == nil {
		d.engine = codec.NewEngine()
	}
	if d.logger == nil {
		d.logger = log.NewNopLogger()
	}
	return d
}

// StructureNames returns the registered structure names, for building a hash index
func (d *Detector) StructureNames() []string {
	names := make([]string, 0, len(d.structures))
	for _, s := range d.structures {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Check evaluates a decoded record. Only a schema overrun in ModeStrict
// returns an error, a *container.FormatError.
func (d *Detector) Check(in Input, mode Mode) (*Report, error) {
	r := &Report{
		Mode:     mode,
		Consumed: in.Consumed,
		Declared: in.Declared,
		Drift:    in.Consumed - in.Declared,
		End:      in.Declared,
	}

	if mode == ModeReposition {
		if r.Drift != 0 {
			level.Debug(d.logger).Log("msg", "repositioned after schema drift", "table", in.Table, "record_id", in.RecordID, "consumed", in.Consumed, "declared", in.Declared)
		}
		return r, nil
	}

	if r.Drift > 0 {
		return r, &container.FormatError{
			Offset: in.Offset + int64(in.Declared),
			Reason: fmt.Sprintf("%s record %d overran its payload by %d bytes", in.Table, in.RecordID, r.Drift),
		}
	}
	if r.Drift == 0 {
		return r, nil
	}

	idx := in.Index
	if idx == nil {
		idx = d.index
	}
	r.Trailing = d.sniff(in.Window[in.Consumed:in.Declared], idx)
	d.logTrailing(in, r.Trailing)
	return r, nil
}

func (d *Detector) sniff(rem []byte, idx *schema.TableIndex) *Trailing {
	if len(rem) < 4 {
		for _, b := range rem {
			if b != 0 {
				return &Trailing{Kind: TrailingUnknown, Size: len(rem)}
			}
		}
		return &Trailing{Kind: TrailingPadding, Size: len(rem)}
	}

	hash := binary.LittleEndian.Uint32(rem)
	body := rem[4:]
	if hash == 0 {
		return &Trailing{Kind: TrailingPadding, Size: len(body)}
	}

	if s, ok := d.structures[hash]; ok {
		rec, _, err := d.engine.Decode(body, s.Schema, s.Name, 0)
		return &Trailing{Kind: TrailingStructure, Hash: hash, Table: s.Name, Size: len(body), Fields: rec.Fields, Err: err}
	}
	if idx != nil {
		if name, ok := idx.Lookup(hash); ok {
			return &Trailing{Kind: TrailingKnown, Hash: hash, Table: name, Size: len(body)}
		}
	}
	return &Trailing{Kind: TrailingUnknown, Hash: hash, Size: len(body)}
}

func (d *Detector) logTrailing(in Input, t *Trailing) {
	kv := []interface{}{"table", in.Table, "record_id", in.RecordID, "trailing", t.Kind, "size", t.Size}
	switch t.Kind {
	case TrailingPadding:
		level.Debug(d.logger).Log(append([]interface{}{"msg", "trailing padding"}, kv...)...)
	case TrailingStructure, TrailingKnown:
		kv = append(kv, "extra_table", t.Table)
		if t.Err != nil {
			kv = append(kv, "err", t.Err)
		}
		level.Info(d.logger).Log(append([]interface{}{"msg", "extra record"}, kv...)...)
	default:
		kv = append(kv, "hash", fmt.Sprintf("%08X", t.Hash))
		lvl := level.Debug(d.logger)
		if d.logUnknown {
			lvl = level.Warn(d.logger)
		}
		lvl.Log(append([]interface{}{"msg", "unknown trailing payload discarded"}, kv...)...)
	}
}
