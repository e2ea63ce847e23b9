package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind tags how a field's bytes are interpreted
type Kind uint8

const (
	KindInteger Kind = iota
	KindFloat
	KindDynamicString
	KindNonInlineID
	// KindSizedString is a string whose byte length was read from a bit-packed prologue field
	KindSizedString
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	case KindDynamicString:
		return "string"
	case KindNonInlineID:
		return "noninline_id"
	case KindSizedString:
		return "sized_string"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind maps the textual kind names used by schema sources
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "int", "integer":
		return KindInteger, nil
	case "float":
		return KindFloat, nil
	case "string", "locstring", "cstring":
		return KindDynamicString, nil
	case "noninline_id", "noninline":
		return KindNonInlineID, nil
	case "sized_string":
		return KindSizedString, nil
	}
	return 0, fmt.Errorf("unknown field kind %q", s)
}

// Layout selects the record layout a version schema decodes with
type Layout uint8

const (
	// LayoutInline is the plain hotfix layout: every field byte-aligned in declared order
	LayoutInline Layout = iota
	// LayoutBitPacked is the cache layout: bit-packed prologue, byte-aligned body, strings last
	LayoutBitPacked
)

// FieldSchema describes one declared field of a record
type FieldSchema struct {
	Name        string
	Bits        int // 0 means variable: float or string depending on Kind
	Signed      bool
	ArrayLength int // 0 means scalar
	Kind        Kind
	Packed      bool   // bit-packed prologue field (LayoutBitPacked only)
	LengthField string // prologue field holding the byte length of a KindSizedString
}

// IsArray reports whether the field expands to indexed elements
func (f FieldSchema) IsArray() bool {
	return f.ArrayLength > 0
}

// ElementName returns the name of the i-th array element
func (f FieldSchema) ElementName(i int) string {
	return f.Name + "[" + strconv.Itoa(i) + "]"
}

// Version is a client version expansion.major.minor.build. A zero Expansion
// means only the build number is known.
type Version struct {
	Expansion uint16
	Major     uint16
	Minor     uint16
	Build     uint32
}

// BuildOnly returns a Version carrying just a build number
func BuildOnly(build uint32) Version {
	return Version{Build: build}
}

// ParseVersion parses "9.0.1.33978" or a bare build number "33978"
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	switch len(parts) {
	case 1:
		b, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return Version{}, errors.Wrapf(err, "parsing build %q", s)
		}
		return BuildOnly(uint32(b)), nil
	case 4:
		var nums [3]uint16
		for i := 0; i < 3; i++ {
			n, err := strconv.ParseUint(parts[i], 10, 16)
			if err != nil {
				return Version{}, errors.Wrapf(err, "parsing version %q", s)
			}
			nums[i] = uint16(n)
		}
		b, err := strconv.ParseUint(parts[3], 10, 32)
		if err != nil {
			return Version{}, errors.Wrapf(err, "parsing version %q", s)
		}
		return Version{Expansion: nums[0], Major: nums[1], Minor: nums[2], Build: uint32(b)}, nil
	}
	return Version{}, fmt.Errorf("malformed version %q", s)
}

func (v Version) String() string {
	if v.Expansion == 0 {
		return strconv.FormatUint(uint64(v.Build), 10)
	}
	return fmt.Sprintf("%d.%d.%d.%d", v.Expansion, v.Major, v.Minor, v.Build)
}

// Compare orders versions by expansion, major, minor, then build
func (v Version) Compare(o Version) int {
	switch {
	case v.Expansion != o.Expansion:
		return cmpUint(uint32(v.Expansion), uint32(o.Expansion))
	case v.Major != o.Major:
		return cmpUint(uint32(v.Major), uint32(o.Major))
	case v.Minor != o.Minor:
		return cmpUint(uint32(v.Minor), uint32(o.Minor))
	}
	return cmpUint(v.Build, o.Build)
}

func cmpUint(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// BuildRange is an inclusive build number range
type BuildRange struct {
	Min uint32
	Max uint32
}

// Contains reports whether build falls in the range
func (r BuildRange) Contains(build uint32) bool {
	return build >= r.Min && build <= r.Max
}

// VersionRange is an inclusive range of full client versions
type VersionRange struct {
	Min Version
	Max Version
}

// Contains reports whether v falls in the range. When v only carries a build
// number the comparison falls back to build numbers.
func (r VersionRange) Contains(v Version) bool {
	if v.Expansion == 0 {
		return v.Build >= r.Min.Build && v.Build <= r.Max.Build
	}
	return v.Compare(r.Min) >= 0 && v.Compare(r.Max) <= 0
}

// Predicate decides whether a VersionSchema applies to a build and record version.
// An empty build clause applies to every build; an empty RecordVersions list
// applies to every record version.
type Predicate struct {
	Builds         []uint32
	BuildRanges    []BuildRange
	VersionRanges  []VersionRange
	RecordVersions []uint32
}

// Matches evaluates the predicate
func (p Predicate) Matches(v Version, recordVersion uint32) bool {
	if len(p.RecordVersions) > 0 {
		found := false
		for _, rv := range p.RecordVersions {
			if rv == recordVersion {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(p.Builds) == 0 && len(p.BuildRanges) == 0 && len(p.VersionRanges) == 0 {
		return true
	}
	for _, b := range p.Builds {
		if b == v.Build {
			return true
		}
	}
	for _, r := range p.BuildRanges {
		if r.Contains(v.Build) {
			return true
		}
	}
	for _, r := range p.VersionRanges {
		if r.Contains(v) {
			return true
		}
	}
	return false
}

// VersionSchema is the field layout of a table for the builds its predicate matches
type VersionSchema struct {
	Predicate Predicate
	Fields    []FieldSchema
	IDField   string
	Layout    Layout
}

// Validate checks the identifier and layout invariants. It fills IDField from
// the single NonInlineID field when IDField is empty.
func (vs *VersionSchema) Validate() error {
	var nonInline []string
	names := make(map[string]FieldSchema, len(vs.Fields))
	for _, f := range vs.Fields {
		if f.Name == "" {
			return errors.Wrap(ErrInvariantViolation, "field without a name")
		}
		names[f.Name] = f
		if f.Kind == KindNonInlineID {
			nonInline = append(nonInline, f.Name)
		}
	}

	switch {
	case len(nonInline) > 1:
		return errors.Wrapf(ErrInvariantViolation, "multiple non-inline id fields %v", nonInline)
	case len(nonInline) == 1:
		if vs.IDField == "" {
			vs.IDField = nonInline[0]
		} else if vs.IDField != nonInline[0] {
			return errors.Wrapf(ErrInvariantViolation, "id field %q disagrees with non-inline id %q", vs.IDField, nonInline[0])
		}
	default:
		// without a non-inline id the record id is read from the payload, so
		// IDField must name one of the declared fields
		if vs.IDField == "" {
			return errors.Wrap(ErrInvariantViolation, "no id field")
		}
		if _, ok := names[vs.IDField]; !ok {
			return errors.Wrapf(ErrInvariantViolation, "id field %q not declared", vs.IDField)
		}
	}

	if vs.Layout == LayoutBitPacked {
		return vs.validateBitPacked(names)
	}
	for _, f := range vs.Fields {
		if f.Packed || f.Kind == KindSizedString {
			return errors.Wrapf(ErrInvariantViolation, "field %q needs the bit-packed layout", f.Name)
		}
	}
	return nil
}

func (vs *VersionSchema) validateBitPacked(names map[string]FieldSchema) error {
	inPrologue := true
	for _, f := range vs.Fields {
		if f.Packed {
			if !inPrologue {
				return errors.Wrapf(ErrInvariantViolation, "packed field %q after byte-aligned fields", f.Name)
			}
			if f.Bits <= 0 || f.Bits > 32 || f.IsArray() {
				return errors.Wrapf(ErrInvariantViolation, "packed field %q must be a scalar of 1-32 bits", f.Name)
			}
			continue
		}
		inPrologue = false
		if f.Kind == KindSizedString {
			lf, ok := names[f.LengthField]
			if !ok || !lf.Packed {
				return errors.Wrapf(ErrInvariantViolation, "sized string %q has no packed length field %q", f.Name, f.LengthField)
			}
			if f.IsArray() {
				return errors.Wrapf(ErrInvariantViolation, "sized string %q cannot be an array", f.Name)
			}
		}
	}
	return nil
}

// TableSchema is a table's full layout history
type TableSchema struct {
	Name     string
	Hash     uint32
	Versions []VersionSchema
}

// NewTableSchema builds a TableSchema and computes its hash
func NewTableSchema(name string, versions ...VersionSchema) *TableSchema {
	return &TableSchema{Name: name, Hash: TableHash(name), Versions: versions}
}
