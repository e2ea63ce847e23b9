package schema

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MemorySource serves table schemas held in memory
type MemorySource struct {
	tables map[string]*TableSchema
	mutex  sync.RWMutex
}

// NewMemorySource creates a source over the given tables
func NewMemorySource(tables ...*TableSchema) *MemorySource {
	s := &MemorySource{tables: make(map[string]*TableSchema, len(tables))}
	for _, t := range tables {
		s.Put(t)
	}
	return s
}

// Put adds or replaces a table
func (s *MemorySource) Put(t *TableSchema) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tables[t.Name] = t
}

// Load returns a copy of the named table
func (s *MemorySource) Load(table string) (*TableSchema, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return nil, errors.Wrapf(ErrSchemaNotFound, "table %s", table)
	}
	cp := *t
	cp.Versions = make([]VersionSchema, len(t.Versions))
	copy(cp.Versions, t.Versions)
	return &cp, nil
}

// Tables lists the held table names
func (s *MemorySource) Tables() ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// YAMLSource reads one <Table>.yaml file per table from a directory
type YAMLSource struct {
	Dir string
}

// NewYAMLSource creates a source over dir
func NewYAMLSource(dir string) *YAMLSource {
	return &YAMLSource{Dir: dir}
}

type yamlTable struct {
	Name     string        `yaml:"name"`
	Versions []yamlVersion `yaml:"versions"`
}

type yamlVersion struct {
	Builds         []uint32       `yaml:"builds"`
	BuildRanges    []yamlRange    `yaml:"build_ranges"`
	Versions       []yamlVerRange `yaml:"versions"`
	RecordVersions []uint32       `yaml:"record_versions"`
	IDField        string         `yaml:"id_field"`
	Layout         string         `yaml:"layout"`
	Fields         []yamlField    `yaml:"fields"`
}

type yamlRange struct {
	Min uint32 `yaml:"min"`
	Max uint32 `yaml:"max"`
}

type yamlVerRange struct {
	Min string `yaml:"min"`
	Max string `yaml:"max"`
}

type yamlField struct {
	Name        string `yaml:"name"`
	Bits        int    `yaml:"bits"`
	Signed      bool   `yaml:"signed"`
	Array       int    `yaml:"array"`
	Kind        string `yaml:"kind"`
	Packed      bool   `yaml:"packed"`
	LengthField string `yaml:"length_field"`
}

// Load reads and converts <Dir>/<table>.yaml
func (s *YAMLSource) Load(table string) (*TableSchema, error) {
	if table == "" || strings.ContainsAny(table, `/\`) {
		return nil, errors.Wrapf(ErrSchemaNotFound, "invalid table name %q", table)
	}

	path := filepath.Join(s.Dir, table+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrSchemaNotFound, "table %s", table)
		}
		return nil, errors.Wrapf(err, "reading schema %s", path)
	}

	var doc yamlTable
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing schema %s", path)
	}
	if doc.Name == "" {
		doc.Name = table
	}

	ts := NewTableSchema(doc.Name)
	for i, yv := range doc.Versions {
		vs, err := yv.convert()
		if err != nil {
			return nil, errors.Wrapf(err, "schema %s version %d", path, i)
		}
		ts.Versions = append(ts.Versions, vs)
	}
	return ts, nil
}

// Tables lists the table names derived from the *.yaml file names
func (s *YAMLSource) Tables() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

func (yv yamlVersion) convert() (VersionSchema, error) {
	vs := VersionSchema{
		Predicate: Predicate{
			Builds:         yv.Builds,
			RecordVersions: yv.RecordVersions,
		},
		IDField: yv.IDField,
	}

	switch strings.ToLower(yv.Layout) {
	case "", "inline":
		vs.Layout = LayoutInline
	case "bitpacked", "bit_packed":
		vs.Layout = LayoutBitPacked
	default:
		return vs, errors.Errorf("unknown layout %q", yv.Layout)
	}

	for _, r := range yv.BuildRanges {
		vs.Predicate.BuildRanges = append(vs.Predicate.BuildRanges, BuildRange{Min: r.Min, Max: r.Max})
	}
	for _, r := range yv.Versions {
		lo, err := ParseVersion(r.Min)
		if err != nil {
			return vs, err
		}
		hi, err := ParseVersion(r.Max)
		if err != nil {
			return vs, err
		}
		vs.Predicate.VersionRanges = append(vs.Predicate.VersionRanges, VersionRange{Min: lo, Max: hi})
	}

	for _, yf := range yv.Fields {
		kind, err := ParseKind(yf.Kind)
		if err != nil {
			return vs, err
		}
		vs.Fields = append(vs.Fields, FieldSchema{
			Name:        yf.Name,
			Bits:        yf.Bits,
			Signed:      yf.Signed,
			ArrayLength: yf.Array,
			Kind:        kind,
			Packed:      yf.Packed,
			LengthField: yf.LengthField,
		})
	}
	return vs, nil
}
