package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Source supplies table schemas from an external description
type Source interface {
	// Load returns the schema for a table, or an error wrapping ErrSchemaNotFound
	Load(table string) (*TableSchema, error)
	// Tables lists every table name the source can describe
	Tables() ([]string, error)
}

// TieBreak picks a schema when several version predicates match
type TieBreak uint8

const (
	// TieBreakLast keeps the last match in declaration order
	TieBreakLast TieBreak = iota
	// TieBreakFirst keeps the first match in declaration order
	TieBreakFirst
)

// ParseTieBreak parses "last" or "first"
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(s) {
	case "", "last":
		return TieBreakLast, nil
	case "first":
		return TieBreakFirst, nil
	}
	return TieBreakLast, fmt.Errorf("unknown tie break %q", s)
}

func (t TieBreak) String() string {
	if t == TieBreakFirst {
		return "first"
	}
	return "last"
}

// RegistryConfig holds configuration for the schema registry
type RegistryConfig struct {
	Source   Source
	Cache    *Cache // created when nil
	TieBreak TieBreak
	Logger   log.Logger
}

// Registry resolves table schemas for builds. It is safe for concurrent use.
type Registry struct {
	source   Source
	cache    *Cache
	tieBreak TieBreak
	logger   log.Logger
}

// NewRegistry creates a registry over a source
func NewRegistry(config RegistryConfig) *Registry {
	cache := config.Cache
	if cache == nil {
		cache = NewCache()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Registry{
		source:   config.Source,
		cache:    cache,
		tieBreak: config.TieBreak,
		logger:   logger,
	}
}

// Cache returns the registry's cache
func (r *Registry) Cache() *Cache {
	return r.cache
}

// Load returns the table schema, reading the source at most once per table.
// A failed load is cached too so a missing table is not re-read for every record.
func (r *Registry) Load(table string) (*TableSchema, error) {
	if ct, ok := r.cache.table(table); ok {
		return ct.schema, ct.err
	}

	ts, err := r.load(table)
	return r.cache.storeTable(table, ts, err)
}

func (r *Registry) load(table string) (*TableSchema, error) {
	if r.source == nil {
		return nil, errors.Wrapf(ErrSchemaNotFound, "table %s: no schema source", table)
	}
	ts, err := r.source.Load(table)
	if err != nil {
		return nil, err
	}
	if ts.Hash == 0 {
		ts.Hash = TableHash(ts.Name)
	}
	for i := range ts.Versions {
		if err := ts.Versions[i].Validate(); err != nil {
			return nil, errors.Wrapf(err, "table %s version %d", table, i)
		}
	}
	level.Debug(r.logger).Log("msg", "loaded table schema", "table", table, "versions", len(ts.Versions))
	return ts, nil
}

// Resolve returns the version schema of table that applies to a build and record version
func (r *Registry) Resolve(table string, version Version, recordVersion uint32) (*VersionSchema, error) {
	key := resolveKey{table: table, version: version, recordVersion: recordVersion}
	if vs, ok := r.cache.resolved(key); ok {
		return vs, nil
	}

	ts, err := r.Load(table)
	if err != nil {
		return nil, err
	}

	var match *VersionSchema
	matches := 0
	for i := range ts.Versions {
		if !ts.Versions[i].Predicate.Matches(version, recordVersion) {
			continue
		}
		matches++
		if match == nil || r.tieBreak == TieBreakLast {
			match = &ts.Versions[i]
		}
	}
	if match == nil {
		return nil, errors.Wrapf(ErrSchemaVersionNotFound, "table %s build %s", table, version)
	}
	if matches > 1 {
		level.Debug(r.logger).Log("msg", "overlapping schema versions", "table", table, "build", version, "matches", matches, "tie_break", r.tieBreak)
	}

	r.cache.storeResolved(key, match)
	return match, nil
}

// Tables lists the table names known to the source
func (r *Registry) Tables() ([]string, error) {
	if r.source == nil {
		return nil, nil
	}
	return r.source.Tables()
}

// Index builds a hash to name index over every table the source knows plus extra names
func (r *Registry) Index(extra ...string) (*TableIndex, error) {
	names, err := r.Tables()
	if err != nil {
		return nil, errors.Wrap(err, "listing tables")
	}
	idx := NewTableIndex(names...)
	for _, n := range extra {
		idx.Add(n)
	}
	return idx, nil
}

type resolveKey struct {
	table         string
	version       Version
	recordVersion uint32
}

type cachedTable struct {
	schema *TableSchema
	err    error
}

// Cache holds loaded table schemas and resolved versions for one decode run
type Cache struct {
	tables   map[string]cachedTable
	resolves map[resolveKey]*VersionSchema
	mutex    sync.RWMutex
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		tables:   make(map[string]cachedTable),
		resolves: make(map[resolveKey]*VersionSchema),
	}
}

func (c *Cache) table(name string) (cachedTable, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	ct, ok := c.tables[name]
	return ct, ok
}

// storeTable keeps the first stored result when two loads race
func (c *Cache) storeTable(name string, ts *TableSchema, err error) (*TableSchema, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if ct, ok := c.tables[name]; ok {
		return ct.schema, ct.err
	}
	c.tables[name] = cachedTable{schema: ts, err: err}
	return ts, err
}

func (c *Cache) resolved(key resolveKey) (*VersionSchema, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	vs, ok := c.resolves[key]
	return vs, ok
}

func (c *Cache) storeResolved(key resolveKey, vs *VersionSchema) {
	c.mutex.Lock()
	c.resolves[key] = vs
	c.mutex.Unlock()
}

// Size returns the number of cached tables, including failed loads
func (c *Cache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.tables)
}

// Clear drops every cached entry
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.tables = make(map[string]cachedTable)
	c.resolves = make(map[resolveKey]*VersionSchema)
}
