// Package schema resolves per-table, per-build field layouts for cached client records.
//
// A table's history is a list of VersionSchema values, each guarded by a Predicate over
// build numbers, full client versions and record versions. The Registry loads a table
// once through a Source, validates every version and memoises resolutions in a Cache
// owned by the registry instance:
//
//	reg := schema.NewRegistry(schema.RegistryConfig{Source: schema.NewYAMLSource(dir)})
//	vs, err := reg.Resolve("SpellName", schema.BuildOnly(33978), 0)
//	if errors.Is(err, schema.ErrSchemaVersionNotFound) {
//	    // surface the record as raw bytes
//	}
//
// When several predicates match, TieBreakLast keeps the last declared version.
//
// Table names are hashed the way the client does it (TableHash uppercases first);
// TableIndex maps the hashes found in containers back to names.
package schema
