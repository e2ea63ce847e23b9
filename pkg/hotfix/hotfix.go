// Package hotfix applies the validity codes of hotfix container entries.
package hotfix

import (
	"sort"

	"github.com/ssargent/dbcache/pkg/container"
)

type recordKey struct {
	table  uint32
	record uint32
}

func keyOf(e *container.RawEntry) recordKey {
	return recordKey{table: e.Header.TableHash, record: e.Header.RecordID}
}

// Consolidate reduces entries to the set a consumer should apply. Void entries
// are dropped. A superseded entry removes every push for the same table and
// record with a lower push id, then itself. The rest is ordered by push id,
// keeping container order between equal push ids.
func Consolidate(entries []*container.RawEntry) []*container.RawEntry {
	removed := make(map[*container.RawEntry]bool)

	var byKey map[recordKey][]*container.RawEntry
	for _, e := range entries {
		switch e.Header.Status {
		case container.StatusVoid:
			removed[e] = true
		case container.StatusSuperseded:
			if byKey == nil {
				byKey = group(entries)
			}
			for _, t := range byKey[keyOf(e)] {
				if t.Header.PushID < e.Header.PushID {
					removed[t] = true
				}
			}
			removed[e] = true
		}
	}

	out := make([]*container.RawEntry, 0, len(entries))
	for _, e := range entries {
		if !removed[e] {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Header.PushID < out[j].Header.PushID
	})
	return out
}

func group(entries []*container.RawEntry) map[recordKey][]*container.RawEntry {
	m := make(map[recordKey][]*container.RawEntry)
	for _, e := range entries {
		k := keyOf(e)
		m[k] = append(m[k], e)
	}
	return m
}

// Split separates consolidated entries into upserts and deletes. Entries with
// any other status are left out.
func Split(entries []*container.RawEntry) (upserts, deletes []*container.RawEntry) {
	for _, e := range entries {
		switch e.Header.Status {
		case container.StatusCurrent:
			upserts = append(upserts, e)
		case container.StatusDelete:
			deletes = append(deletes, e)
		}
	}
	return upserts, deletes
}
