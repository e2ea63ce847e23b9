package schema

import (
	"sort"
	"strings"
	"sync"
)

var hashTable = [16]uint32{
	0x486E26EE, 0xDCAA16B3, 0xE1918EEF, 0x202DAFDB,
	0x341C7DC7, 0x1C365303, 0x40EF2D37, 0x65FD5E49,
	0xD6057177, 0x904ECE93, 0x1C38024F, 0x98FD323B,
	0xE3061AE7, 0xA39B0FA1, 0x9797F25F, 0xE4444563,
}

// HashBytes folds s with the client's table-name hash. It does not change case.
func HashBytes(s string) uint32 {
	v := uint32(0x7fed7fed)
	x := uint32(0xeeeeeeee)
	for i := 0; i < len(s); i++ {
		c := uint32(s[i])
		v += x
		v ^= hashTable[(c>>4)&0xf] - hashTable[c&0xf]
		x = x*33 + v + c + 3
	}
	return v
}

// TableHash returns the hash the client stores for a table name
func TableHash(name string) uint32 {
	return HashBytes(strings.ToUpper(name))
}

// TableIndex maps table hashes back to names
type TableIndex struct {
	names map[uint32]string
	mutex sync.RWMutex
}

// NewTableIndex creates an index over the given table names
func NewTableIndex(names ...string) *TableIndex {
	idx := &TableIndex{names: make(map[uint32]string, len(names))}
	for _, n := range names {
		idx.names[TableHash(n)] = n
	}
	return idx
}

// Add registers a table name
func (idx *TableIndex) Add(name string) uint32 {
	h := TableHash(name)
	idx.mutex.Lock()
	idx.names[h] = name
	idx.mutex.Unlock()
	return h
}

// Lookup returns the table name for a hash
func (idx *TableIndex) Lookup(hash uint32) (string, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	name, ok := idx.names[hash]
	return name, ok
}

// Size returns the number of indexed names
func (idx *TableIndex) Size() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return len(idx.names)
}

// Names returns all indexed names sorted
func (idx *TableIndex) Names() []string {
	idx.mutex.RLock()
	names := make([]string, 0, len(idx.names))
	for _, n := range idx.names {
		names = append(names, n)
	}
	idx.mutex.RUnlock()

	sort.Strings(names)
	return names
}
