package container

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/dbcache/pkg/schema"
)

func TestWDBReader(t *testing.T) {
	h := WDBHeader{Identifier: "WMOB", Build: 45745, Locale: "enUS", RecordSize: 0, RecordVersion: 11, FormatVersion: 9}
	data := EncodeWDB(h,
		WDBRecord{ID: 1, Data: []byte{1, 2, 3}},
		WDBRecord{ID: 2, Data: []byte{4, 5}},
	)

	// identifiers are stored reversed
	assert.Equal(t, "BOMW", string(data[0:4]))
	assert.Equal(t, "SUne", string(data[8:12]))

	r, err := NewWDBReader(data)
	require.NoError(t, err)
	assert.Equal(t, h, r.Header())

	name, ok := r.Header().TableName()
	require.True(t, ok)
	assert.Equal(t, "CreatureCache", name)

	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, uint32(1), entries[0].Header.RecordID)
	assert.Equal(t, int32(3), entries[0].Header.DataSize)
	assert.Equal(t, schema.TableHash("CreatureCache"), entries[0].Header.TableHash)
	assert.Equal(t, StatusCurrent, entries[0].Header.Status)
	assert.Equal(t, []byte{1, 2, 3}, entries[0].Data)
	assert.Equal(t, int64(WDBHeaderSize+WDBEntryHeaderSize), entries[0].PayloadOffset)

	assert.Equal(t, 1, entries[1].Index)
	assert.Equal(t, []byte{4, 5}, entries[1].Data)

	// the zero-length terminator ends iteration
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestWDBReader_Tables(t *testing.T) {
	testCases := map[string]string{
		"WMOB": "CreatureCache",
		"WGOB": "GameObjectCache",
		"WPTX": "PageTextCache",
		"WQST": "QuestCache",
		"WNPC": "NPCCache",
		"WPTN": "PetitionCache",
	}
	for id, want := range testCases {
		got, ok := WDBHeader{Identifier: id}.TableName()
		assert.True(t, ok, id)
		assert.Equal(t, want, got, id)
	}

	_, ok := WDBHeader{Identifier: "WXYZ"}.TableName()
	assert.False(t, ok)
}

func TestWDBReader_Errors(t *testing.T) {
	_, err := NewWDBReader([]byte("BOMW"))
	assert.True(t, errors.Is(err, ErrFormat))

	data := EncodeWDB(WDBHeader{Identifier: "WQST", Locale: "enUS"}, WDBRecord{ID: 5, Data: make([]byte, 16)})
	// drop the terminator and half the record
	r, err := NewWDBReader(data[:WDBHeaderSize+WDBEntryHeaderSize+8])
	require.NoError(t, err)
	_, err = r.Next()
	assert.True(t, errors.Is(err, ErrFormat))

	r, err = NewWDBReader(data[:WDBHeaderSize+4])
	require.NoError(t, err)
	_, err = r.Next()
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestOpenWDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questcache.wdb")
	data := EncodeWDB(WDBHeader{Identifier: "WQST", Build: 40000, Locale: "enUS", RecordVersion: 13}, WDBRecord{ID: 9, Data: []byte{1}})
	require.NoError(t, os.WriteFile(path, data, 0600))

	r, err := OpenWDB(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(13), r.Header().RecordVersion)

	it := r.Iterator()
	require.True(t, it.Next())
	assert.Equal(t, uint32(9), it.Entry().Header.RecordID)
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())

	_, err = OpenWDB(filepath.Join(t.TempDir(), "nope.wdb"))
	assert.Error(t, err)
}

func TestParseShape(t *testing.T) {
	s, err := ParseShape("V9B")
	require.NoError(t, err)
	assert.Equal(t, ShapeV9B, s)

	_, err = ParseShape("v10")
	assert.Error(t, err)

	assert.Equal(t, 24, ShapeV7.EntryHeaderSize())
	assert.Equal(t, 28, ShapeV8.EntryHeaderSize())
	assert.Equal(t, 32, ShapeV9A.EntryHeaderSize())
	assert.Equal(t, "superseded", StatusSuperseded.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
