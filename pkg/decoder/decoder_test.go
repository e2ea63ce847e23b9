package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/dbcache/pkg/codec"
	"github.com/ssargent/dbcache/pkg/container"
	"github.com/ssargent/dbcache/pkg/drift"
	"github.com/ssargent/dbcache/pkg/schema"
)

func u32s(values ...uint32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func spellSource() *schema.MemorySource {
	return schema.NewMemorySource(
		schema.NewTableSchema("SPELL", schema.VersionSchema{
			IDField: "ID",
			Fields: []schema.FieldSchema{
				{Name: "ID", Bits: 32},
				{Name: "Value", Bits: 32},
			},
		}),
		schema.NewTableSchema("SpellName", schema.VersionSchema{
			Fields: []schema.FieldSchema{
				{Name: "ID", Kind: schema.KindNonInlineID},
				{Name: "Name", Kind: schema.KindDynamicString},
			},
		}),
	)
}

func newDecoder(src schema.Source, workers int) *Decoder {
	return New(Config{
		Registry: schema.NewRegistry(schema.RegistryConfig{Source: src}),
		Workers:  workers,
	})
}

type entry struct {
	header container.EntryHeader
	data   []byte
}

func build(t testing.TB, version uint32, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := container.NewStreamWriter(&buf, container.WriterConfig{Version: version, Build: 33978})
	require.NoError(t, err)
	for _, e := range entries {
		_, err := w.Put(e.header, e.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecoder_EndToEnd(t *testing.T) {
	h := container.EntryHeader{PushID: 4242, TableHash: schema.TableHash("SPELL"), RecordID: 10, Status: container.StatusCurrent}
	data := build(t, 7, entry{header: h, data: u32s(10, 20)})

	run, err := newDecoder(spellSource(), 1).Decode(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, run.Results, 1)

	res := run.Results[0]
	require.NoError(t, res.Err)
	require.True(t, res.Decoded())
	assert.Equal(t, "SPELL", res.Table)

	want := []codec.Field{{Name: "ID", Value: uint32(10)}, {Name: "Value", Value: uint32(20)}}
	if diff := cmp.Diff(want, res.Record.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, int32(4242), res.Entry.Header.PushID)
	assert.Equal(t, uint32(10), res.Entry.Header.RecordID)
	assert.Equal(t, container.StatusCurrent, res.Entry.Header.Status)
	assert.Equal(t, Digest(u32s(10, 20)), res.Digest)
	assert.Len(t, res.Digest, 32)
	assert.Equal(t, "clean", res.Drift.Kind())
	assert.False(t, res.Record.Trailing)

	assert.Equal(t, 1, run.Summary.Decoded)
	assert.Equal(t, uint32(33978), run.Summary.Build)
	assert.NotEmpty(t, run.Summary.RunID)
	assert.True(t, run.Summary.OK())
}

func TestDecoder_PerRecordFailuresAreIsolated(t *testing.T) {
	spell := schema.TableHash("SPELL")
	entries := []entry{
		{header: container.EntryHeader{PushID: 1, TableHash: spell, RecordID: 1, Status: container.StatusCurrent}, data: u32s(1, 2)},
		{header: container.EntryHeader{PushID: 2, TableHash: spell, RecordID: 2, Status: container.StatusCurrent}, data: []byte{9, 9, 9, 9, 9, 9}},
		{header: container.EntryHeader{PushID: 3, TableHash: 0xabad1dea, RecordID: 3, Status: container.StatusCurrent}, data: []byte{1}},
		{header: container.EntryHeader{PushID: 4, TableHash: spell, RecordID: 4, Status: container.StatusDelete}},
		{header: container.EntryHeader{PushID: 5, TableHash: schema.TableHash("SpellName"), RecordID: 77, Status: container.StatusCurrent}, data: []byte("Fireball\x00")},
	}
	data := build(t, 8, entries...)

	var logs bytes.Buffer
	d := New(Config{
		Registry: schema.NewRegistry(schema.RegistryConfig{Source: spellSource()}),
		Workers:  3,
		Logger:   log.NewLogfmtLogger(log.NewSyncWriter(&logs)),
	})
	run, err := d.Decode(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, run.Results, 5)

	for i, res := range run.Results {
		assert.Equal(t, i, res.Entry.Index)
	}

	assert.True(t, run.Results[0].Decoded())

	partial := run.Results[1]
	assert.True(t, errors.Is(partial.Err, codec.ErrFieldDecode))
	require.NotNil(t, partial.Record)
	assert.Equal(t, []string{"ID"}, partial.Record.Names())
	assert.Equal(t, entries[1].data, partial.Raw)

	unknown := run.Results[2]
	assert.Equal(t, UnknownTable, unknown.Table)
	assert.True(t, errors.Is(unknown.Err, schema.ErrSchemaNotFound))
	assert.Equal(t, []byte{1}, unknown.Raw)

	deleted := run.Results[3]
	assert.NoError(t, deleted.Err)
	assert.Nil(t, deleted.Record)
	assert.Equal(t, "", deleted.Digest)

	name, ok := run.Results[4].Record.Get("Name")
	require.True(t, ok)
	assert.Equal(t, "Fireball", name)
	id, _ := run.Results[4].Record.Get("ID")
	assert.Equal(t, uint32(77), id)

	assert.Equal(t, Summary{
		RunID:    run.Summary.RunID,
		Source:   "dbcache",
		Build:    33978,
		Entries:  5,
		Decoded:  2,
		Empty:    1,
		Raw:      1,
		Failed:   1,
		Duration: run.Summary.Duration,
	}, run.Summary)

	assert.Contains(t, logs.String(), "record failed to decode")
	assert.Contains(t, logs.String(), "record_id=2")
}

func TestDecoder_SchemaVersionNotFound(t *testing.T) {
	src := schema.NewMemorySource(schema.NewTableSchema("SPELL", schema.VersionSchema{
		Predicate: schema.Predicate{Builds: []uint32{1}},
		IDField:   "ID",
		Fields:    []schema.FieldSchema{{Name: "ID", Bits: 32}},
	}))
	h := container.EntryHeader{TableHash: schema.TableHash("SPELL"), RecordID: 1, Status: container.StatusCurrent}
	data := build(t, 7, entry{header: h, data: u32s(1)})

	run, err := newDecoder(src, 2).Decode(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, errors.Is(run.Results[0].Err, schema.ErrSchemaVersionNotFound))
	assert.False(t, run.Summary.OK())
}

func TestDecoder_TrailingTactKey(t *testing.T) {
	payload := append(u32s(5, 6), u32s(schema.TableHash("TactKey"))...)
	payload = append(payload, make([]byte, 24)...)
	h := container.EntryHeader{TableHash: schema.TableHash("SPELL"), RecordID: 5, Status: container.StatusCurrent}
	data := build(t, 9, entry{header: h, data: payload})

	run, err := newDecoder(spellSource(), 1).Decode(context.Background(), data)
	require.NoError(t, err)

	res := run.Results[0]
	require.True(t, res.Decoded())
	assert.True(t, res.Record.Trailing)
	require.NotNil(t, res.Drift.Trailing)
	assert.Equal(t, drift.TrailingStructure, res.Drift.Trailing.Kind)
	assert.Equal(t, 1, run.Summary.Trailing)
}

func TestDecoder_TrailingKnownTable(t *testing.T) {
	payload := append(u32s(5, 6), u32s(schema.TableHash("SpellName"), 5)...)
	h := container.EntryHeader{TableHash: schema.TableHash("SPELL"), RecordID: 5, Status: container.StatusCurrent}
	data := build(t, 7, entry{header: h, data: payload})

	run, err := newDecoder(spellSource(), 1).Decode(context.Background(), data)
	require.NoError(t, err)

	tr := run.Results[0].Drift.Trailing
	require.NotNil(t, tr)
	assert.Equal(t, drift.TrailingKnown, tr.Kind)
	assert.Equal(t, "SpellName", tr.Table)
	assert.Equal(t, 4, tr.Size)
}

func TestDecoder_OrderWithManyWorkers(t *testing.T) {
	var entries []entry
	for i := uint32(0); i < 200; i++ {
		entries = append(entries, entry{
			header: container.EntryHeader{PushID: int32(i), TableHash: schema.TableHash("SPELL"), RecordID: i, Status: container.StatusCurrent},
			data:   u32s(i, i*2),
		})
	}
	data := build(t, 8, entries...)

	run, err := newDecoder(spellSource(), 8).Decode(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, run.Results, 200)
	for i, res := range run.Results {
		v, ok := res.Record.Get("Value")
		require.True(t, ok)
		assert.Equal(t, uint32(i*2), v)
	}
}

func TestDecoder_FormatErrorIsFatal(t *testing.T) {
	h := container.EntryHeader{TableHash: schema.TableHash("SPELL"), RecordID: 1, Status: container.StatusCurrent}
	data := build(t, 7, entry{header: h, data: u32s(1, 2)}, entry{header: h, data: u32s(3, 4)})
	copy(data[container.HeaderSize+container.ShapeV7.EntryHeaderSize()+8:], "BAD!")

	_, err := newDecoder(spellSource(), 1).Decode(context.Background(), data)
	assert.True(t, errors.Is(err, container.ErrFormat))
}

func TestDecoder_CancelledContext(t *testing.T) {
	h := container.EntryHeader{TableHash: schema.TableHash("SPELL"), RecordID: 1, Status: container.StatusCurrent}
	data := build(t, 7, entry{header: h, data: u32s(1, 2)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newDecoder(spellSource(), 1).Decode(ctx, data)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDecoder_DecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DBCache.bin")
	w, err := container.NewWriter(container.WriterConfig{FilePath: path, Version: 8, Build: 33978})
	require.NoError(t, err)
	_, err = w.Put(container.EntryHeader{TableHash: schema.TableHash("SPELL"), RecordID: 3, Status: container.StatusCurrent}, u32s(3, 4))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	run, err := newDecoder(spellSource(), 1).DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Summary.Decoded)

	_, err = newDecoder(spellSource(), 1).DecodeFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	assert.Equal(t, "", Digest(nil))
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", Digest([]byte("abc")))
}

func creatureSource() *schema.MemorySource {
	return schema.NewMemorySource(schema.NewTableSchema("CreatureCache", schema.VersionSchema{
		Predicate: schema.Predicate{RecordVersions: []uint32{11}},
		IDField:   "ID",
		Layout:    schema.LayoutBitPacked,
		Fields: []schema.FieldSchema{
			{Name: "NameLen", Bits: 11, Packed: true},
			{Name: "Leader", Bits: 1, Packed: true},
			{Name: "ID", Kind: schema.KindNonInlineID},
			{Name: "Type", Bits: 32},
			{Name: "Name", Kind: schema.KindSizedString, LengthField: "NameLen"},
		},
	}))
}

func TestDecoder_DecodeWDB(t *testing.T) {
	// NameLen=3 and Leader=0 pack into 00000000 01100000
	bob := []byte{0x00, 0x60, 7, 0, 0, 0, 'B', 'o', 'b'}
	padded := append(append([]byte(nil), bob...), 0xee, 0xee)

	h := container.WDBHeader{Identifier: "WMOB", Build: 45745, Locale: "enUS", RecordVersion: 11}
	data := container.EncodeWDB(h,
		container.WDBRecord{ID: 1, Data: bob},
		container.WDBRecord{ID: 2, Data: padded},
		container.WDBRecord{ID: 3, Data: bob},
	)

	run, err := newDecoder(creatureSource(), 2).DecodeWDB(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, run.Results, 3)
	assert.Equal(t, "wdb", run.Summary.Source)
	assert.Equal(t, 3, run.Summary.Decoded)

	for _, res := range run.Results {
		require.True(t, res.Decoded(), "record %d: %v", res.Entry.Header.RecordID, res.Err)
		assert.Equal(t, "CreatureCache", res.Table)
		name, _ := res.Record.Get("Name")
		assert.Equal(t, "Bob", name)
		id, _ := res.Record.Get("ID")
		assert.Equal(t, res.Entry.Header.RecordID, id)
	}

	assert.Equal(t, "clean", run.Results[0].Drift.Kind())
	assert.Equal(t, "reposition", run.Results[1].Drift.Kind())
	assert.Equal(t, -2, run.Results[1].Drift.Drift)
	assert.True(t, run.Results[1].Record.Trailing)
}

func TestDecoder_DecodeWDBStopsAtDeclaredLength(t *testing.T) {
	src := schema.NewMemorySource(schema.NewTableSchema("CreatureCache", schema.VersionSchema{
		IDField: "ID",
		Fields: []schema.FieldSchema{
			{Name: "ID", Kind: schema.KindNonInlineID},
			{Name: "A", Bits: 32},
			{Name: "B", Bits: 32},
		},
	}))

	h := container.WDBHeader{Identifier: "WMOB", Build: 45745, Locale: "enUS", RecordVersion: 11}
	data := container.EncodeWDB(h,
		container.WDBRecord{ID: 100, Data: u32s(1)},
		container.WDBRecord{ID: 200, Data: u32s(2, 3)},
	)

	run, err := newDecoder(src, 1).DecodeWDB(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, run.Results, 2)

	// B lies past the declared end and is left undecoded
	first := run.Results[0]
	require.True(t, first.Decoded(), "%v", first.Err)
	a, _ := first.Record.Get("A")
	assert.Equal(t, uint32(1), a)
	_, ok := first.Record.Get("B")
	assert.False(t, ok)
	assert.Equal(t, 0, first.Drift.Drift)
	assert.Equal(t, "clean", first.Drift.Kind())

	second := run.Results[1]
	require.True(t, second.Decoded(), "%v", second.Err)
	id, _ := second.Record.Get("ID")
	assert.Equal(t, uint32(200), id)
	b, _ := second.Record.Get("B")
	assert.Equal(t, uint32(3), b)
	assert.Equal(t, 2, run.Summary.Decoded)
}

func TestDecoder_DecodeWDBFieldSplitByDeclaredLength(t *testing.T) {
	// the declared length stops two bytes into Type
	short := []byte{0x00, 0x60, 7, 0}
	bob := []byte{0x00, 0x60, 7, 0, 0, 0, 'B', 'o', 'b'}

	h := container.WDBHeader{Identifier: "WMOB", Build: 45745, Locale: "enUS", RecordVersion: 11}
	data := container.EncodeWDB(h,
		container.WDBRecord{ID: 1, Data: short},
		container.WDBRecord{ID: 2, Data: bob},
	)

	run, err := newDecoder(creatureSource(), 1).DecodeWDB(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, run.Results, 2)

	res := run.Results[0]
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, codec.ErrFieldDecode))
	assert.False(t, res.Decoded())
	assert.Equal(t, short, res.Raw)
	require.NotNil(t, res.Record)
	_, ok := res.Record.Get("Type")
	assert.False(t, ok)

	next := run.Results[1]
	require.True(t, next.Decoded(), "%v", next.Err)
	name, _ := next.Record.Get("Name")
	assert.Equal(t, "Bob", name)

	assert.Equal(t, 1, run.Summary.Failed)
	assert.Equal(t, 1, run.Summary.Decoded)
}

func TestDecoder_DecodeWDBUnknownIdentifier(t *testing.T) {
	data := container.EncodeWDB(container.WDBHeader{Identifier: "WXYZ", Locale: "enUS"})
	_, err := newDecoder(creatureSource(), 1).DecodeWDB(context.Background(), data)
	assert.True(t, errors.Is(err, container.ErrFormat))
}
