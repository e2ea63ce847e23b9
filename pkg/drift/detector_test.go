package drift

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/dbcache/pkg/container"
	"github.com/ssargent/dbcache/pkg/schema"
)

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func strictInput(window []byte, consumed int) Input {
	return Input{Table: "SpellName", RecordID: 17, Offset: 100, Window: window, Declared: len(window), Consumed: consumed}
}

func TestDetector_ExactConsumption(t *testing.T) {
	d := NewDetector(DetectorConfig{})

	r, err := d.Check(strictInput(make([]byte, 8), 8), ModeStrict)
	require.NoError(t, err)
	assert.Nil(t, r.Trailing)
	assert.Equal(t, "clean", r.Kind())
	assert.Equal(t, 8, r.End)
}

func TestDetector_Overrun(t *testing.T) {
	d := NewDetector(DetectorConfig{})

	_, err := d.Check(strictInput(make([]byte, 8), 12), ModeStrict)
	require.Error(t, err)
	assert.True(t, errors.Is(err, container.ErrFormat))

	var fe *container.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, int64(108), fe.Offset)
	assert.Contains(t, fe.Reason, "overran its payload by 4 bytes")
}

func TestDetector_Padding(t *testing.T) {
	d := NewDetector(DetectorConfig{})

	t.Run("zero hash", func(t *testing.T) {
		window := append([]byte{0xff}, 0, 0, 0, 0)
		r, err := d.Check(strictInput(window, 1), ModeStrict)
		require.NoError(t, err)
		require.NotNil(t, r.Trailing)
		assert.Equal(t, TrailingPadding, r.Trailing.Kind)
		assert.Equal(t, 0, r.Trailing.Size)
		assert.Equal(t, -4, r.Drift)
		assert.Equal(t, 5, r.End)
	})

	t.Run("short zero remainder", func(t *testing.T) {
		r, err := d.Check(strictInput([]byte{1, 2, 0, 0}, 2), ModeStrict)
		require.NoError(t, err)
		assert.Equal(t, TrailingPadding, r.Trailing.Kind)
		assert.Equal(t, 2, r.Trailing.Size)
	})

	t.Run("short nonzero remainder", func(t *testing.T) {
		r, err := d.Check(strictInput([]byte{1, 2, 0, 9}, 2), ModeStrict)
		require.NoError(t, err)
		assert.Equal(t, TrailingUnknown, r.Trailing.Kind)
		assert.Equal(t, 2, r.Trailing.Size)
	})
}

func TestDetector_UnknownTrailing(t *testing.T) {
	var buf bytes.Buffer
	d := NewDetector(DetectorConfig{Logger: log.NewLogfmtLogger(&buf), LogUnknown: true})

	window := append(append([]byte{1, 2, 3, 4}, le32(0x12345678)...), 9, 9, 9, 9, 9, 9)
	r, err := d.Check(strictInput(window, 4), ModeStrict)
	require.NoError(t, err)
	require.NotNil(t, r.Trailing)
	assert.Equal(t, TrailingUnknown, r.Trailing.Kind)
	assert.Equal(t, uint32(0x12345678), r.Trailing.Hash)
	assert.Equal(t, 6, r.Trailing.Size)
	assert.Equal(t, "unknown", r.Kind())

	assert.Contains(t, buf.String(), "level=warn")
	assert.Contains(t, buf.String(), "hash=12345678")
	assert.Contains(t, buf.String(), "record_id=17")
}

func TestDetector_TactKey(t *testing.T) {
	window := []byte{0xaa, 0xbb}
	window = append(window, le32(schema.TableHash("TactKey"))...)
	lookup := make([]byte, 8)
	binary.LittleEndian.PutUint64(lookup, 0xfedcba9876543210)
	window = append(window, lookup...)
	for i := 0; i < 16; i++ {
		window = append(window, byte(i))
	}

	r, err := NewDetector(DetectorConfig{}).Check(strictInput(window, 2), ModeStrict)
	require.NoError(t, err)
	require.NotNil(t, r.Trailing)
	assert.Equal(t, TrailingStructure, r.Trailing.Kind)
	assert.Equal(t, "TactKey", r.Trailing.Table)
	assert.Equal(t, 24, r.Trailing.Size)
	require.NoError(t, r.Trailing.Err)
	require.Len(t, r.Trailing.Fields, 17)
	assert.Equal(t, uint64(0xfedcba9876543210), r.Trailing.Fields[0].Value)
	assert.Equal(t, "Key[15]", r.Trailing.Fields[16].Name)
	assert.Equal(t, uint8(15), r.Trailing.Fields[16].Value)
}

func TestDetector_TruncatedStructureIsReported(t *testing.T) {
	window := append([]byte{0}, le32(schema.TableHash("TactKey"))...)
	window = append(window, 1, 2, 3)

	r, err := NewDetector(DetectorConfig{}).Check(strictInput(window, 1), ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, TrailingStructure, r.Trailing.Kind)
	assert.Error(t, r.Trailing.Err)
}

func TestDetector_KnownTable(t *testing.T) {
	idx := schema.NewTableIndex("ItemSparse")
	d := NewDetector(DetectorConfig{Index: idx})

	window := append([]byte{5}, le32(schema.TableHash("ItemSparse"))...)
	window = append(window, make([]byte, 10)...)

	r, err := d.Check(strictInput(window, 1), ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, TrailingKnown, r.Trailing.Kind)
	assert.Equal(t, "ItemSparse", r.Trailing.Table)
	assert.Equal(t, 10, r.Trailing.Size)
}

func TestDetector_Reposition(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	window := make([]byte, 8)

	testCases := []struct {
		name     string
		consumed int
		drift    int
		kind     string
	}{
		{name: "overrun", consumed: 12, drift: 4, kind: "reposition"},
		{name: "underrun", consumed: 3, drift: -5, kind: "reposition"},
		{name: "exact", consumed: 8, drift: 0, kind: "clean"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := d.Check(Input{Table: "CreatureCache", Window: window, Declared: 8, Consumed: tc.consumed}, ModeReposition)
			require.NoError(t, err)
			assert.Equal(t, tc.drift, r.Drift)
			assert.Equal(t, 8, r.End)
			assert.Nil(t, r.Trailing)
			assert.Equal(t, tc.kind, r.Kind())
		})
	}
}

func TestDetector_StructureNames(t *testing.T) {
	d := NewDetector(DetectorConfig{Structures: []Structure{TactKey(), {Name: "Another", Schema: &schema.VersionSchema{}}}})
	assert.Equal(t, []string{"Another", "TactKey"}, d.StructureNames())
}
