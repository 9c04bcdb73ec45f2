package index

import (
	"testing"

	"github.com/eztools-software/filedb/internal/backing"
	"github.com/eztools-software/filedb/internal/record"
	"github.com/eztools-software/filedb/internal/schema"
	"github.com/eztools-software/filedb/internal/value"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *schema.Schema {
	pk := schema.NewField("id", value.KindInt32, false)
	pk.IsPrimaryKey = true
	s, err := schema.NewSchema([]schema.Field{
		pk,
		schema.NewField("name", value.KindString, false),
	})
	require.NoError(t, err)
	return s
}

func writeRow(t *testing.T, b backing.Backing, s *schema.Schema, off int64, id int32, name string) int {
	rec, err := record.FromMap(s, map[string]any{"id": id, "name": name})
	require.NoError(t, err)
	n, err := record.WriteFrame(b, off, rec, s, nil)
	require.NoError(t, err)
	return n
}

func TestSearchFindsExactMatchAndInsertionPosition(t *testing.T) {
	s := testSchema(t)
	b := backing.NewMemoryBacking()

	offs := []int32{0, 0, 0}
	pos := int64(0)
	ids := []int32{10, 20, 30}
	for i, id := range ids {
		n := writeRow(t, b, s, pos, id, "row")
		offs[i] = int32(pos)
		pos += int64(4 + n)
	}

	at, found, err := Search(b, s, nil, offs, value.Int32(20))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, at)

	at, found, err = Search(b, s, nil, offs, value.Int32(15))
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 1, at)

	at, found, err = Search(b, s, nil, offs, value.Int32(99))
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 3, at)
}

func TestFirstFitUsesTombstoneOnlyWhenLargeEnough(t *testing.T) {
	s := testSchema(t)
	b := backing.NewMemoryBacking()

	n1 := writeRow(t, b, s, 0, 1, "short")
	require.NoError(t, record.Tombstone(b, 0))

	pos, offset, ok, err := FirstFit(b, []int32{0}, n1-1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, pos)
	require.Equal(t, int32(0), offset)

	_, _, ok, err = FirstFit(b, []int32{0}, n1+100)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPersistThenLoadRoundTrip(t *testing.T) {
	b := backing.NewMemoryBacking()
	ix := &Index{Live: []int32{0, 10, 20}, Free: []int32{5}}

	require.NoError(t, ix.Persist(b, 100, []byte("blob")))

	h := &schema.Header{IndexStartOffset: 100, NumRecords: 3, NumDeleted: 1}
	got, _, err := Load(b, h)
	require.NoError(t, err)
	require.Equal(t, ix.Live, got.Live)
	require.Equal(t, ix.Free, got.Free)
}

func TestInsertAndRemoveLive(t *testing.T) {
	ix := &Index{Live: []int32{0, 20, 40}}
	ix.InsertLiveAt(1, 10)
	require.Equal(t, []int32{0, 10, 20, 40}, ix.Live)

	off := ix.RemoveLiveAt(2)
	require.Equal(t, int32(20), off)
	require.Equal(t, []int32{0, 10, 40}, ix.Live)
}
