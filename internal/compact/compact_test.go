package compact

import (
	"testing"

	"github.com/eztools-software/filedb/internal/backing"
	"github.com/eztools-software/filedb/internal/record"
	"github.com/eztools-software/filedb/internal/schema"
	"github.com/eztools-software/filedb/internal/value"
	"github.com/stretchr/testify/require"
)

func twoFieldSchema(t *testing.T) *schema.Schema {
	pk := schema.NewField("id", value.KindInt32, false)
	pk.IsPrimaryKey = true
	s, err := schema.NewSchema([]schema.Field{
		pk,
		schema.NewField("name", value.KindString, false),
	})
	require.NoError(t, err)
	return s
}

func setupSrc(t *testing.T, s *schema.Schema, rows []map[string]any) (*backing.MemoryBacking, []int32) {
	src := backing.NewMemoryBacking()
	pos := int64(0)
	var live []int32
	for _, row := range rows {
		rec, err := record.FromMap(s, row)
		require.NoError(t, err)
		n, err := record.WriteFrame(src, pos, rec, s, nil)
		require.NoError(t, err)
		live = append(live, int32(pos))
		pos += int64(4 + n)
	}
	return src, live
}

func TestRunPlainCleanPreservesValuesAndOrder(t *testing.T) {
	s := twoFieldSchema(t)
	rows := []map[string]any{
		{"id": int32(1), "name": "aa"},
		{"id": int32(2), "name": "bb"},
	}
	src, live := setupSrc(t, s, rows)
	dst := backing.NewMemoryBacking()

	result, err := Run(Options{
		Src:    src,
		Dst:    dst,
		Header: &schema.Header{Major: schema.CurrentMajor, Minor: schema.CurrentMinor},
		Schema: s,
		Live:   live,
	})
	require.NoError(t, err)
	require.Equal(t, 2, len(result.Live))
	require.Equal(t, int32(0), result.Header.NumDeleted)

	rec, tomb, _, err := record.ReadFrame(dst, int64(result.Live[0]), s, nil)
	require.NoError(t, err)
	require.False(t, tomb)
	require.Equal(t, "aa", rec.Fields[1].AsString())
}

func TestRunWithAddedFieldAppliesDefault(t *testing.T) {
	s := twoFieldSchema(t)
	rows := []map[string]any{{"id": int32(1), "name": "aa"}}
	src, live := setupSrc(t, s, rows)
	dst := backing.NewMemoryBacking()

	newSchema, err := s.WithAddedFields([]schema.Field{schema.NewField("score", value.KindInt32, false)})
	require.NoError(t, err)

	result, err := Run(Options{
		Src:       src,
		Dst:       dst,
		Header:    &schema.Header{Major: schema.CurrentMajor, Minor: schema.CurrentMinor},
		Schema:    s,
		NewSchema: newSchema,
		FieldMap: []FieldSource{
			{FromOldOrdinal: 0},
			{FromOldOrdinal: 1},
			{FromOldOrdinal: -1, Default: int32(99)},
		},
		Live: live,
	})
	require.NoError(t, err)

	rec, _, _, err := record.ReadFrame(dst, int64(result.Live[0]), newSchema, nil)
	require.NoError(t, err)
	require.Equal(t, int32(99), rec.Fields[2].AsInt32())
}

func TestRunWithDroppedFieldOmitsIt(t *testing.T) {
	s := twoFieldSchema(t)
	rows := []map[string]any{{"id": int32(1), "name": "aa"}}
	src, live := setupSrc(t, s, rows)
	dst := backing.NewMemoryBacking()

	newSchema, err := s.WithoutFields([]string{"name"})
	require.NoError(t, err)

	result, err := Run(Options{
		Src:       src,
		Dst:       dst,
		Header:    &schema.Header{Major: schema.CurrentMajor, Minor: schema.CurrentMinor},
		Schema:    s,
		NewSchema: newSchema,
		FieldMap: []FieldSource{
			{FromOldOrdinal: 0},
		},
		Live: live,
	})
	require.NoError(t, err)
	require.Equal(t, 1, len(newSchema.Fields))

	rec, _, _, err := record.ReadFrame(dst, int64(result.Live[0]), newSchema, nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), rec.Fields[0].AsInt32())
}
