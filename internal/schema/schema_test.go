package schema

import (
	"bytes"
	"testing"

	"github.com/eztools-software/filedb/internal/value"
	"github.com/stretchr/testify/require"
)

func TestNewSchemaMovesPrimaryKeyToOrdinalZero(t *testing.T) {
	fields := []Field{
		NewField("name", value.KindString, false),
		func() Field {
			f := NewField("id", value.KindInt32, false)
			f.IsPrimaryKey = true
			return f
		}(),
		NewField("age", value.KindInt32, false),
	}
	s, err := NewSchema(fields)
	require.NoError(t, err)
	require.Equal(t, 0, s.PrimaryKey)
	require.Equal(t, "id", s.Fields[0].Name)
	require.Equal(t, 0, s.Fields[0].Ordinal)
	require.Equal(t, "name", s.Fields[1].Name)
	require.Equal(t, "age", s.Fields[2].Name)
}

func TestNewSchemaRejectsArrayPrimaryKey(t *testing.T) {
	f := NewField("id", value.KindInt32, true)
	f.IsPrimaryKey = true
	_, err := NewSchema([]Field{f})
	require.Error(t, err)
}

func TestNewSchemaRejectsDuplicateNamesCaseInsensitive(t *testing.T) {
	fields := []Field{
		NewField("Name", value.KindString, false),
		NewField("name", value.KindString, false),
	}
	_, err := NewSchema(fields)
	require.Error(t, err)
}

func TestDescriptorRoundTrip(t *testing.T) {
	pk := NewField("id", value.KindInt32, false)
	pk.IsPrimaryKey = true
	pk = pk.WithAutoInc(1)

	fields := []Field{
		pk,
		NewField("name", value.KindString, false).WithComment("display name"),
		NewField("tags", value.KindString, true),
	}
	s, err := NewSchema(fields)
	require.NoError(t, err)

	var buf bytes.Buffer
	EncodeDescriptor(&buf, s, CurrentMajor)

	got, n, err := DecodeDescriptor(buf.Bytes(), CurrentMajor)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)
	require.Equal(t, 0, got.PrimaryKey)
	require.True(t, got.Fields[0].IsPrimaryKey)
	require.NotNil(t, got.Fields[0].AutoIncStart)
	require.Equal(t, int32(1), *got.Fields[0].AutoIncStart)
	require.Equal(t, "display name", got.Fields[1].Comment)
	require.True(t, got.Fields[2].IsArray)
}

func TestWithRenamedFieldPreservesOtherMetadata(t *testing.T) {
	fields := []Field{
		NewField("a", value.KindInt32, false),
		NewField("b", value.KindString, false),
	}
	s, err := NewSchema(fields)
	require.NoError(t, err)

	renamed, err := s.WithRenamedField("a", "aa")
	require.NoError(t, err)
	f, _, ok := renamed.FieldByName("aa")
	require.True(t, ok)
	require.Equal(t, value.KindInt32, f.Type)
}
