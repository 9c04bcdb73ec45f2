package filedb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 Create-add-read.
func TestScenarioCreateAddRead(t *testing.T) {
	db, _ := newTestDB(t, Schema{
		pkField("id", KindInt32).WithAutoInc(1),
		NewField("name", KindString, false),
	})

	_, err := db.Add(map[string]any{"name": "a"})
	require.NoError(t, err)
	_, err = db.Add(map[string]any{"name": "b"})
	require.NoError(t, err)

	rec, found, err := db.GetByKey(int32(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", rec["name"])

	rec, found, err = db.GetByKey(int32(2))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", rec["name"])

	assert.EqualValues(t, 2, db.header.NumRecords)
}

// S2 Update-grows-relocates.
func TestScenarioUpdateGrowsRelocates(t *testing.T) {
	db, _ := newTestDB(t, Schema{pkField("id", KindInt32), NewField("s", KindString, false)})

	_, err := db.Add(map[string]any{"id": int32(1), "s": "x"})
	require.NoError(t, err)
	_, err = db.Add(map[string]any{"id": int32(2), "s": "y"})
	require.NoError(t, err)

	longVal := "a very long replacement string"
	err = db.UpdateByKey(int32(1), map[string]any{"s": longVal})
	require.NoError(t, err)

	assert.EqualValues(t, 1, db.header.NumDeleted)
	rec, found, err := db.GetByKey(int32(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, longVal, rec["s"])
	rec, found, err = db.GetByKey(int32(2))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "y", rec["s"])

	require.NoError(t, db.Clean())
	assert.EqualValues(t, 0, db.header.NumDeleted)
	rows, err := db.SelectAll("id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, longVal, rows[0]["s"])
	assert.Equal(t, "y", rows[1]["s"])
}

// S3 Delete-reuse.
func TestScenarioDeleteReuse(t *testing.T) {
	db, _ := newTestDB(t, Schema{pkField("id", KindInt32), NewField("n", KindInt32, false)})

	for _, id := range []int32{1, 2, 3} {
		_, err := db.Add(map[string]any{"id": id, "n": int32(0)})
		require.NoError(t, err)
	}
	pos, err := db.findByKeyLocked(int32(2))
	require.NoError(t, err)
	formerOffset := db.idx.Live[pos]

	deleted, err := db.DeleteByKey(int32(2))
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = db.Add(map[string]any{"id": int32(4), "n": int32(99)})
	require.NoError(t, err)

	newPos, err := db.findByKeyLocked(int32(4))
	require.NoError(t, err)
	assert.Equal(t, formerOffset, db.idx.Live[newPos])
	assert.EqualValues(t, 0, db.header.NumDeleted)
}

// S4 Filter parse+eval.
func TestScenarioFilterParseEval(t *testing.T) {
	db, _ := newTestDB(t, Schema{
		NewField("first", KindString, false),
		NewField("last", KindString, false),
		NewField("age", KindInt32, false),
	})

	add := func(first, last string, age int32) {
		_, err := db.Add(map[string]any{"first": first, "last": last, "age": age})
		require.NoError(t, err)
	}
	add("Ann", "Lee", 30)
	add("ann", "LEE", 25)
	add("Bob", "Smith", 40)

	rows, err := db.SelectWhere("(~first = 'ann' AND last ~= 'lee') OR age > 35", "")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = db.SelectWhere("first = 'ann'", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ann", rows[0]["first"])
}

// S5 Schema evolution.
func TestScenarioSchemaEvolution(t *testing.T) {
	db, _ := newTestDB(t, Schema{pkField("id", KindInt32), NewField("a", KindInt32, false)})

	_, err := db.Add(map[string]any{"id": int32(1), "a": int32(10)})
	require.NoError(t, err)
	_, err = db.Add(map[string]any{"id": int32(2), "a": int32(20)})
	require.NoError(t, err)

	err = db.AddFields([]Field{NewField("b", KindString, false)}, map[string]any{"b": "x"})
	require.NoError(t, err)

	rows, err := db.SelectAll("id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "x", rows[0]["b"])
	assert.Equal(t, "x", rows[1]["b"])
	assert.EqualValues(t, 2, db.header.NumRecords)
	assert.Equal(t, int32(1), rows[0]["id"])
	assert.Equal(t, int32(2), rows[1]["id"])

	err = db.RenameField("a", "aa")
	require.NoError(t, err)
	rec, found, err := db.GetByKey(int32(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int32(10), rec["aa"])
	_, hasOld := rec["a"]
	assert.False(t, hasOld)
}

// S6 Encryption round-trip.
func TestScenarioEncryptionRoundTrip(t *testing.T) {
	cipher := xorCipher{key: 0x77}
	b := NewMemoryBacking()
	db, err := Create(b, Schema{pkField("id", KindInt32), NewField("s", KindString, false)}, WithCipher(cipher))
	require.NoError(t, err)

	_, err = db.Add(map[string]any{"id": int32(1), "s": "secret"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	raw := b.(interface{ Bytes() []byte }).Bytes()
	assert.False(t, strings.Contains(string(raw), "secret"))

	reopened, err := Open(b, WithCipher(cipher))
	require.NoError(t, err)
	rec, found, err := reopened.GetByKey(int32(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "secret", rec["s"])

	_, err = Open(b)
	require.Error(t, err)
	assert.True(t, Is(err, KindDbIsEncrypted))
}
