package filedb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eztools-software/filedb/internal/backing"
	"github.com/eztools-software/filedb/internal/record"
)

// xorCipher is a minimal stand-in Cipher for exercising the encryption
// envelope in tests; it is not meant to be a real cipher.
type xorCipher struct{ key byte }

func (c xorCipher) Encrypt(p []byte) ([]byte, error) { return c.xor(p), nil }
func (c xorCipher) Decrypt(p []byte) ([]byte, error) { return c.xor(p), nil }
func (c xorCipher) xor(p []byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ c.key
	}
	return out
}

func newTestDB(t *testing.T, fields Schema, opts ...Option) (*Database, *backing.MemoryBacking) {
	t.Helper()
	b := backing.NewMemoryBacking()
	db, err := Create(b, fields, opts...)
	require.NoError(t, err)
	return db, b
}

func pkField(name string, kind ValueKind) Field {
	f := NewField(name, kind, false)
	f.IsPrimaryKey = true
	return f
}

func idNameSchema() Schema {
	return Schema{pkField("id", KindInt32), NewField("name", KindString, false)}
}

// --- Invariant 1: signature and version round-trip ---

func TestInvariantSignatureAndVersion(t *testing.T) {
	_, b := newTestDB(t, idNameSchema())
	raw := b.Bytes()
	require.GreaterOrEqual(t, len(raw), 6)
	sig := binary.LittleEndian.Uint32(raw[0:4])
	assert.Equal(t, uint32(0x0123BABE), sig)
	assert.Equal(t, byte(6), raw[4])
	assert.Equal(t, byte(0), raw[5])
}

// --- Invariant 2: counters match arrays ---

func TestInvariantCountersMatchArrays(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())

	_, err := db.Add(map[string]any{"id": int32(1), "name": "a"})
	require.NoError(t, err)
	_, err = db.Add(map[string]any{"id": int32(2), "name": "b"})
	require.NoError(t, err)
	assert.EqualValues(t, len(db.idx.Live), db.header.NumRecords)
	assert.EqualValues(t, len(db.idx.Free), db.header.NumDeleted)

	_, err = db.DeleteByKey(int32(1))
	require.NoError(t, err)
	assert.EqualValues(t, len(db.idx.Live), db.header.NumRecords)
	assert.EqualValues(t, len(db.idx.Free), db.header.NumDeleted)

	err = db.UpdateByKey(int32(2), map[string]any{"name": "a much longer replacement value for b"})
	require.NoError(t, err)
	assert.EqualValues(t, len(db.idx.Live), db.header.NumRecords)
	assert.EqualValues(t, len(db.idx.Free), db.header.NumDeleted)
}

// --- Invariant 3: PK ordering ---

func TestInvariantPKOrdering(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	for _, id := range []int32{5, 1, 9, 3, 7} {
		_, err := db.Add(map[string]any{"id": id, "name": "x"})
		require.NoError(t, err)
	}
	rows, err := db.SelectAll("")
	require.NoError(t, err)
	require.Len(t, rows, 5)

	var lastKey int32 = -1 << 31
	for i, off := range db.idx.Live {
		rec, _, _, err := record.ReadFrame(db.b, int64(off), db.sch, db.cfg.cipher)
		require.NoError(t, err)
		key := rec.ToMap(db.sch)["id"].(int32)
		if i > 0 {
			assert.Greater(t, key, lastKey)
		}
		lastKey = key
	}
}

// --- Invariant 4: no duplicate PK ---

func TestInvariantNoDuplicatePK(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	_, err := db.Add(map[string]any{"id": int32(1), "name": "a"})
	require.NoError(t, err)

	before := append([]int32{}, db.idx.Live...)
	_, err = db.Add(map[string]any{"id": int32(1), "name": "dup"})
	require.Error(t, err)
	assert.True(t, Is(err, KindDuplicatePrimaryKey))
	assert.Equal(t, before, db.idx.Live)
}

// --- Invariant 5: codec round-trip ---

func TestInvariantCodecRoundTrip(t *testing.T) {
	fields := Schema{
		NewField("b", KindBool, false),
		NewField("i", KindInt32, false),
		NewField("tags", KindString, true),
	}
	db, _ := newTestDB(t, fields)

	_, err := db.Add(map[string]any{"b": true, "i": int32(42), "tags": []any{"x", "y", "z"}})
	require.NoError(t, err)
	rows, err := db.SelectAll("")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0]["b"])
	assert.Equal(t, int32(42), rows[0]["i"])
	assert.Equal(t, []any{"x", "y", "z"}, rows[0]["tags"])

	_, err = db.Add(map[string]any{"b": nil, "i": int32(0)})
	require.NoError(t, err)
	rows, err = db.SelectAll("")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[1]["b"])
}

// --- Invariant 6: free-list reuse ---

func TestInvariantFreeListReuse(t *testing.T) {
	db, _ := newTestDB(t, Schema{pkField("id", KindInt32), NewField("n", KindInt32, false)})
	for _, id := range []int32{1, 2, 3} {
		_, err := db.Add(map[string]any{"id": id, "n": int32(0)})
		require.NoError(t, err)
	}
	pos, err := db.findByKeyLocked(int32(2))
	require.NoError(t, err)
	freedOffset := db.idx.Live[pos]

	_, err = db.DeleteByKey(int32(2))
	require.NoError(t, err)
	require.Len(t, db.idx.Free, 1)
	indexStartBefore := db.header.IndexStartOffset

	_, err = db.Add(map[string]any{"id": int32(4), "n": int32(99)})
	require.NoError(t, err)

	newPos, err := db.findByKeyLocked(int32(4))
	require.NoError(t, err)
	assert.Equal(t, freedOffset, db.idx.Live[newPos])
	assert.Equal(t, 0, len(db.idx.Free))
	assert.Equal(t, indexStartBefore, db.header.IndexStartOffset)
}

// --- Invariant 7: tombstone sign ---

func TestInvariantTombstoneSign(t *testing.T) {
	db, b := newTestDB(t, idNameSchema())
	_, err := db.Add(map[string]any{"id": int32(1), "name": "a"})
	require.NoError(t, err)
	_, err = db.Add(map[string]any{"id": int32(2), "name": "b"})
	require.NoError(t, err)
	_, err = db.DeleteByKey(int32(1))
	require.NoError(t, err)
	require.Len(t, db.idx.Live, 1)
	liveOffset := db.idx.Live[0]
	require.Len(t, db.idx.Free, 1)
	freeOffset := db.idx.Free[0]

	raw := b.Bytes()
	liveSize := int32(binary.LittleEndian.Uint32(raw[liveOffset : liveOffset+4]))
	freeSize := int32(binary.LittleEndian.Uint32(raw[freeOffset : freeOffset+4]))
	assert.Positive(t, liveSize)
	assert.Negative(t, freeSize)
}

// --- Invariant 8: clean is a bijection ---

func TestInvariantCleanIsBijection(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	for _, id := range []int32{1, 2, 3} {
		_, err := db.Add(map[string]any{"id": id, "name": "v"})
		require.NoError(t, err)
	}
	_, err := db.DeleteByKey(int32(2))
	require.NoError(t, err)

	before, err := db.SelectAll("id")
	require.NoError(t, err)
	beforeLive := len(db.idx.Live)

	err = db.Clean()
	require.NoError(t, err)

	assert.EqualValues(t, 0, db.header.NumDeleted)
	assert.Len(t, db.idx.Live, beforeLive)
	after, err := db.SelectAll("id")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// --- Invariant 9: encryption opacity ---

func TestInvariantEncryptionOpacity(t *testing.T) {
	cipher := xorCipher{key: 0x5A}
	db, b := newTestDB(t, Schema{pkField("id", KindInt32), NewField("s", KindString, false)}, WithCipher(cipher))

	_, err := db.Add(map[string]any{"id": int32(1), "s": "topsecretvalue"})
	require.NoError(t, err)
	require.NoError(t, db.Flush())

	raw := b.Bytes()
	assert.NotContains(t, string(raw), "topsecretvalue")
}

// --- Invariant 10: transaction atomicity ---

func TestInvariantTransactionAtomicity(t *testing.T) {
	db, b := newTestDB(t, idNameSchema())
	_, err := db.Add(map[string]any{"id": int32(1), "name": "a"})
	require.NoError(t, err)
	require.NoError(t, db.Flush())
	before := append([]byte{}, b.Bytes()...)

	require.NoError(t, db.BeginTrans())
	_, err = db.Add(map[string]any{"id": int32(2), "name": "b"})
	require.NoError(t, err)
	_, err = db.Add(map[string]any{"id": int32(3), "name": "c"})
	require.NoError(t, err)
	require.NoError(t, db.RollbackTrans())

	assert.Equal(t, before, b.Bytes())

	require.NoError(t, db.BeginTrans())
	_, err = db.Add(map[string]any{"id": int32(2), "name": "b"})
	require.NoError(t, err)
	require.NoError(t, db.CommitTrans())

	rows, err := db.SelectAll("id")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestBeginTransRejectsNested(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	require.NoError(t, db.BeginTrans())
	err := db.BeginTrans()
	require.Error(t, err)
	assert.True(t, Is(err, KindTransactionAlreadyActive))
}

func TestRollbackWithoutBeginFails(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	err := db.RollbackTrans()
	require.Error(t, err)
	assert.True(t, Is(err, KindNoCurrentTransaction))
}

// The user blob is persisted state (spec.md §4.1, §4.3), not handle-local:
// it must survive a Close/Open round-trip.
func TestUserDataSurvivesReopen(t *testing.T) {
	b := backing.NewMemoryBacking()
	db, err := Create(b, idNameSchema())
	require.NoError(t, err)
	require.NoError(t, db.SetUserData("hello world"))
	require.NoError(t, db.Close())

	reopened, err := Open(b)
	require.NoError(t, err)
	v, err := reopened.UserData()
	require.NoError(t, err)
	assert.Equal(t, "hello world", v)
}

func TestUserDataByteArrayRoundTrip(t *testing.T) {
	db, b := newTestDB(t, idNameSchema())
	require.NoError(t, db.SetUserData([]byte{1, 2, 3, 0, 255}))
	require.NoError(t, db.Close())

	reopened, err := Open(b)
	require.NoError(t, err)
	v, err := reopened.UserData()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 0, 255}, v)
}

func TestUserDataRejectsUnsupportedType(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	err := db.SetUserData(map[string]any{"note": "not allowed"})
	require.Error(t, err)
	assert.True(t, Is(err, KindInvalidMetaDataType))
}

func TestUserDataEmptyIsNil(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	v, err := db.UserData()
	require.NoError(t, err)
	assert.Nil(t, v)
}

// --- Update semantics: present-but-nil overrides to null, absent keeps old ---

func TestUpdateByKeyNullsExplicitlyPresentField(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	_, err := db.Add(Record{"id": int32(1), "name": "a"})
	require.NoError(t, err)

	require.NoError(t, db.UpdateByKey(int32(1), Record{"name": nil}))

	rec, found, err := db.GetByKey(int32(1))
	require.NoError(t, err)
	require.True(t, found)
	_, hasName := rec["name"]
	assert.False(t, hasName)
}

func TestUpdateByKeyKeepsFieldAbsentFromMap(t *testing.T) {
	db, _ := newTestDB(t, Schema{pkField("id", KindInt32), NewField("a", KindInt32, false), NewField("b", KindInt32, false)})
	_, err := db.Add(Record{"id": int32(1), "a": int32(10), "b": int32(20)})
	require.NoError(t, err)

	require.NoError(t, db.UpdateByKey(int32(1), Record{"a": int32(99)}))

	rec, found, err := db.GetByKey(int32(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 99, rec["a"])
	assert.EqualValues(t, 20, rec["b"])
}

// --- Mutation callbacks ---

func TestCallbacksFireOnMutation(t *testing.T) {
	var added, updated, deleted []int
	cb := Callbacks{
		OnAdd:    func(i int) { added = append(added, i) },
		OnUpdate: func(i int, _ map[string]any) { updated = append(updated, i) },
		OnDelete: func(i int) { deleted = append(deleted, i) },
	}
	db, _ := newTestDB(t, idNameSchema(), WithCallbacks(cb))

	_, err := db.Add(Record{"id": int32(1), "name": "a"})
	require.NoError(t, err)
	require.NoError(t, db.UpdateByKey(int32(1), Record{"name": "b"}))
	ok, err := db.DeleteByKey(int32(1))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []int{0}, added)
	assert.Equal(t, []int{0}, updated)
	assert.Equal(t, []int{0}, deleted)
}

func TestCallbackPanicIsSwallowed(t *testing.T) {
	cb := Callbacks{OnAdd: func(int) { panic("boom") }}
	db, _ := newTestDB(t, idNameSchema(), WithCallbacks(cb))

	pos, err := db.Add(Record{"id": int32(1), "name": "a"})
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	rec, ok, err := db.GetByKey(int32(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", rec["name"])
}

// --- Cursor invalidation on mutation (spec.md §9, "Mutation-during-iteration") ---

func TestCursorInvalidatedByAdd(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	_, err := db.Add(Record{"id": int32(1), "name": "a"})
	require.NoError(t, err)

	require.True(t, db.MoveFirst())
	_, err = db.Add(Record{"id": int32(2), "name": "b"})
	require.NoError(t, err)

	_, err = db.Current()
	assert.True(t, Is(err, KindIteratorPastEndOfFile))
	assert.False(t, db.MoveNext())
}

func TestCursorInvalidatedByUpdate(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	_, err := db.Add(Record{"id": int32(1), "name": "a"})
	require.NoError(t, err)

	require.True(t, db.MoveFirst())
	require.NoError(t, db.UpdateByKey(int32(1), Record{"name": "b"}))

	_, err = db.Current()
	assert.True(t, Is(err, KindIteratorPastEndOfFile))
}

func TestCursorInvalidatedByDelete(t *testing.T) {
	db, _ := newTestDB(t, idNameSchema())
	_, err := db.Add(Record{"id": int32(1), "name": "a"})
	require.NoError(t, err)
	_, err = db.Add(Record{"id": int32(2), "name": "b"})
	require.NoError(t, err)

	require.True(t, db.MoveFirst())
	ok, err := db.DeleteByKey(int32(2))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = db.Current()
	assert.True(t, Is(err, KindIteratorPastEndOfFile))
}
