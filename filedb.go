// Package filedb implements a single-file embedded record store: one
// table, a fixed typed schema, primary-key and predicate queries,
// iteration, schema evolution, optional at-rest encryption, and a
// snapshot/rollback transaction wrapper (spec.md §1-§2).
package filedb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/eztools-software/filedb/internal/backing"
	"github.com/eztools-software/filedb/internal/compact"
	"github.com/eztools-software/filedb/internal/filter"
	"github.com/eztools-software/filedb/internal/index"
	"github.com/eztools-software/filedb/internal/record"
	"github.com/eztools-software/filedb/internal/schema"
	"github.com/eztools-software/filedb/internal/value"
)

// Schema is the field list passed to Create.
type Schema = []Field

// Record is the map-based row representation every public read/write
// operation speaks in (spec.md §9: "the core only speaks in {field_name ->
// value} maps and typed scalar variants").
type Record = map[string]any

// Database is a handle on one open database file or in-memory buffer. All
// methods are safe for concurrent use; internally every operation is
// serialized by a single mutex, matching spec.md §5 ("single-writer, the
// handle owns its backing store exclusively while open").
type Database struct {
	mu       sync.Mutex
	b        backing.Backing
	header   *schema.Header
	sch      *schema.Schema
	idx      *index.Index
	userBlob []byte
	cfg      *config
	cursor   int
	txn      *txnState
}

// Create initializes a brand-new database over b: writes the header, the
// schema descriptor, and an empty index tail (spec.md §3, "Lifecycles").
func Create(b Backing, fields Schema, opts ...Option) (*Database, error) {
	if !b.Writable() {
		return nil, newErr("Create", KindStreamMustBeWritable)
	}
	sch, err := schema.NewSchema(fields)
	if err != nil {
		return nil, wrapErr("Create", KindInvalidTypeInSchema, err)
	}

	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}

	h := &schema.Header{Major: schema.CurrentMajor, Minor: schema.CurrentMinor}
	if cfg.cipher != nil {
		h.Flags |= schema.FlagEncrypted
	}
	if err := schema.WriteHeader(b, h); err != nil {
		return nil, wrapErr("Create", KindUnknown, err)
	}

	descLen, err := writeSchemaDescriptor(b, h, sch)
	if err != nil {
		return nil, wrapErr("Create", KindUnknown, err)
	}
	h.IndexStartOffset = int32(int64(h.Size()) + int64(descLen))
	if err := schema.WriteHeader(b, h); err != nil {
		return nil, wrapErr("Create", KindUnknown, err)
	}

	ix := &index.Index{}
	if err := ix.Persist(b, int64(h.IndexStartOffset), nil); err != nil {
		return nil, wrapErr("Create", KindUnknown, err)
	}

	db := &Database{b: b, header: h, sch: sch, idx: ix, cfg: cfg, cursor: -1}
	cfg.log.Info("created database major=%d.%d fields=%d", h.Major, h.Minor, len(sch.Fields))
	return db, nil
}

// Open reads an existing database's header, schema descriptor, and index
// tail from b.
func Open(b Backing, opts ...Option) (*Database, error) {
	h, err := schema.ReadHeader(b)
	if err != nil {
		return nil, wrapErr("Open", KindInvalidSignature, err)
	}

	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if h.IsEncrypted() && cfg.cipher == nil {
		return nil, newErr("Open", KindDbIsEncrypted)
	}
	if !h.IsEncrypted() && cfg.cipher != nil {
		return nil, newErr("Open", KindInvalidOperation)
	}

	descRegion := int64(h.IndexStartOffset) - int64(h.Size())
	if descRegion <= 0 {
		return nil, newErr("Open", KindInvalidSignature)
	}
	descBuf := make([]byte, descRegion)
	if _, err := b.ReadAt(descBuf, int64(h.Size())); err != nil {
		return nil, wrapErr("Open", KindUnknown, err)
	}
	sch, _, err := schema.DecodeDescriptor(descBuf, h.Major)
	if err != nil {
		return nil, wrapErr("Open", KindUnknown, err)
	}

	ix, blob, err := index.Load(b, h)
	if err != nil {
		return nil, wrapErr("Open", KindUnknown, err)
	}

	db := &Database{b: b, header: h, sch: sch, idx: ix, userBlob: blob, cfg: cfg, cursor: -1}
	cfg.log.Info("opened database major=%d.%d records=%d deleted=%d", h.Major, h.Minor, h.NumRecords, h.NumDeleted)
	return db, nil
}

// Drop removes a file-backed database outright.
func Drop(path string) error {
	if path == "" {
		return newErr("Drop", KindEmptyFilename)
	}
	if err := removeFile(path); err != nil {
		return wrapErr("Drop", KindDatabaseFileNotFound, err)
	}
	return nil
}

// Close releases the backing stream.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.b.Close(); err != nil {
		return wrapErr("Close", KindUnknown, err)
	}
	return nil
}

// Flush forces the current header and index tail to stable storage,
// regardless of the WithAutoFlush setting.
func (db *Database) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.persist()
}

func (db *Database) persist() error {
	if err := schema.WriteHeader(db.b, db.header); err != nil {
		return wrapErr("Flush", KindUnknown, err)
	}
	if err := db.idx.Persist(db.b, int64(db.header.IndexStartOffset), db.userBlob); err != nil {
		return wrapErr("Flush", KindUnknown, err)
	}
	if err := db.b.Flush(); err != nil {
		return wrapErr("Flush", KindUnknown, err)
	}
	return nil
}

func (db *Database) maybeAutoPersist() error {
	if !db.cfg.autoFlush {
		return nil
	}
	return db.persist()
}

// fireOnAdd, fireOnUpdate and fireOnDelete invoke the caller's mutation
// hooks, if any, swallowing any panic a hook raises (spec.md §6: "Callback
// exceptions are swallowed").
func (db *Database) fireOnAdd(pos int) {
	if db.cfg.callbacks.OnAdd == nil {
		return
	}
	defer func() { recover() }()
	db.cfg.callbacks.OnAdd(pos)
}

func (db *Database) fireOnUpdate(pos int, fields map[string]any) {
	if db.cfg.callbacks.OnUpdate == nil {
		return
	}
	defer func() { recover() }()
	db.cfg.callbacks.OnUpdate(pos, fields)
}

func (db *Database) fireOnDelete(pos int) {
	if db.cfg.callbacks.OnDelete == nil {
		return
	}
	defer func() { recover() }()
	db.cfg.callbacks.OnDelete(pos)
}

func (db *Database) syncCounters() {
	db.header.NumRecords = int32(len(db.idx.Live))
	db.header.NumDeleted = int32(len(db.idx.Free))
}

// requireCurrentVersion rejects mutations against a database opened at an
// older major version (spec.md §9: "Older-major readability (<=5) ... treat
// as 'read-only open, requires upgrade before mutation'"). Upgrade itself
// goes through runCompaction, which always rewrites at schema.CurrentMajor,
// so once it succeeds this check passes.
func (db *Database) requireCurrentVersion(op string) error {
	if db.header.Major != schema.CurrentMajor {
		return newErr(op, KindDatabaseReadOnlyMode)
	}
	return nil
}

func (db *Database) maybeAutoClean() {
	if db.cfg.cleanThreshold < 0 || int(db.header.NumDeleted) <= db.cfg.cleanThreshold {
		return
	}
	if err := db.clean(nil, nil); err != nil {
		db.cfg.log.Warn("auto-clean failed: %v", err)
	}
}

// allocSlot picks a destination offset for a new_size-byte payload: first
// fit over the free list, else the current append point (spec.md §4.4).
func (db *Database) allocSlot(needSize int) (offset int64, reused bool, err error) {
	pos, off, ok, err := index.FirstFit(db.b, db.idx.Free, needSize)
	if err != nil {
		return 0, false, err
	}
	if ok {
		db.idx.RemoveFreeAt(pos)
		db.cfg.log.Debug("reusing tombstoned slot at offset=%d for %d-byte payload", off, needSize)
		return int64(off), true, nil
	}
	db.cfg.log.Debug("appending %d-byte payload at offset=%d", needSize, db.header.IndexStartOffset)
	return int64(db.header.IndexStartOffset), false, nil
}

func writeSchemaDescriptor(b backing.Backing, h *schema.Header, s *schema.Schema) (int, error) {
	var buf bytes.Buffer
	schema.EncodeDescriptor(&buf, s, h.Major)
	if _, err := b.WriteAt(buf.Bytes(), int64(h.Size())); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// Add validates and inserts fields as a new record, returning its 0-based
// live-index position (spec.md §4.5, "Add").
func (db *Database) Add(fields map[string]any) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.b.Writable() {
		return 0, newErr("Add", KindDatabaseReadOnlyMode)
	}
	if err := db.requireCurrentVersion("Add"); err != nil {
		return 0, err
	}

	rec, err := record.FromMap(db.sch, fields)
	if err != nil {
		return 0, wrapErr("Add", KindErrorConvertingValueForField, err)
	}

	autoInc := false
	if db.sch.HasPrimaryKey() {
		pk := db.sch.PK()
		if rec.Null.Test(0) {
			if pk.AutoIncStart == nil {
				return 0, newErr("Add", KindMissingPrimaryKey)
			}
			rec.Fields[0] = value.Int32(pk.CurAutoInc)
			rec.Null.Clear(0)
			autoInc = true
		}
	}

	var pos int
	if db.sch.HasPrimaryKey() {
		found := false
		pos, found, err = index.Search(db.b, db.sch, db.cfg.cipher, db.idx.Live, rec.Fields[0])
		if err != nil {
			return 0, wrapErr("Add", KindUnknown, err)
		}
		if found {
			return 0, newErr("Add", KindDuplicatePrimaryKey)
		}
	} else {
		pos = len(db.idx.Live)
	}

	payload, err := record.EncodePayload(rec, db.sch, db.cfg.cipher)
	if err != nil {
		return 0, wrapErr("Add", KindInvalidDataType, err)
	}

	offset, reused, err := db.allocSlot(len(payload))
	if err != nil {
		return 0, wrapErr("Add", KindUnknown, err)
	}
	if _, err := record.WriteRawFrame(db.b, offset, payload); err != nil {
		return 0, wrapErr("Add", KindUnknown, err)
	}
	if !reused {
		db.header.IndexStartOffset = int32(offset + int64(4+len(payload)))
	}

	if db.sch.HasPrimaryKey() {
		db.idx.InsertLiveAt(pos, int32(offset))
	} else {
		db.idx.Live = append(db.idx.Live, int32(offset))
	}
	db.syncCounters()
	// spec.md §4.9 / §9: any mutation invalidates a cursor anchored into
	// Live, since Add can shift every position at or after pos.
	db.cursor = -1

	if autoInc {
		db.sch.PK().CurAutoInc++
		if _, err := writeSchemaDescriptor(db.b, db.header, db.sch); err != nil {
			return 0, wrapErr("Add", KindUnknown, err)
		}
	}

	if err := db.maybeAutoPersist(); err != nil {
		return 0, err
	}
	db.fireOnAdd(pos)
	db.maybeAutoClean()
	return pos, nil
}

func (db *Database) updateRecordAt(pos int, fields map[string]any) error {
	offset := db.idx.Live[pos]
	oldRec, _, oldCap, err := record.ReadFrame(db.b, int64(offset), db.sch, db.cfg.cipher)
	if err != nil {
		return wrapErr("Update", KindUnknown, err)
	}
	overlay, err := record.FromMap(db.sch, fields)
	if err != nil {
		return wrapErr("Update", KindErrorConvertingValueForField, err)
	}
	merged := record.MergeOver(oldRec, overlay)

	payload, err := record.EncodePayload(merged, db.sch, db.cfg.cipher)
	if err != nil {
		return wrapErr("Update", KindInvalidDataType, err)
	}

	if len(payload) <= oldCap {
		if _, err := record.WriteRawFrame(db.b, int64(offset), payload); err != nil {
			return wrapErr("Update", KindUnknown, err)
		}
		// spec.md §4.9 / §9: any mutation invalidates a cursor anchored
		// into Live, even an in-place rewrite that leaves offsets intact.
		db.cursor = -1
		return nil
	}

	newOffset, reused, err := db.allocSlot(len(payload))
	if err != nil {
		return wrapErr("Update", KindUnknown, err)
	}
	if _, err := record.WriteRawFrame(db.b, newOffset, payload); err != nil {
		return wrapErr("Update", KindUnknown, err)
	}
	if err := record.Tombstone(db.b, int64(offset)); err != nil {
		return wrapErr("Update", KindUnknown, err)
	}
	db.cfg.log.Debug("tombstoned record at offset=%d, relocated to offset=%d", offset, newOffset)
	db.idx.Live[pos] = int32(newOffset)
	db.idx.PushFree(offset)
	if !reused {
		db.header.IndexStartOffset = int32(newOffset + int64(4+len(payload)))
	}
	db.syncCounters()
	db.cursor = -1
	return nil
}

// UpdateByKey merges fields into the record with the given primary key.
func (db *Database) UpdateByKey(key any, fields map[string]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("UpdateByKey"); err != nil {
		return err
	}
	pos, err := db.findByKeyLocked(key)
	if err != nil {
		return err
	}
	if err := db.updateRecordAt(pos, fields); err != nil {
		return err
	}
	db.fireOnUpdate(pos, fields)
	if err := db.maybeAutoPersist(); err != nil {
		return err
	}
	db.maybeAutoClean()
	return nil
}

// UpdateByIndex merges fields into the record at live-index position i.
func (db *Database) UpdateByIndex(i int, fields map[string]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("UpdateByIndex"); err != nil {
		return err
	}
	if i < 0 || i >= len(db.idx.Live) {
		return newErr("UpdateByIndex", KindIndexOutOfRange)
	}
	if err := db.updateRecordAt(i, fields); err != nil {
		return err
	}
	db.fireOnUpdate(i, fields)
	if err := db.maybeAutoPersist(); err != nil {
		return err
	}
	db.maybeAutoClean()
	return nil
}

// UpdateWhere merges fields into every record matching filterStr, returning
// the count updated (spec.md §4.5, "Update by predicate").
func (db *Database) UpdateWhere(filterStr string, fields map[string]any) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("UpdateWhere"); err != nil {
		return 0, err
	}
	positions, err := db.matchPositionsLocked(filterStr)
	if err != nil {
		return 0, err
	}
	for _, pos := range positions {
		if err := db.updateRecordAt(pos, fields); err != nil {
			return 0, err
		}
		db.fireOnUpdate(pos, fields)
	}
	if err := db.maybeAutoPersist(); err != nil {
		return len(positions), err
	}
	db.maybeAutoClean()
	return len(positions), nil
}

func (db *Database) deleteAt(pos int) {
	offset := db.idx.RemoveLiveAt(pos)
	_ = record.Tombstone(db.b, int64(offset))
	db.idx.PushFree(offset)
	db.cfg.log.Debug("tombstoned record at offset=%d", offset)
	db.syncCounters()
	// spec.md §4.9 / §9: any mutation invalidates a cursor anchored into
	// Live, since removing pos shifts every later position.
	db.cursor = -1
}

// DeleteByKey removes the record with the given primary key.
func (db *Database) DeleteByKey(key any) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("DeleteByKey"); err != nil {
		return false, err
	}
	pos, err := db.findByKeyLocked(key)
	if err != nil {
		if Is(err, KindPrimaryKeyValueNotFound) {
			return false, nil
		}
		return false, err
	}
	db.deleteAt(pos)
	db.fireOnDelete(pos)
	if err := db.maybeAutoPersist(); err != nil {
		return true, err
	}
	db.maybeAutoClean()
	return true, nil
}

// DeleteByIndex removes the record at live-index position i.
func (db *Database) DeleteByIndex(i int) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("DeleteByIndex"); err != nil {
		return false, err
	}
	if i < 0 || i >= len(db.idx.Live) {
		return false, newErr("DeleteByIndex", KindIndexOutOfRange)
	}
	db.deleteAt(i)
	db.fireOnDelete(i)
	if err := db.maybeAutoPersist(); err != nil {
		return true, err
	}
	db.maybeAutoClean()
	return true, nil
}

// DeleteWhere removes every record matching filterStr, returning the count
// removed.
func (db *Database) DeleteWhere(filterStr string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("DeleteWhere"); err != nil {
		return 0, err
	}
	positions, err := db.matchPositionsLocked(filterStr)
	if err != nil {
		return 0, err
	}
	// Delete back-to-front so earlier positions stay valid as later ones
	// are removed from Live.
	for i := len(positions) - 1; i >= 0; i-- {
		db.deleteAt(positions[i])
	}
	for _, pos := range positions {
		db.fireOnDelete(pos)
	}
	if err := db.maybeAutoPersist(); err != nil {
		return len(positions), err
	}
	db.maybeAutoClean()
	return len(positions), nil
}

// DeleteAll tombstones every live record.
func (db *Database) DeleteAll() (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("DeleteAll"); err != nil {
		return 0, err
	}
	n := len(db.idx.Live)
	for i := n - 1; i >= 0; i-- {
		db.deleteAt(i)
	}
	if err := db.maybeAutoPersist(); err != nil {
		return n, err
	}
	db.maybeAutoClean()
	return n, nil
}

// GetByKey fetches the record with the given primary key.
func (db *Database) GetByKey(key any) (Record, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	pos, err := db.findByKeyLocked(key)
	if err != nil {
		if Is(err, KindPrimaryKeyValueNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	rec, _, _, err := record.ReadFrame(db.b, int64(db.idx.Live[pos]), db.sch, db.cfg.cipher)
	if err != nil {
		return nil, false, wrapErr("GetByKey", KindUnknown, err)
	}
	return rec.ToMap(db.sch), true, nil
}

// GetByIndex fetches the record at live-index position i.
func (db *Database) GetByIndex(i int) (Record, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if i < 0 || i >= len(db.idx.Live) {
		return nil, false, newErr("GetByIndex", KindIndexOutOfRange)
	}
	rec, _, _, err := record.ReadFrame(db.b, int64(db.idx.Live[i]), db.sch, db.cfg.cipher)
	if err != nil {
		return nil, false, wrapErr("GetByIndex", KindUnknown, err)
	}
	return rec.ToMap(db.sch), true, nil
}

// SelectAll returns every live record, optionally sorted by orderBy.
func (db *Database) SelectAll(orderBy string) ([]Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	recs := make([]*record.Record, len(db.idx.Live))
	for i, off := range db.idx.Live {
		rec, _, _, err := record.ReadFrame(db.b, int64(off), db.sch, db.cfg.cipher)
		if err != nil {
			return nil, wrapErr("SelectAll", KindUnknown, err)
		}
		recs[i] = rec
	}
	if err := db.sortRecords(recs, orderBy); err != nil {
		return nil, err
	}
	return toRecordSlice(recs, db.sch), nil
}

// SelectWhere returns every live record matching filterStr, optionally
// sorted by orderBy.
func (db *Database) SelectWhere(filterStr string, orderBy string) ([]Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	node, err := parseFilterLocked(filterStr)
	if err != nil {
		return nil, err
	}
	var recs []*record.Record
	for _, off := range db.idx.Live {
		rec, _, _, err := record.ReadFrame(db.b, int64(off), db.sch, db.cfg.cipher)
		if err != nil {
			return nil, wrapErr("SelectWhere", KindUnknown, err)
		}
		match, err := evalFilterLocked(node, rec, db.sch)
		if err != nil {
			return nil, err
		}
		if match {
			recs = append(recs, rec)
		}
	}
	if err := db.sortRecords(recs, orderBy); err != nil {
		return nil, err
	}
	return toRecordSlice(recs, db.sch), nil
}

func (db *Database) sortRecords(recs []*record.Record, orderBy string) error {
	if orderBy == "" {
		return nil
	}
	f, idx, ok := db.sch.FieldByName(orderBy)
	if !ok {
		return newErr("order_by", KindInvalidOrderByFieldName)
	}
	if f.IsArray {
		return newErr("order_by", KindCannotOrderByOnArrayField)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Fields[idx].Compare(recs[j].Fields[idx]) < 0
	})
	return nil
}

func toRecordSlice(recs []*record.Record, s *schema.Schema) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r.ToMap(s)
	}
	return out
}

// UserData decodes the user blob (spec.md §4.1, §4.3) back into a string or
// []byte, whichever it was stored as.
func (db *Database) UserData() (any, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	v, err := decodeUserBlob(db.userBlob)
	if err != nil {
		return nil, wrapErr("UserData", KindInvalidMetaDataType, err)
	}
	return v, nil
}

// SetUserData replaces the user blob with v, which must be a string or a
// []byte (spec.md §6: "user_data getter/setter (String or Byte-array
// only)"), and persists the tail immediately.
func (db *Database) SetUserData(v any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	blob, err := encodeUserBlob(v)
	if err != nil {
		return wrapErr("SetUserData", KindInvalidMetaDataType, err)
	}
	db.userBlob = blob
	return db.persist()
}

func (db *Database) findByKeyLocked(key any) (int, error) {
	if !db.sch.HasPrimaryKey() {
		return 0, newErr("find", KindMissingPrimaryKey)
	}
	pk := db.sch.PK()
	kv, err := coerceKey(pk, key)
	if err != nil {
		return 0, wrapErr("find", KindInvalidKeyFieldType, err)
	}
	pos, found, err := index.Search(db.b, db.sch, db.cfg.cipher, db.idx.Live, kv)
	if err != nil {
		return 0, wrapErr("find", KindUnknown, err)
	}
	if !found {
		return 0, newErr("find", KindPrimaryKeyValueNotFound)
	}
	return pos, nil
}

func coerceKey(pk *schema.Field, key any) (value.Value, error) {
	if kv, ok := key.(value.Value); ok {
		return kv, nil
	}
	return value.FromAny(pk.Type, false, key)
}

func (db *Database) matchPositionsLocked(filterStr string) ([]int, error) {
	node, err := parseFilterLocked(filterStr)
	if err != nil {
		return nil, err
	}
	var positions []int
	for i, off := range db.idx.Live {
		rec, _, _, err := record.ReadFrame(db.b, int64(off), db.sch, db.cfg.cipher)
		if err != nil {
			return nil, wrapErr("filter", KindUnknown, err)
		}
		match, err := evalFilterLocked(node, rec, db.sch)
		if err != nil {
			return nil, err
		}
		if match {
			positions = append(positions, i)
		}
	}
	return positions, nil
}

// AddFields extends the schema with extra fields, back-filling defaults
// into every existing record via a compaction pass (spec.md §4.8).
func (db *Database) AddFields(fields []Field, defaults map[string]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("AddFields"); err != nil {
		return err
	}
	if db.header.NumDeleted > 0 {
		return newErr("AddFields", KindCantAddOrRemoveFieldWithDeletedRecords)
	}
	for _, f := range fields {
		if f.IsPrimaryKey {
			return newErr("AddFields", KindPrimaryKeyCannotBeAdded)
		}
	}
	newSchema, err := db.sch.WithAddedFields(fields)
	if err != nil {
		return wrapErr("AddFields", KindFieldNameAlreadyExists, err)
	}

	fieldMap := make([]compact.FieldSource, len(newSchema.Fields))
	for i := range db.sch.Fields {
		fieldMap[i] = compact.FieldSource{FromOldOrdinal: i}
	}
	for i := len(db.sch.Fields); i < len(newSchema.Fields); i++ {
		name := newSchema.Fields[i].Name
		fieldMap[i] = compact.FieldSource{FromOldOrdinal: -1, Default: defaults[name]}
	}

	return db.runCompaction(newSchema, fieldMap)
}

// DeleteFields drops the named fields via a compaction pass.
func (db *Database) DeleteFields(names []string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("DeleteFields"); err != nil {
		return err
	}
	if db.header.NumDeleted > 0 {
		return newErr("DeleteFields", KindCantAddOrRemoveFieldWithDeletedRecords)
	}
	if db.sch.HasPrimaryKey() {
		pkName := db.sch.PK().Name
		for _, n := range names {
			if strings.EqualFold(n, pkName) {
				return newErr("DeleteFields", KindCannotDeletePrimaryKeyField)
			}
		}
	}
	newSchema, err := db.sch.WithoutFields(names)
	if err != nil {
		return wrapErr("DeleteFields", KindInvalidFieldName, err)
	}

	fieldMap := make([]compact.FieldSource, len(newSchema.Fields))
	for i, f := range newSchema.Fields {
		_, oldOrdinal, _ := db.sch.FieldByName(f.Name)
		fieldMap[i] = compact.FieldSource{FromOldOrdinal: oldOrdinal}
	}

	return db.runCompaction(newSchema, fieldMap)
}

// RenameField renames a field; record bytes are unaffected, but the
// descriptor's byte length can change, so this goes through the same
// compaction path as add/drop (spec.md §4.8).
func (db *Database) RenameField(oldName, newName string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.requireCurrentVersion("RenameField"); err != nil {
		return err
	}
	newSchema, err := db.sch.WithRenamedField(oldName, newName)
	if err != nil {
		return wrapErr("RenameField", KindInvalidFieldName, err)
	}
	fieldMap := make([]compact.FieldSource, len(newSchema.Fields))
	for i := range fieldMap {
		fieldMap[i] = compact.FieldSource{FromOldOrdinal: i}
	}
	return db.runCompaction(newSchema, fieldMap)
}

// Clean runs an explicit compaction pass with no schema change (spec.md
// §4.8, "explicit clean").
func (db *Database) Clean() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.clean(nil, nil)
}

func (db *Database) clean(newSchema *schema.Schema, fieldMap []compact.FieldSource) error {
	return db.runCompaction(newSchema, fieldMap)
}

// Upgrade rewrites an older-major-version file at the current version,
// refusing if already current (spec.md §4.8, "upgrade").
func (db *Database) Upgrade() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.header.Major == schema.CurrentMajor && db.header.Minor == schema.CurrentMinor {
		return newErr("Upgrade", KindSchemaAlreadyUpToDate)
	}
	return db.runCompaction(nil, nil)
}

// Reindex rebuilds the live index via the same physical rewrite compaction
// performs, without changing the schema.
func (db *Database) Reindex() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.runCompaction(nil, nil)
}

func (db *Database) runCompaction(newSchema *schema.Schema, fieldMap []compact.FieldSource) error {
	var staging backing.Backing = backing.NewMemoryBacking()
	result, err := compact.Run(compact.Options{
		Src:       db.b,
		Dst:       staging,
		Header:    db.header,
		Schema:    db.sch,
		NewSchema: newSchema,
		FieldMap:  fieldMap,
		Live:      db.idx.Live,
		Cipher:    db.cfg.cipher,
		UserBlob:  db.userBlob,
		Log:       db.cfg.log,
	})
	if err != nil {
		return wrapErr("compaction", KindUnknown, err)
	}

	copier, ok := staging.(backing.Copier)
	if !ok {
		return newErr("compaction", KindInvalidOperation)
	}
	if err := copier.CopyTo(db.b); err != nil {
		return wrapErr("compaction", KindUnknown, err)
	}
	if err := db.b.Flush(); err != nil {
		return wrapErr("compaction", KindUnknown, err)
	}

	db.header = result.Header
	db.sch = result.Schema
	db.idx = &index.Index{Live: result.Live}
	db.cursor = -1
	return nil
}

func parseFilterLocked(filterStr string) (filter.Node, error) {
	node, err := filter.Parse(filterStr)
	if err != nil {
		return nil, wrapErr("filter", KindInvalidFilterConstruct, err)
	}
	return node, nil
}

func evalFilterLocked(node filter.Node, rec *record.Record, s *schema.Schema) (bool, error) {
	ok, err := filter.Eval(node, rec, s)
	if err != nil {
		return false, wrapErr("filter", KindInvalidFilterConstruct, err)
	}
	return ok, nil
}

// userBlobTagString and userBlobTagByteArray are the [type_tag:i32] values
// spec.md §4.1 places ahead of the user blob's payload. They reuse this
// module's own value.Kind wire codes (value.KindString, value.KindByte)
// since the spec leaves concrete tag values unspecified.
const (
	userBlobTagString    int32 = int32(value.KindString)
	userBlobTagByteArray int32 = int32(value.KindByte)
)

func encodeUserBlob(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch payload := v.(type) {
	case string:
		return packUserBlob(userBlobTagString, []byte(payload)), nil
	case []byte:
		return packUserBlob(userBlobTagByteArray, payload), nil
	default:
		return nil, fmt.Errorf("user data must be a string or []byte, got %T", v)
	}
}

func packUserBlob(tag int32, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[:4], uint32(tag))
	copy(buf[4:], payload)
	return buf
}

func decodeUserBlob(blob []byte) (any, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < 4 {
		return nil, fmt.Errorf("user blob: truncated type tag")
	}
	tag := int32(binary.LittleEndian.Uint32(blob[:4]))
	payload := blob[4:]
	switch tag {
	case userBlobTagString:
		return string(payload), nil
	case userBlobTagByteArray:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	default:
		return nil, fmt.Errorf("user blob: unknown type tag %d", tag)
	}
}

func removeFile(path string) error {
	return os.Remove(path)
}
