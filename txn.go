package filedb

import (
	"github.com/eztools-software/filedb/internal/backing"
	"github.com/eztools-software/filedb/internal/index"
	"github.com/eztools-software/filedb/internal/schema"
)

// txnState snapshots everything a rollback needs to restore: the full byte
// stream as it stood at BeginTrans, and the in-memory header/schema/index
// and user blob that were derived from it (spec.md §4.10). There is no
// MVCC-style conflict detection: only one transaction may be open on a
// handle at a time, so there is nothing to detect conflicts against.
type txnState struct {
	snapshot backing.Backing
	header   *schema.Header
	sch      *schema.Schema
	idx      *index.Index
	userBlob []byte
}

// BeginTrans snapshots the current byte stream into an in-memory staging
// buffer. Only one transaction may be active on a handle at a time.
func (db *Database) BeginTrans() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.txn != nil {
		return newErr("BeginTrans", KindTransactionAlreadyActive)
	}
	copier, ok := db.b.(backing.Copier)
	if !ok {
		return newErr("BeginTrans", KindInvalidOperation)
	}
	snapshot := backing.NewMemoryBacking()
	if err := copier.CopyTo(snapshot); err != nil {
		return wrapErr("BeginTrans", KindUnknown, err)
	}

	headerCopy := *db.header
	db.txn = &txnState{
		snapshot: snapshot,
		header:   &headerCopy,
		sch:      db.sch.Clone(),
		idx: &index.Index{
			Live: append([]int32{}, db.idx.Live...),
			Free: append([]int32{}, db.idx.Free...),
		},
		userBlob: append([]byte{}, db.userBlob...),
	}
	db.cfg.log.Info("transaction begun, snapshot of %d records taken", len(db.idx.Live))
	return nil
}

// CommitTrans discards the snapshot, keeping every change made since
// BeginTrans.
func (db *Database) CommitTrans() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.txn == nil {
		return newErr("CommitTrans", KindNoCurrentTransaction)
	}
	db.txn = nil
	db.cfg.log.Info("transaction committed")
	return nil
}

// RollbackTrans copies the snapshot's bytes back over the live backing and
// restores the in-memory header/schema/index to their state at
// BeginTrans, undoing every mutation made since.
func (db *Database) RollbackTrans() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.txn == nil {
		return newErr("RollbackTrans", KindNoCurrentTransaction)
	}
	copier, ok := db.txn.snapshot.(backing.Copier)
	if !ok {
		return newErr("RollbackTrans", KindInvalidOperation)
	}
	if err := copier.CopyTo(db.b); err != nil {
		return wrapErr("RollbackTrans", KindUnknown, err)
	}
	if err := db.b.Flush(); err != nil {
		return wrapErr("RollbackTrans", KindUnknown, err)
	}

	db.header = db.txn.header
	db.sch = db.txn.sch
	db.idx = db.txn.idx
	db.userBlob = db.txn.userBlob
	db.cursor = -1
	db.txn = nil
	db.cfg.log.Warn("transaction rolled back, %d records restored", len(db.idx.Live))
	return nil
}
