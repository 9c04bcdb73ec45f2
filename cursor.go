package filedb

import "github.com/eztools-software/filedb/internal/record"

// MoveFirst positions the cursor at the first live record, returning false
// if the table is empty (spec.md §4.9, cursor_pos semantics).
func (db *Database) MoveFirst() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(db.idx.Live) == 0 {
		db.cursor = -1
		return false
	}
	db.cursor = 0
	return true
}

// MoveNext advances the cursor by one live record, returning false once it
// passes the last record. Mutating the table invalidates the cursor
// (spec.md §9, "Mutation-during-iteration") by resetting it to -1.
func (db *Database) MoveNext() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.cursor < 0 {
		return false
	}
	next := db.cursor + 1
	if next >= len(db.idx.Live) {
		db.cursor = -1
		return false
	}
	db.cursor = next
	return true
}

// Current reads the record at the cursor's position.
func (db *Database) Current() (Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.cursor < 0 || db.cursor >= len(db.idx.Live) {
		return nil, newErr("Current", KindIteratorPastEndOfFile)
	}
	rec, _, _, err := record.ReadFrame(db.b, int64(db.idx.Live[db.cursor]), db.sch, db.cfg.cipher)
	if err != nil {
		return nil, wrapErr("Current", KindUnknown, err)
	}
	return rec.ToMap(db.sch), nil
}
