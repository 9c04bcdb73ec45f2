// Command filedbcheck is a smoke test: it creates a throwaway database,
// round-trips a handful of records through the main mutation and query
// operations, and reports pass/fail for each step. It is diagnostic
// tooling, not part of the storage engine itself.
package main

import (
	"fmt"
	"os"

	"github.com/eztools-software/filedb"
)

func check(name string, err error) bool {
	if err != nil {
		fmt.Printf("✗ %s: %v\n", name, err)
		return false
	}
	fmt.Printf("✓ %s\n", name)
	return true
}

func main() {
	fmt.Println("filedb smoke check")
	fmt.Println("===================")

	ok := true

	b := filedb.NewMemoryBacking()
	fields := filedb.Schema{
		filedb.NewField("id", filedb.KindInt32, false),
		filedb.NewField("name", filedb.KindString, false),
		filedb.NewField("score", filedb.KindFloat64, false),
	}
	fields[0].IsPrimaryKey = true

	db, err := filedb.Create(b, fields)
	ok = check("Create", err) && ok
	if db == nil {
		os.Exit(1)
	}

	_, err = db.Add(map[string]any{"id": int32(1), "name": "alpha", "score": 1.5})
	ok = check("Add(1)", err) && ok
	_, err = db.Add(map[string]any{"id": int32(2), "name": "beta", "score": 2.5})
	ok = check("Add(2)", err) && ok
	_, err = db.Add(map[string]any{"id": int32(3), "name": "gamma", "score": 3.5})
	ok = check("Add(3)", err) && ok

	rec, found, err := db.GetByKey(int32(2))
	ok = check("GetByKey(2)", err) && ok
	if !found || rec["name"] != "beta" {
		fmt.Println("✗ GetByKey(2): unexpected result", rec)
		ok = false
	} else {
		fmt.Println("✓ GetByKey(2) returned expected row")
	}

	err = db.UpdateByKey(int32(2), map[string]any{"score": 9.0})
	ok = check("UpdateByKey(2)", err) && ok

	n, err := db.UpdateWhere("score < 5", map[string]any{"name": "updated"})
	ok = check(fmt.Sprintf("UpdateWhere (%d rows)", n), err) && ok

	rows, err := db.SelectAll("id")
	ok = check(fmt.Sprintf("SelectAll (%d rows)", len(rows)), err) && ok

	matched, err := db.SelectWhere("score >= 2", "")
	ok = check(fmt.Sprintf("SelectWhere (%d rows)", len(matched)), err) && ok

	deleted, err := db.DeleteByKey(int32(1))
	ok = check(fmt.Sprintf("DeleteByKey(1) deleted=%v", deleted), err) && ok

	err = db.Clean()
	ok = check("Clean", err) && ok

	err = db.AddFields([]filedb.Field{filedb.NewField("note", filedb.KindString, false)}, map[string]any{"note": "n/a"})
	ok = check("AddFields", err) && ok

	err = db.BeginTrans()
	ok = check("BeginTrans", err) && ok
	_, err = db.Add(map[string]any{"id": int32(4), "name": "delta", "score": 4.0, "note": "temp"})
	ok = check("Add inside transaction", err) && ok
	err = db.RollbackTrans()
	ok = check("RollbackTrans", err) && ok

	_, found, err = db.GetByKey(int32(4))
	if err == nil && !found {
		fmt.Println("✓ rollback discarded the transactional Add")
	} else {
		fmt.Println("✗ rollback did not discard the transactional Add")
		ok = false
	}

	err = db.SetUserData("smoke test")
	ok = check("SetUserData", err) && ok
	_, err = db.UserData()
	ok = check("UserData", err) && ok

	if db.MoveFirst() {
		for {
			if _, err := db.Current(); err != nil {
				ok = check("Current", err) && ok
				break
			}
			if !db.MoveNext() {
				break
			}
		}
	}

	if err := db.Close(); err != nil {
		ok = check("Close", err) && ok
	}

	if ok {
		fmt.Println("\nall checks passed")
		return
	}
	fmt.Println("\nsome checks failed")
	os.Exit(1)
}
