// Package record implements the record frame codec: framing a record as
// [size:i32][nullmask][fields] with tombstone and encryption-envelope
// support (spec.md §3, §4.2).
package record

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/eztools-software/filedb/internal/schema"
	"github.com/eztools-software/filedb/internal/value"
)

// Record holds one row's values in field-ordinal order, with a bitset
// tracking which ordinals are null (spec.md §3: "nullness is carried by a
// bitmask prefix"). The per-field null tracking uses
// github.com/bits-and-blooms/bitset rather than hand-rolled bit arithmetic.
//
// Present tracks, for a Record built by FromMap to serve as an update
// overlay, which ordinals the caller's map actually mentioned. It
// distinguishes "field absent from the map" (keep the old value, Present
// bit clear) from "field present with an explicit nil value" (override to
// null, Present bit set and Null bit set) — spec.md §4.5's update rule that
// only *missing* fields fall back to the old value. A freshly decoded or
// compacted Record has every ordinal present by construction, so New marks
// every bit set; only FromMap ever clears one.
type Record struct {
	Null    *bitset.BitSet
	Present *bitset.BitSet
	Fields  []value.Value // indexed by ordinal; undefined where Null is set
}

// New builds an all-null, fully-present Record sized for s.
func New(s *schema.Schema) *Record {
	n := uint(len(s.Fields))
	return &Record{
		Null:    bitset.New(n),
		Present: fullBitset(n),
		Fields:  make([]value.Value, n),
	}
}

// fullBitset returns a bitset of n bits, every one set — the "fully
// present" state of a Record decoded straight off disk or freshly built by
// New, before any field is marked absent.
func fullBitset(n uint) *bitset.BitSet {
	b := bitset.New(n)
	for i := uint(0); i < n; i++ {
		b.Set(i)
	}
	return b
}

// FromMap builds a Record from a {field_name -> value} map (spec.md §9: "the
// core only speaks in {field_name -> value} maps and typed scalar
// variants"). A field absent from m clears its Present bit (MergeOver keeps
// the old value); a field present with an explicit nil value keeps Present
// set and marks Null, so MergeOver overrides the old value to null instead
// of leaving it untouched.
func FromMap(s *schema.Schema, m map[string]any) (*Record, error) {
	rec := New(s)
	for i, f := range s.Fields {
		raw, present := m[f.Name]
		if !present {
			for k, v := range m {
				if eqFold(k, f.Name) {
					raw, present = v, true
					break
				}
			}
		}
		if !present {
			rec.Present.Clear(uint(i))
			rec.Null.Set(uint(i))
			continue
		}
		if raw == nil {
			rec.Null.Set(uint(i))
			continue
		}
		v, err := value.FromAny(f.Type, f.IsArray, raw)
		if err != nil {
			return nil, err
		}
		rec.Fields[i] = v
	}
	return rec, nil
}

// ToMap renders rec as a {field_name -> value} map, omitting null fields.
func (r *Record) ToMap(s *schema.Schema) map[string]any {
	out := make(map[string]any, len(s.Fields))
	for i, f := range s.Fields {
		if r.Null.Test(uint(i)) {
			continue
		}
		out[f.Name] = value.ToAny(r.Fields[i])
	}
	return out
}

// MergeOver returns a new Record equal to base with every ordinal overlay's
// map actually mentioned replacing base's value at that ordinal — including
// overriding to null when the map mentioned the field with an explicit nil
// (spec.md §4.5, update: "input values override, missing fields keep old
// values"). Ordinals overlay.Present doesn't cover fall back to base
// unchanged.
func MergeOver(base, overlay *Record) *Record {
	out := &Record{
		Null:    base.Null.Clone(),
		Present: base.Present.Clone(),
		Fields:  append([]value.Value{}, base.Fields...),
	}
	for i := range overlay.Fields {
		if overlay.Present != nil && !overlay.Present.Test(uint(i)) {
			continue
		}
		if overlay.Null.Test(uint(i)) {
			out.Null.Set(uint(i))
			continue
		}
		out.Fields[i] = overlay.Fields[i]
		out.Null.Clear(uint(i))
	}
	return out
}

func eqFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
