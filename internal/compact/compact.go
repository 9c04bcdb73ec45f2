// Package compact implements the compaction/schema-evolution rewrite pass:
// stage a fresh stream, walk the live index, copy or re-project each
// record, and hand back the new header/index for the caller to swap in
// (spec.md §4.8).
package compact

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/eztools-software/filedb/internal/backing"
	"github.com/eztools-software/filedb/internal/crypt"
	"github.com/eztools-software/filedb/internal/dlog"
	"github.com/eztools-software/filedb/internal/index"
	"github.com/eztools-software/filedb/internal/record"
	"github.com/eztools-software/filedb/internal/schema"
	"github.com/eztools-software/filedb/internal/value"
)

// FieldSource tells Run how to populate one field of the new schema: either
// carried over from an ordinal of the old schema, or a caller-supplied
// default for a field the old schema never had (spec.md §4.8: "new fields
// get the caller-provided default").
type FieldSource struct {
	FromOldOrdinal int // -1 if this is a newly added field
	Default        any
}

// Options configures one compaction pass. NewSchema and FieldMap are nil
// for a plain clean (no schema change); both must be set together for an
// add/drop/rename field evolution.
type Options struct {
	Src    backing.Backing
	Dst    backing.Backing
	Header *schema.Header
	Schema *schema.Schema

	NewSchema *schema.Schema
	FieldMap  []FieldSource

	Live     []int32
	Cipher   crypt.Cipher
	UserBlob []byte
	Log      *dlog.Logger
}

// Result carries the new header (counters, index_start_offset already
// updated) and live index, ready to be installed by the caller once the
// atomic swap (spec.md §4.8 step 5) completes.
type Result struct {
	Header *schema.Header
	Schema *schema.Schema
	Live   []int32
}

// Run executes the compaction procedure described in spec.md §4.8 steps
// 1-4 against opts.Dst (an already-allocated, empty staging backing).
// Step 5 (the atomic swap) is the caller's responsibility, since it
// depends on whether the backing is file- or memory-based.
func Run(opts Options) (*Result, error) {
	newSchema := opts.Schema
	schemaChanged := opts.NewSchema != nil
	if schemaChanged {
		newSchema = opts.NewSchema
		if len(opts.FieldMap) != len(newSchema.Fields) {
			return nil, fmt.Errorf("compact: field map length %d does not match new schema field count %d", len(opts.FieldMap), len(newSchema.Fields))
		}
	}

	h := &schema.Header{
		Major:       schema.CurrentMajor,
		Minor:       schema.CurrentMinor,
		Flags:       opts.Header.Flags,
		UserVersion: opts.Header.UserVersion,
	}
	if err := schema.WriteHeader(opts.Dst, h); err != nil {
		return nil, fmt.Errorf("compact: write header: %w", err)
	}

	var descBuf bytes.Buffer
	schema.EncodeDescriptor(&descBuf, newSchema, schema.CurrentMajor)
	dataStart := int64(h.Size())
	if _, err := opts.Dst.WriteAt(descBuf.Bytes(), dataStart); err != nil {
		return nil, fmt.Errorf("compact: write schema descriptor: %w", err)
	}

	pos := dataStart + int64(descBuf.Len())
	newLive := make([]int32, 0, len(opts.Live))
	var bytesBefore, bytesAfter int64

	for _, off := range opts.Live {
		var n int
		var err error
		if !schemaChanged {
			n, err = record.CopyFrame(opts.Src, int64(off), opts.Dst, pos)
		} else {
			var oldRec *record.Record
			oldRec, _, _, err = record.ReadFrame(opts.Src, int64(off), opts.Schema, opts.Cipher)
			if err == nil {
				projected := project(oldRec, newSchema, opts.FieldMap)
				n, err = record.WriteFrame(opts.Dst, pos, projected, newSchema, opts.Cipher)
				n += 4 // frame = size prefix + payload, WriteFrame returns payload length only
			}
		}
		if err != nil {
			return nil, fmt.Errorf("compact: rewrite record at offset %d: %w", off, err)
		}
		cap, _ := record.CapacityAt(opts.Src, int64(off))
		bytesBefore += int64(4 + cap)
		bytesAfter += int64(n)

		newLive = append(newLive, int32(pos))
		pos += int64(n)
	}

	h.NumRecords = int32(len(newLive))
	h.NumDeleted = 0
	h.IndexStartOffset = int32(pos)
	if err := schema.WriteHeader(opts.Dst, h); err != nil {
		return nil, fmt.Errorf("compact: rewrite header with final counters: %w", err)
	}

	ix := &index.Index{Live: newLive, Free: nil}
	if err := ix.Persist(opts.Dst, pos, opts.UserBlob); err != nil {
		return nil, fmt.Errorf("compact: persist index: %w", err)
	}

	if opts.Log != nil {
		opts.Log.Info("compaction reclaimed %s (%s -> %s) across %d records",
			humanize.Bytes(uint64(max64(0, bytesBefore-bytesAfter))),
			humanize.Bytes(uint64(bytesBefore)), humanize.Bytes(uint64(bytesAfter)), len(newLive))
	}

	return &Result{Header: h, Schema: newSchema, Live: newLive}, nil
}

func project(old *record.Record, newSchema *schema.Schema, fieldMap []FieldSource) *record.Record {
	out := record.New(newSchema)
	for i, src := range fieldMap {
		if src.FromOldOrdinal >= 0 {
			if old.Null.Test(uint(src.FromOldOrdinal)) {
				out.Null.Set(uint(i))
			} else {
				out.Fields[i] = old.Fields[src.FromOldOrdinal]
			}
			continue
		}
		if src.Default == nil {
			out.Null.Set(uint(i))
			continue
		}
		f := newSchema.Fields[i]
		v, err := value.FromAny(f.Type, f.IsArray, src.Default)
		if err != nil {
			out.Null.Set(uint(i))
			continue
		}
		out.Fields[i] = v
	}
	return out
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
