// Package store implements the Segment Store: append-only bytes with
// stable monotone offsets and random reads. Append is wait-free in the
// common case — a shared write cursor is advanced with an atomic
// fetch-and-add to reserve a slot, the payload is written into the
// reserved region, and the record is published by raising read_tail
// monotonically. The storage backend is pluggable; only the offset
// contract is mandated here, durability semantics are delegated to the
// backend, exactly as the teacher's dblock/rblock/fixedblock split data
// layout from durability policy.
package store

import "github.com/meteorhacks/dialog/dialogerr"

// Mode selects a Segment Store backend.
type Mode int

const (
	InMemory Mode = iota
	DurableRelaxed
	DurableStrict
)

// Options configures a Segment regardless of backend; durable backends
// use Path and ignore it for InMemory.
type Options struct {
	// RecordSize is the fixed byte width of every record in this segment.
	RecordSize int64

	// Path is the directory durable backends persist segment files to.
	Path string

	// ChunkRecords is the number of records preallocated per backing
	// arena/segment file, mirroring dblock.go's SegmentSize knob.
	ChunkRecords int64
}

// Segment is the append-only byte log contract every table's storage
// layer is built on. Append/AppendBatch are self-contained convenience
// methods; Reserve/WriteAt/Publish expose the same reserve-write-publish
// sequence split into steps so a caller (table.Table) can interleave its
// own side effects — index inserts, filter evaluation, trigger dirty
// marking — between the write and the publish, keeping the publish step
// the true linearization point spec.md §4.3/§5 require instead of
// burying it inside a single opaque Append call.
type Segment interface {
	// Append reserves a slot, writes record, publishes read_tail, and
	// returns the record's offset.
	Append(record []byte) (offset int64, err error)

	// AppendBatch reserves a contiguous range for len(records) records in
	// one step, writes each, and publishes once. Returns the first
	// record's offset. No partial success: either every record in the
	// batch is visible or none are.
	AppendBatch(records [][]byte) (firstOffset int64, err error)

	// Reserve claims n contiguous bytes and returns the starting offset.
	// The reserved range is not visible to readers until Publish is
	// called with the same offset and n.
	Reserve(n int64) (offset int64)

	// WriteAt copies data into the reserved region starting at offset.
	WriteAt(offset int64, data []byte) error

	// Publish raises read_tail to offset+n, blocking until every earlier
	// reservation has published first.
	Publish(offset, n int64)

	// Read returns n records' worth of bytes starting at offset. Fails
	// OutOfBounds if the requested range is not fully below read_tail or
	// offset is not aligned to RecordSize.
	Read(offset int64, n int) ([]byte, error)

	// Tail returns the current published read_tail.
	Tail() int64

	// NumRecords returns the number of fully published records.
	NumRecords() int64

	Close() error
}

// New constructs a Segment for the given backend Mode.
func New(mode Mode, opts Options) (Segment, error) {
	switch mode {
	case InMemory:
		return newMemorySegment(opts), nil
	case DurableRelaxed:
		return newMmapSegment(opts, false)
	case DurableStrict:
		return newMmapSegment(opts, true)
	default:
		return nil, dialogerr.Parse("unknown storage mode")
	}
}
