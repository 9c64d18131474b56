package store

import (
	"runtime"
	"sync/atomic"
)

// cursor implements the reserve-write-publish sequencing every Segment
// backend shares: reserve a slot with an atomic fetch-and-add, let the
// caller write into it, then publish read_tail only once every offset
// below it has already been published — the acquire/release pairing
// spec.md §5 requires between an append and any reader that observes its
// offset via Tail(). Spinning with runtime.Gosched() while waiting for
// an earlier, slower writer to publish mirrors the teacher's own
// runtime.Gosched() use in fixedblock.go and mindex.go's writers.
type cursor struct {
	reserved int64 // atomic: next offset to hand out
	tail     int64 // atomic: published read_tail
}

// reserve claims n contiguous bytes and returns the starting offset.
func (c *cursor) reserve(n int64) int64 {
	return atomic.AddInt64(&c.reserved, n) - n
}

// publish blocks (spinning) until every offset below `offset` has been
// published, then advances read_tail to offset+n.
func (c *cursor) publish(offset, n int64) {
	for {
		if atomic.CompareAndSwapInt64(&c.tail, offset, offset+n) {
			return
		}
		runtime.Gosched()
	}
}

func (c *cursor) load() int64 {
	return atomic.LoadInt64(&c.tail)
}
