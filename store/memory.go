package store

import (
	"sync"

	"github.com/meteorhacks/dialog/dialogerr"
)

const defaultChunkRecords = 4096

// memorySegment is the IN_MEMORY Segment backend: heap-resident chunks
// grown on demand, generalizing fixedblock.go's single preallocated
// []byte into a slice of fixed-size arenas so append never has to
// reallocate (and therefore never invalidates) an already-published
// region, mirroring dblock.go's block_<n> segment-file chunking without
// the filesystem.
type memorySegment struct {
	recordSize   int64
	chunkRecords int64
	chunkBytes   int64

	cur cursor

	growMu sync.RWMutex
	chunks [][]byte
}

func newMemorySegment(opts Options) *memorySegment {
	chunkRecords := opts.ChunkRecords
	if chunkRecords <= 0 {
		chunkRecords = defaultChunkRecords
	}

	return &memorySegment{
		recordSize:   opts.RecordSize,
		chunkRecords: chunkRecords,
		chunkBytes:   chunkRecords * opts.RecordSize,
	}
}

func (m *memorySegment) chunkFor(offset int64) []byte {
	idx := offset / m.chunkBytes
	local := offset % m.chunkBytes

	m.growMu.RLock()
	if int64(len(m.chunks)) > idx {
		chunk := m.chunks[idx]
		m.growMu.RUnlock()
		return chunk[local : local+m.recordSize]
	}
	m.growMu.RUnlock()

	m.growMu.Lock()
	for int64(len(m.chunks)) <= idx {
		m.chunks = append(m.chunks, make([]byte, m.chunkBytes))
	}
	chunk := m.chunks[idx]
	m.growMu.Unlock()

	return chunk[local : local+m.recordSize]
}

func (m *memorySegment) Reserve(n int64) int64 {
	return m.cur.reserve(n)
}

func (m *memorySegment) WriteAt(offset int64, data []byte) error {
	copy(m.chunkFor(offset), data)
	return nil
}

func (m *memorySegment) Publish(offset, n int64) {
	m.cur.publish(offset, n)
}

func (m *memorySegment) Append(record []byte) (int64, error) {
	if int64(len(record)) != m.recordSize {
		return 0, dialogerr.BadSize(int(m.recordSize), len(record))
	}

	offset := m.cur.reserve(m.recordSize)
	copy(m.chunkFor(offset), record)
	m.cur.publish(offset, m.recordSize)

	return offset, nil
}

func (m *memorySegment) AppendBatch(records [][]byte) (int64, error) {
	n := int64(len(records))
	if n == 0 {
		return m.cur.load(), nil
	}

	span := n * m.recordSize
	first := m.cur.reserve(span)

	for i, rec := range records {
		if int64(len(rec)) != m.recordSize {
			return 0, dialogerr.BadSize(int(m.recordSize), len(rec))
		}
		offset := first + int64(i)*m.recordSize
		copy(m.chunkFor(offset), rec)
	}

	m.cur.publish(first, span)

	return first, nil
}

func (m *memorySegment) Read(offset int64, n int) ([]byte, error) {
	if offset%m.recordSize != 0 {
		return nil, dialogerr.OffsetOutOfBounds(offset)
	}

	span := int64(n) * m.recordSize
	if offset+span > m.cur.load() {
		return nil, dialogerr.OffsetOutOfBounds(offset)
	}

	out := make([]byte, span)
	for i := 0; i < n; i++ {
		rec := m.chunkFor(offset + int64(i)*m.recordSize)
		copy(out[int64(i)*m.recordSize:], rec)
	}

	return out, nil
}

func (m *memorySegment) Tail() int64 {
	return m.cur.load()
}

func (m *memorySegment) NumRecords() int64 {
	return m.cur.load() / m.recordSize
}

func (m *memorySegment) Close() error {
	return nil
}
