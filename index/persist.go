package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strconv"

	C "github.com/glycerine/go-capnproto"
)

// PostingEntry is a capnp struct generalizing mindex.capnp.go's MIndexEl
// (Position int64, Values TextList) down to the one key/offset pair a
// bucketed posting needs: the discretized key this index already
// computes via Discretize, and the record offset posted under it.
type PostingEntry C.Struct

func NewRootPostingEntry(s *C.Segment) PostingEntry  { return PostingEntry(s.NewRootStruct(8, 1)) }
func ReadRootPostingEntry(s *C.Segment) PostingEntry { return PostingEntry(s.Root(0).ToStruct()) }

func (s PostingEntry) Offset() int64     { return int64(C.Struct(s).Get64(0)) }
func (s PostingEntry) SetOffset(v int64) { C.Struct(s).Set64(0, uint64(v)) }

func (s PostingEntry) Key() string { return C.Struct(s).GetObject(0).ToText() }

func (s PostingEntry) SetKey(v string) {
	seg := C.Struct(s).Segment
	C.Struct(s).SetObject(0, C.Object(seg.NewText(v)))
}

const (
	postingHeaderSize  = 8
	postingPaddingSize = 4
)

var postingPadding = []byte{0, 0, 0, 0}

var errShortWrite = errors.New("incorrect number of bytes written to index snapshot")
var errShortRead = errors.New("incorrect number of bytes read from index snapshot")

// SaveSnapshot writes every posting in idx to w in the same
// [size|element|padding] framing mindex.go's saveElement established,
// one PostingEntry per (key, offset) pair.
func (idx *Index) SaveSnapshot(w io.Writer) error {
	bw := bufio.NewWriter(w)

	var walkErr error
	idx.postings.Range(func(k, v interface{}) bool {
		key := k.(string)
		pl := v.(*postingList)

		pl.mu.Lock()
		offsets := make([]int64, len(pl.offsets))
		copy(offsets, pl.offsets)
		pl.mu.Unlock()

		for _, off := range offsets {
			seg := C.NewBuffer(nil)
			entry := NewRootPostingEntry(seg)
			entry.SetOffset(off)
			entry.SetKey(key)

			var buf bytes.Buffer
			if _, err := seg.WriteTo(&buf); err != nil {
				walkErr = err
				return false
			}

			header := make([]byte, postingHeaderSize)
			binary.PutVarint(header, int64(buf.Len()))

			if _, err := bw.Write(header); err != nil {
				walkErr = err
				return false
			}
			if n, err := bw.Write(buf.Bytes()); err != nil || n != buf.Len() {
				if err == nil {
					err = errShortWrite
				}
				walkErr = err
				return false
			}
			if _, err := bw.Write(postingPadding); err != nil {
				walkErr = err
				return false
			}
		}

		return true
	})

	if walkErr != nil {
		return walkErr
	}

	return bw.Flush()
}

// LoadSnapshot restores postings from a reader previously written by
// SaveSnapshot, re-inserting each (key, offset) pair directly (bypassing
// Discretize, since the key is already discretized).
func (idx *Index) LoadSnapshot(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var offset int64
	total := int64(len(data))

	for offset < total {
		if offset+postingHeaderSize > total {
			return errShortRead
		}

		sizeHeader := data[offset : offset+postingHeaderSize]
		elSize, n := binary.Varint(sizeHeader)
		if n <= 0 {
			return errShortRead
		}

		start := offset + postingHeaderSize
		end := start + elSize
		if end > total {
			return errShortRead
		}

		seg, err := C.ReadFromStream(bytes.NewReader(data[start:end]), nil)
		if err != nil {
			return err
		}

		entry := ReadRootPostingEntry(seg)
		idx.insertRaw(entry.Key(), entry.Offset())

		offset = end + postingPaddingSize
	}

	return nil
}

// insertRaw appends offset under an already-discretized key, used only
// by LoadSnapshot to avoid re-discretizing a persisted key.
func (idx *Index) insertRaw(key string, offset int64) {
	raw, _ := idx.postings.LoadOrStore(key, &postingList{})
	pl := raw.(*postingList)

	pl.mu.Lock()
	pl.offsets = append(pl.offsets, offset)
	pl.mu.Unlock()

	if idx.BucketSize > 0 {
		if b, err := strconv.ParseInt(key, 10, 64); err == nil {
			idx.observeBucket(b)
		}
	}
}
