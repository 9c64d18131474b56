package store

import (
	"os"
	"testing"
)

func TestMemorySegmentAppendReadRoundTrip(t *testing.T) {
	seg, err := New(InMemory, Options{RecordSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close()

	off, err := seg.Append([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatal(err)
	}
	if off != 0 {
		t.Fatalf("first append offset = %d, want 0", off)
	}

	if seg.Tail() != 8 {
		t.Fatalf("Tail() = %d, want 8", seg.Tail())
	}

	got, err := seg.Read(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestOffsetMonotonicity mirrors scenario S3: 2560 fixed 64-byte records
// appended sequentially get contiguous monotonically increasing offsets
// and every one reads back exactly as written.
func TestOffsetMonotonicity(t *testing.T) {
	const maxRecords = 2560
	const dataSize = 64

	seg, err := New(InMemory, Options{RecordSize: dataSize})
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close()

	for i := 0; i < maxRecords; i++ {
		rec := make([]byte, dataSize)
		for j := range rec {
			rec[j] = byte(i % 256)
		}

		off, err := seg.Append(rec)
		if err != nil {
			t.Fatal(err)
		}
		if off != int64(i*dataSize) {
			t.Fatalf("record %d offset = %d, want %d", i, off, i*dataSize)
		}
	}

	if seg.NumRecords() != maxRecords {
		t.Fatalf("NumRecords() = %d, want %d", seg.NumRecords(), maxRecords)
	}

	for i := 0; i < maxRecords; i++ {
		got, err := seg.Read(int64(i*dataSize), 1)
		if err != nil {
			t.Fatal(err)
		}
		want := byte(i % 256)
		for _, b := range got {
			if b != want {
				t.Fatalf("record %d byte = %d, want %d", i, b, want)
			}
		}
	}
}

// TestConcurrentProducers mirrors scenario S4: two producers appending
// 10,000 records each concurrently, all 20,000 must be visible and
// readable afterward.
func TestConcurrentProducers(t *testing.T) {
	const perProducer = 10000
	const dataSize = 8

	seg, err := New(InMemory, Options{RecordSize: dataSize})
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close()

	done := make(chan error, 2)
	produce := func(tag byte) {
		for i := 0; i < perProducer; i++ {
			rec := make([]byte, dataSize)
			rec[0] = tag
			if _, err := seg.Append(rec); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}

	go produce(1)
	go produce(2)

	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}

	if seg.NumRecords() != perProducer*2 {
		t.Fatalf("NumRecords() = %d, want %d", seg.NumRecords(), perProducer*2)
	}

	all, err := seg.Read(0, perProducer*2)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(all)) != int64(perProducer*2*dataSize) {
		t.Fatalf("Read returned %d bytes, want %d", len(all), perProducer*2*dataSize)
	}
}

func TestReadOutOfBoundsRejected(t *testing.T) {
	seg, err := New(InMemory, Options{RecordSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close()

	if _, err := seg.Append([]byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	if _, err := seg.Read(4, 1); err == nil {
		t.Error("expected OutOfBounds reading past tail")
	}
	if _, err := seg.Read(1, 1); err == nil {
		t.Error("expected OutOfBounds reading misaligned offset")
	}
}

func TestAppendBadSizeRejected(t *testing.T) {
	seg, err := New(InMemory, Options{RecordSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close()

	if _, err := seg.Append([]byte{1, 2, 3}); err == nil {
		t.Error("expected BadSize error for undersized record")
	}
}

func TestMmapSegmentAppendReadRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "dialog-store-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	seg, err := New(DurableStrict, Options{RecordSize: 8, Path: dir, ChunkRecords: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer seg.Close()

	for i := 0; i < 10; i++ {
		rec := make([]byte, 8)
		rec[0] = byte(i)
		if _, err := seg.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	if seg.NumRecords() != 10 {
		t.Fatalf("NumRecords() = %d, want 10", seg.NumRecords())
	}

	got, err := seg.Read(8*3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 3 {
		t.Fatalf("record 3 byte0 = %d, want 3", got[0])
	}
}
