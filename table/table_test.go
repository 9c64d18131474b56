package table

import (
	"testing"
	"time"

	"github.com/meteorhacks/dialog/clock"
	"github.com/meteorhacks/dialog/schema"
	"github.com/meteorhacks/dialog/store"
)

// buildS1Schema builds the 8-column schema scenario S1/S3 share with the
// original engine's own regression fixtures: a:BOOL, b:CHAR, c:SHORT,
// d:INT, e:LONG, f:FLOAT, g:DOUBLE, h:STRING(16).
func buildS1Schema(t *testing.T) *schema.Schema {
	t.Helper()

	b := schema.NewBuilder()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(b.AddColumn(schema.Bool, "a", 0))
	must(b.AddColumn(schema.Char, "b", 0))
	must(b.AddColumn(schema.Short, "c", 0))
	must(b.AddColumn(schema.Int, "d", 0))
	must(b.AddColumn(schema.Long, "e", 0))
	must(b.AddColumn(schema.Float, "f", 0))
	must(b.AddColumn(schema.Double, "g", 0))
	must(b.AddColumn(schema.String, "h", 16))

	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return sch
}

func encodeS1Record(t *testing.T, sch *schema.Schema, ts int64, a bool, b int8, c int16, d int32, e int64, f float32, g float64, h string) []byte {
	t.Helper()

	rec := make([]byte, sch.RecordSize())
	schema.SetTimestamp(rec, ts)

	set := func(name string, v schema.Value) {
		col, ok := sch.ColumnByName(name)
		if !ok {
			t.Fatalf("no such column %s", name)
		}
		schema.Encode(col, v, rec)
	}

	set("a", schema.BoolValue(a))
	set("b", schema.CharValue(b))
	set("c", schema.ShortValue(c))
	set("d", schema.IntValue(d))
	set("e", schema.LongValue(e))
	set("f", schema.FloatValue(f))
	set("g", schema.DoubleValue(g))
	set("h", schema.StringValue(h))

	return rec
}

func newTestTable(t *testing.T, sch *schema.Schema) *Table {
	t.Helper()
	tbl, err := New("test", sch, store.InMemory, Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

// TestScenarioS1AdhocFilter mirrors S1: adhoc_filter("e >= 1000") over 8
// records with e in {0,1,10,100,1000,10000,100000,1000000} yields
// exactly the last 4.
func TestScenarioS1AdhocFilter(t *testing.T) {
	sch := buildS1Schema(t)
	tbl := newTestTable(t, sch)

	es := []int64{0, 1, 10, 100, 1000, 10000, 100000, 1000000}
	for i, e := range es {
		rec := encodeS1Record(t, sch, int64(i+1), i%2 == 0, int8(i), int16(i), int32(i), e, float32(i), float64(i), "row")
		if _, err := tbl.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	stream, err := tbl.ExecuteFilter("e >= 1000")
	if err != nil {
		t.Fatal(err)
	}

	var got []int64
	for stream.HasMore() {
		rec, ok := stream.Next()
		if !ok {
			break
		}
		ecol, _ := sch.ColumnByName("e")
		v := schema.Decode(ecol, rec)
		got = append(got, v.I)
	}

	want := []int64{1000, 10000, 100000, 1000000}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// TestScenarioS1WithIndex re-runs S1 with an index on "e" attached
// before the records are appended, exercising the planner's indexed
// path instead of the full-scan fallback.
func TestScenarioS1WithIndex(t *testing.T) {
	sch := buildS1Schema(t)
	tbl := newTestTable(t, sch)

	if err := tbl.AddIndex("e", 0); err != nil {
		t.Fatal(err)
	}

	es := []int64{0, 1, 10, 100, 1000, 10000, 100000, 1000000}
	for i, e := range es {
		rec := encodeS1Record(t, sch, int64(i+1), true, 0, 0, 0, e, 0, 0, "row")
		if _, err := tbl.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	stream, err := tbl.ExecuteFilter("e >= 1000")
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	for stream.HasMore() {
		if _, ok := stream.Next(); ok {
			count++
		}
	}
	if count != 4 {
		t.Fatalf("got %d matches, want 4", count)
	}
}

// TestScenarioS3RoundTrip mirrors S3: 2560 fixed 64-byte records, byte
// value i mod 256, round-trip and count.
func TestScenarioS3RoundTrip(t *testing.T) {
	b := schema.NewBuilder()
	if err := b.AddColumn(schema.String, "payload", 56); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if sch.RecordSize() != 64 {
		t.Fatalf("record size = %d, want 64", sch.RecordSize())
	}

	tbl := newTestTable(t, sch)

	const maxRecords = 2560
	for i := 0; i < maxRecords; i++ {
		rec := make([]byte, 64)
		schema.SetTimestamp(rec, int64(i+1))
		for j := 8; j < 64; j++ {
			rec[j] = byte(i % 256)
		}
		if _, err := tbl.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	if tbl.NumRecords() != maxRecords {
		t.Fatalf("NumRecords() = %d, want %d", tbl.NumRecords(), maxRecords)
	}

	for i := 0; i < maxRecords; i++ {
		got, err := tbl.Read(int64(i*64), 1)
		if err != nil {
			t.Fatal(err)
		}
		want := byte(i % 256)
		for j := 8; j < 64; j++ {
			if got[j] != want {
				t.Fatalf("record %d byte %d = %d, want %d", i, j, got[j], want)
			}
		}
	}
}

// TestScenarioS4ConcurrentProducers mirrors S4: two producers appending
// 10,000 records each concurrently.
func TestScenarioS4ConcurrentProducers(t *testing.T) {
	b := schema.NewBuilder()
	if err := b.AddColumn(schema.Long, "v", 0); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	tbl := newTestTable(t, sch)

	const perProducer = 10000
	done := make(chan error, 2)

	produce := func(tag int64) {
		for i := 0; i < perProducer; i++ {
			rec := make([]byte, sch.RecordSize())
			schema.SetTimestamp(rec, tag)
			if _, err := tbl.Append(rec); err != nil {
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

	if tbl.NumRecords() != perProducer*2 {
		t.Fatalf("NumRecords() = %d, want %d", tbl.NumRecords(), perProducer*2)
	}

	if _, err := tbl.Read(0, perProducer*2); err != nil {
		t.Fatal(err)
	}
}

// TestScenarioS5TriggerFires mirrors S5: filter "d > 5", trigger
// "count > 3" over 1-second buckets; 4 qualifying + 2 non-qualifying
// records in one bucket must produce at least one alert after
// TRIGGER_LATENESS_MS elapses.
func TestScenarioS5TriggerFires(t *testing.T) {
	clock.UseTestClock()
	defer clock.UseRealClock()

	b := schema.NewBuilder()
	if err := b.AddColumn(schema.Int, "d", 0); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	bucketStart := int64(1_000_000_000) // first 1s bucket, ns
	clock.Goto(bucketStart)

	tbl, err := New("s5", sch, store.InMemory, Options{TriggerLatenessMs: 50})
	if err != nil {
		t.Fatal(err)
	}
	defer tbl.Close()

	if err := tbl.AddFilter("big-d", "d > 5"); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddTrigger("many-big-d", "big-d", "count > 3"); err != nil {
		t.Fatal(err)
	}

	ds := []int32{10, 10, 10, 10, 1, 1}
	for _, d := range ds {
		rec := make([]byte, sch.RecordSize())
		schema.SetTimestamp(rec, bucketStart)
		col, _ := sch.ColumnByName("d")
		schema.Encode(col, schema.IntValue(d), rec)
		if _, err := tbl.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	// advance the test clock past the bucket boundary plus lateness, and
	// give the background worker real wall-clock time to observe it.
	clock.Goto(bucketStart + clock.BucketWidthNs + 60*int64(time.Millisecond))
	time.Sleep(300 * time.Millisecond)

	alerts := tbl.GetAlerts(bucketStart, bucketStart+clock.BucketWidthNs)
	count := 0
	for alerts.HasMore() {
		if _, ok := alerts.Next(); ok {
			count++
		}
	}
	if count < 1 {
		t.Fatal("expected at least one alert after trigger lateness elapses")
	}
}

func TestAddIndexIsLazy(t *testing.T) {
	b := schema.NewBuilder()
	if err := b.AddColumn(schema.Int, "d", 0); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	tbl := newTestTable(t, sch)

	rec := make([]byte, sch.RecordSize())
	schema.SetTimestamp(rec, 1)
	col, _ := sch.ColumnByName("d")
	schema.Encode(col, schema.IntValue(42), rec)
	if _, err := tbl.Append(rec); err != nil {
		t.Fatal(err)
	}

	if err := tbl.AddIndex("d", 0); err != nil {
		t.Fatal(err)
	}

	tbl.idxMu.RLock()
	idx := tbl.indexes["d"]
	tbl.idxMu.RUnlock()

	if got := idx.LookupValue(schema.IntValue(42)); len(got) != 0 {
		t.Errorf("expected lazily-added index to miss pre-existing records, got %v", got)
	}
}

func TestAppendBadSizeRejected(t *testing.T) {
	b := schema.NewBuilder()
	if err := b.AddColumn(schema.Int, "d", 0); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	tbl := newTestTable(t, sch)

	if _, err := tbl.Append([]byte{1, 2, 3}); err == nil {
		t.Error("expected BadSize error for undersized record")
	}
}

func TestAddTriggerRequiresExistingFilter(t *testing.T) {
	b := schema.NewBuilder()
	if err := b.AddColumn(schema.Int, "d", 0); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	tbl := newTestTable(t, sch)

	if err := tbl.AddTrigger("t1", "nope", "count > 1"); err == nil {
		t.Error("expected NoSuchFilter when referenced filter doesn't exist")
	}
}

// TestStrictIndexedRangeExcludesBoundary regresses a planner bug where
// "d > 6" against an indexed column returned the boundary value itself
// because LookupRange's bound is inclusive and the seed atom was
// dropped from the residual check.
func TestStrictIndexedRangeExcludesBoundary(t *testing.T) {
	b := schema.NewBuilder()
	if err := b.AddColumn(schema.Int, "d", 0); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	tbl := newTestTable(t, sch)

	if err := tbl.AddIndex("d", 0); err != nil {
		t.Fatal(err)
	}

	col, _ := sch.ColumnByName("d")
	for _, v := range []int32{5, 6, 7} {
		rec := make([]byte, sch.RecordSize())
		schema.SetTimestamp(rec, 1)
		schema.Encode(col, schema.IntValue(v), rec)
		if _, err := tbl.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	stream, err := tbl.ExecuteFilter("d > 6")
	if err != nil {
		t.Fatal(err)
	}

	var got []int64
	for stream.HasMore() {
		rec, ok := stream.Next()
		if !ok {
			break
		}
		v := schema.Decode(col, rec)
		got = append(got, v.I)
	}

	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("got %v, want [7]", got)
	}
}

// TestBucketedIndexUnboundedRangeTerminates regresses a catastrophic
// loop: an open-ended range filter ("e > 100") over a bucketed index
// used to substitute math.MaxInt64 as the missing upper bound and walk
// every bucket up to it. A real add_index("e", bucketSize) plus an
// ad-hoc range filter must return promptly with the right rows.
func TestBucketedIndexUnboundedRangeTerminates(t *testing.T) {
	b := schema.NewBuilder()
	if err := b.AddColumn(schema.Long, "e", 0); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	tbl := newTestTable(t, sch)

	if err := tbl.AddIndex("e", 10); err != nil {
		t.Fatal(err)
	}

	col, _ := sch.ColumnByName("e")
	for _, v := range []int64{0, 50, 100, 150, 200} {
		rec := make([]byte, sch.RecordSize())
		schema.SetTimestamp(rec, 1)
		schema.Encode(col, schema.LongValue(v), rec)
		if _, err := tbl.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan []int64, 1)
	go func() {
		stream, err := tbl.ExecuteFilter("e > 100")
		if err != nil {
			t.Error(err)
			done <- nil
			return
		}
		var got []int64
		for stream.HasMore() {
			rec, ok := stream.Next()
			if !ok {
				break
			}
			v := schema.Decode(col, rec)
			got = append(got, v.I)
		}
		done <- got
	}()

	select {
	case got := <-done:
		if len(got) != 2 || got[0] != 150 || got[1] != 200 {
			t.Fatalf("got %v, want [150 200]", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ExecuteFilter did not return: bucketed range scan likely walked an unbounded number of buckets")
	}
}

// TestDurableTableReopenRestoresIndexes exercises index/persist.go's
// SaveSnapshot/LoadSnapshot wired into Close/New: a durable table's
// Index Set must survive a close and reopen against the same directory.
func TestDurableTableReopenRestoresIndexes(t *testing.T) {
	dir := t.TempDir()

	b := schema.NewBuilder()
	if err := b.AddColumn(schema.Int, "d", 0); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	tbl, err := New("durable", sch, store.DurableRelaxed, Options{Store: store.Options{Path: dir}})
	if err != nil {
		t.Fatal(err)
	}

	if err := tbl.AddIndex("d", 0); err != nil {
		t.Fatal(err)
	}

	col, _ := sch.ColumnByName("d")
	for _, v := range []int32{5, 6, 7} {
		rec := make([]byte, sch.RecordSize())
		schema.SetTimestamp(rec, 1)
		schema.Encode(col, schema.IntValue(v), rec)
		if _, err := tbl.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	if err := tbl.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := New("durable", sch, store.DurableRelaxed, Options{Store: store.Options{Path: dir}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reopened.Close() })

	reopened.idxMu.RLock()
	idx, ok := reopened.indexes["d"]
	reopened.idxMu.RUnlock()

	if !ok {
		t.Fatal("expected index \"d\" to survive reopen")
	}
	if got := idx.LookupValue(schema.IntValue(6)); len(got) != 1 {
		t.Fatalf("expected 1 restored posting for value 6, got %d: %v", len(got), got)
	}
}
