package table

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/meteorhacks/dialog/clock"
	"github.com/meteorhacks/dialog/trigger"
)

// workerTick is how often the trigger worker wakes to check whether
// another bucket has crossed the lateness threshold, mirroring
// dbase.go's checkBucketCounts ticking background goroutine.
const workerTick = 100 * time.Millisecond

// triggerWorker advances t.triggerClock by 1-second buckets, evaluating
// every attached trigger once a bucket is fully past latenessNs behind
// the current time (spec.md §4.6). At-least-once: a restart resumes
// from "now", it never backfills buckets missed during a stall.
func (t *Table) triggerWorker() {
	defer t.workerWg.Done()

	ticker := time.NewTicker(workerTick)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopWorker:
			return
		case <-ticker.C:
			t.advanceTriggerClock()
		}
	}
}

func (t *Table) advanceTriggerClock() {
	now := clock.Now()

	bucket := atomic.LoadInt64(&t.triggerClock)
	if bucket+t.latenessNs+clock.BucketWidthNs > now {
		return
	}

	// Only the latest completed bucket is evaluated; buckets the worker
	// fell behind on are skipped, not filled in.
	if latest := clock.BucketOf(now - t.latenessNs - clock.BucketWidthNs); latest > bucket {
		bucket = latest
	}

	t.evaluateBucket(bucket)
	atomic.StoreInt64(&t.triggerClock, bucket+clock.BucketWidthNs)
}

func (t *Table) evaluateBucket(bucket int64) {
	for _, tr := range t.triggers.Snapshot() {
		f, ok := t.filters.Get(tr.FilterName)
		if !ok {
			log.Printf("dialog: trigger %s references missing filter %s", tr.Name, tr.FilterName)
			continue
		}

		offsets := f.Query(bucket, bucket+clock.BucketWidthNs)

		value, fired := tr.Evaluate(offsets, t.columnReader(tr.AggregateField))
		if !fired {
			continue
		}

		alert := trigger.Alert{TriggerName: tr.Name, TimestampNs: bucket, Value: value}

		t.alertsMu.Lock()
		t.alerts = append(t.alerts, alert)
		t.alertsMu.Unlock()
	}
}
