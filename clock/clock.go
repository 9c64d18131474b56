// Package clock provides a swappable time source so tests can pin "now"
// instead of racing the wall clock. Bucket-aligned helpers live here too,
// since every component that needs "now" also needs to floor it to a
// 1-second filter/trigger bucket.
package clock

import "time"

// BucketWidthNs is the filter and trigger bucket granularity (1 second).
const BucketWidthNs int64 = int64(time.Second)

var (
	C Clock = R
	R       = &RealClock{}
	T       = &TestClock{}
)

// Clock returns nanoseconds since the Unix epoch.
type Clock interface {
	Now() (ts int64)
}

type RealClock struct {
}

func (c *RealClock) Now() (ts int64) {
	return time.Now().UnixNano()
}

type TestClock struct {
	ts int64
}

func (c *TestClock) Now() (ts int64) {
	return c.ts
}

// Now returns the current time in nanoseconds from the active clock.
func Now() (ts int64) {
	return C.Now()
}

func UseRealClock() {
	C = R
}

func UseTestClock() {
	C = T
}

// Goto pins the test clock to ts nanoseconds. The value is stored either
// way; Now only reports it while UseTestClock is in effect.
func Goto(ts int64) {
	T.ts = ts
}

// BucketOf floors ts (nanoseconds) to the start of its 1-second bucket.
func BucketOf(ts int64) int64 {
	return ts - ts%BucketWidthNs
}

// MillisToNanos converts an RPC-surface millisecond timestamp to the
// nanosecond timestamps used internally.
func MillisToNanos(ms int64) int64 {
	return ms * int64(time.Millisecond)
}
