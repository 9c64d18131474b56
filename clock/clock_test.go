package clock

import (
	"testing"
	"time"
)

func TestTestClock(t *testing.T) {
	UseTestClock()
	Goto(123)
	if Now() != 123 {
		t.Fatal("test clock should return preset value")
	}
	UseRealClock()
}

func TestBucketOf(t *testing.T) {
	cases := []struct{ ts, want int64 }{
		{0, 0},
		{999999999, 0},
		{1000000000, 1000000000},
		{1500000000, 1000000000},
	}

	for _, c := range cases {
		if got := BucketOf(c.ts); got != c.want {
			t.Errorf("BucketOf(%d) = %d, want %d", c.ts, got, c.want)
		}
	}
}

func TestMillisToNanos(t *testing.T) {
	if got := MillisToNanos(5); got != int64(5*time.Millisecond) {
		t.Errorf("MillisToNanos(5) = %d, want %d", got, int64(5*time.Millisecond))
	}
}
