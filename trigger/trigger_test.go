package trigger

import (
	"testing"

	"github.com/meteorhacks/dialog/filter"
	"github.com/meteorhacks/dialog/schema"
)

func TestParseCount(t *testing.T) {
	agg, field, cmp, threshold, err := Parse("count > 3")
	if err != nil {
		t.Fatal(err)
	}
	if agg != Count || field != "" || cmp != GT || threshold != 3 {
		t.Fatalf("got (%v, %q, %v, %v)", agg, field, cmp, threshold)
	}
}

func TestParseSumWithColumn(t *testing.T) {
	agg, field, cmp, threshold, err := Parse("sum(e) >= 100")
	if err != nil {
		t.Fatal(err)
	}
	if agg != Sum || field != "e" || cmp != GE || threshold != 100 {
		t.Fatalf("got (%v, %q, %v, %v)", agg, field, cmp, threshold)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{"", "bogus > 3", "sum >", "sum(e)", "count > 3 extra"}
	for _, c := range cases {
		if _, _, _, _, err := Parse(c); err == nil {
			t.Errorf("expected parse error for %q", c)
		}
	}
}

// TestTriggerFires mirrors scenario S5: 4 qualifying records for a
// count-based trigger over threshold 3 should fire.
func TestTriggerFires(t *testing.T) {
	filters := filter.NewSet()
	if _, err := filters.Add("big-d", "d > 5"); err != nil {
		t.Fatal(err)
	}

	triggers := NewSet()
	tr, err := triggers.Add("many-big-d", "big-d", "count > 3", filters)
	if err != nil {
		t.Fatal(err)
	}

	offsets := []int64{0, 8, 16, 24} // 4 qualifying offsets
	read := func(offset int64) (schema.Value, bool) { return schema.Value{}, true }

	value, fired := tr.Evaluate(offsets, read)
	if !fired {
		t.Error("expected trigger to fire with 4 qualifying offsets")
	}
	if value != 4 {
		t.Errorf("value = %v, want 4", value)
	}

	value2, fired2 := tr.Evaluate(offsets[:2], read)
	if fired2 {
		t.Error("did not expect trigger to fire with only 2 qualifying offsets")
	}
	_ = value2
}

func TestSetAddRequiresExistingFilter(t *testing.T) {
	filters := filter.NewSet()
	triggers := NewSet()

	if _, err := triggers.Add("t1", "nope", "count > 1", filters); err == nil {
		t.Error("expected NoSuchFilter when filter is not registered")
	}
}
