package trigger

import "fmt"

// Alert is emitted when a Trigger's aggregate over a completed bucket
// satisfies its comparator. Duplicates are permitted: trigger evaluation
// is at-least-once under worker restarts.
type Alert struct {
	TriggerName string
	TimestampNs int64
	Value       float64
}

// Render is the wire text format: "<name>\t<ts>\t<value>\n", one alert
// per line in a batched get_more response.
func (a Alert) Render() string {
	return fmt.Sprintf("%s\t%d\t%g\n", a.TriggerName, a.TimestampNs, a.Value)
}
