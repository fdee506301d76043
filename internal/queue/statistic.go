package queue

import "fmt"

// State is the indexing state of a queue item.
type State int

const (
	StatePending State = iota
	StateSuccess
	StateFailed
)

// States lists every item state.
var States = []State{StatePending, StateSuccess, StateFailed}

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Statistic aggregates item counts per state. It is derived on every read and never cached.
type Statistic struct {
	FailedCount  int
	SuccessCount int
	PendingCount int
}

// Total returns the number of items counted.
func (s Statistic) Total() int {
	return s.FailedCount + s.SuccessCount + s.PendingCount
}

// Count returns the number of items in state.
func (s Statistic) Count(state State) int {
	switch state {
	case StateFailed:
		return s.FailedCount
	case StateSuccess:
		return s.SuccessCount
	case StatePending:
		return s.PendingCount
	default:
		return 0
	}
}

// Percentage returns the share of items in state as 0-100. An empty queue yields 0.
// No rounding is applied; display code formats to two decimals.
func (s Statistic) Percentage(state State) float64 {
	total := s.Total()
	if total == 0 {
		return 0.0
	}
	return 100.0 * float64(s.Count(state)) / float64(total)
}

// FailedPercentage returns the share of failed items.
func (s Statistic) FailedPercentage() float64 { return s.Percentage(StateFailed) }

// SuccessPercentage returns the share of indexed items.
func (s Statistic) SuccessPercentage() float64 { return s.Percentage(StateSuccess) }

// PendingPercentage returns the share of items waiting for indexing.
func (s Statistic) PendingPercentage() float64 { return s.Percentage(StatePending) }
