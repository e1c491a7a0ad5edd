package model

// TaskGroup is a pipelined set of tasks sharing one scheduling unit, one
// per stage index.
type TaskGroup struct {
	ID            string
	Index         int
	Stage         *Stage
	ContainerType ContainerType
	Incoming      []*StageEdge
	Outgoing      []*StageEdge
}

// IsHot reports whether any incoming edge's KeyRange for this task
// group's index is flagged hot. A TaskGroup with no incoming Shuffle
// edges is never hot.
func (t TaskGroup) IsHot() bool {
	for _, e := range t.Incoming {
		if e.Pattern != Shuffle {
			continue
		}
		if kr, ok := e.KeyRangeForTask(t.Index); ok && kr.Hot {
			return true
		}
	}
	return false
}
