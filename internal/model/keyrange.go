package model

import "fmt"

// KeyRange is a contiguous, half-open interval [Begin, End) of hash
// bucket indices in [0, HashRange), assigned to one downstream task.
// A range is Hot iff it contains at least one bucket whose size was
// among the top-K largest observed when the range was computed.
type KeyRange struct {
	Begin uint32
	End   uint32
	Hot   bool
}

// Includes reports whether bucket b falls inside the range.
func (k KeyRange) Includes(b uint32) bool {
	return b >= k.Begin && b < k.End
}

func (k KeyRange) String() string {
	hot := ""
	if k.Hot {
		hot = ",hot"
	}
	return fmt.Sprintf("[%d,%d)%s", k.Begin, k.End, hot)
}

// ShuffleDistribution is the full key-range assignment for a shuffle
// edge: a hash range and one KeyRange per destination task index.
type ShuffleDistribution struct {
	HashRange uint32
	Ranges    []KeyRange
}

// RangeFor returns the KeyRange assigned to destination task taskIdx.
func (d ShuffleDistribution) RangeFor(taskIdx int) (KeyRange, bool) {
	if taskIdx < 0 || taskIdx >= len(d.Ranges) {
		return KeyRange{}, false
	}
	return d.Ranges[taskIdx], true
}
