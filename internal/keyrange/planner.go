// Package keyrange implements the key-range planner: given a map of
// user key to observed size and a target parallelism, it produces one
// contiguous KeyRange per destination task, flagging ranges that absorb
// a disproportionately large bucket as hot so the scheduling policy can
// steer them apart.
//
// Grounded on DataSkewRuntimePass.calculateKeyRanges in original_source.
package keyrange

import (
	"hash/fnv"

	"flowcore/internal/model"
)

// DefaultSkewedKeyCount is the default number of largest buckets
// flagged as skewed (top-K).
const DefaultSkewedKeyCount = 10

// HashRangeMultiplier is the fixed multiplier used to derive a
// shuffle edge's hash range from its destination parallelism: the hash
// range is the smallest prime >= HashRangeMultiplier * dstParallelism.
const HashRangeMultiplier = 5

// NextPrime returns the smallest prime p >= n. n must be >= 1.
func NextPrime(n uint32) uint32 {
	if n <= 2 {
		return 2
	}
	candidate := n
	if candidate%2 == 0 {
		candidate++
	}
	for !isPrime(candidate) {
		candidate += 2
	}
	return candidate
}

func isPrime(n uint32) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for i := uint32(3); i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// BucketOf hashes a user key into [0, hashRange) with FNV-1a, mirroring
// the "|hash(k)| mod H" bucketization the spec calls for. Exported so
// callers outside this package (e.g. the coordinator's skew report)
// can bucket keys the same way the planner did when producing a
// ShuffleDistribution.
func BucketOf(key string, hashRange uint32) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % hashRange
}

func bucketOf(key string, hashRange uint32) uint32 {
	return BucketOf(key, hashRange)
}

// Planner computes key ranges for a shuffle edge from observed sizes.
// It is the interface the dynamic optimization coordinator depends on,
// so tests can substitute a stub.
type Planner interface {
	Plan(sizes map[string]uint64, dstParallelism int, hashRange uint32) []model.KeyRange
}

// DefaultPlanner is the Planner used throughout the module, coordinator
// tests included: it implements the exact algorithm in spec.md §4.1.
type DefaultPlanner struct {
	// SkewedKeyCount overrides DefaultSkewedKeyCount when > 0.
	SkewedKeyCount int
}

// Plan buckets sizes by hash(key) mod hashRange and sweeps left to
// right, assigning one contiguous range per destination task so that
// each range's accumulated size tracks total/dstParallelism as closely
// as possible, while flagging any range that absorbs one of the top-K
// largest buckets as hot.
func (p DefaultPlanner) Plan(sizes map[string]uint64, dstParallelism int, hashRange uint32) []model.KeyRange {
	return Plan(sizes, dstParallelism, hashRange, p.skewedKeyCount())
}

func (p DefaultPlanner) skewedKeyCount() int {
	if p.SkewedKeyCount > 0 {
		return p.SkewedKeyCount
	}
	return DefaultSkewedKeyCount
}

// Plan is the free-function form of DefaultPlanner.Plan, used directly
// by tests that want to vary the skewed-key count without constructing
// a Planner value.
func Plan(sizes map[string]uint64, dstParallelism int, hashRange uint32, skewedKeyCount int) []model.KeyRange {
	if dstParallelism <= 0 {
		return nil
	}
	if skewedKeyCount <= 0 {
		skewedKeyCount = DefaultSkewedKeyCount
	}

	bucketSize := make([]uint64, hashRange)
	for k, v := range sizes {
		b := bucketOf(k, hashRange)
		bucketSize[b] += v
	}

	var total uint64
	for _, v := range bucketSize {
		total += v
	}

	if total == 0 {
		return equalRanges(dstParallelism, hashRange)
	}

	skewThreshold := skewedSizeThreshold(bucketSize, skewedKeyCount)

	ranges := make([]model.KeyRange, 0, dstParallelism)
	lastBucket := int(hashRange) - 1
	ideal := total / uint64(dstParallelism)

	start := 0
	finish := 1
	cur := bucketSize[0]
	for i := 1; i <= dstParallelism; i++ {
		if i != dstParallelism {
			idealAccum := ideal * uint64(i)
			for cur < idealAccum && lastBucket-finish >= dstParallelism-i {
				cur += bucketSize[finish]
				finish++
			}

			oneStepBack := cur - bucketSize[finish-1]
			diffFromIdeal := diffAbs(cur, idealAccum)
			diffFromIdealOneStepBack := diffAbs(idealAccum, oneStepBack)
			if diffFromIdeal > diffFromIdealOneStepBack {
				finish--
				cur -= bucketSize[finish]
			}

			hot := containsSkewed(bucketSize, skewThreshold, start, finish)
			ranges = append(ranges, model.KeyRange{Begin: uint32(start), End: uint32(finish), Hot: hot})

			cur += bucketSize[finish]
			start = finish
			finish++
		} else {
			hot := containsSkewed(bucketSize, skewThreshold, start, lastBucket+1)
			ranges = append(ranges, model.KeyRange{Begin: uint32(start), End: uint32(lastBucket + 1), Hot: hot})
		}
	}
	return ranges
}

// equalRanges handles the zero-total degenerate case: dstParallelism
// equal contiguous ranges of width floor(hashRange/dstParallelism), the
// last one absorbing the remainder. None are flagged hot.
func equalRanges(dstParallelism int, hashRange uint32) []model.KeyRange {
	width := hashRange / uint32(dstParallelism)
	ranges := make([]model.KeyRange, dstParallelism)
	for i := 0; i < dstParallelism-1; i++ {
		ranges[i] = model.KeyRange{Begin: uint32(i) * width, End: uint32(i+1) * width}
	}
	ranges[dstParallelism-1] = model.KeyRange{Begin: uint32(dstParallelism-1) * width, End: hashRange}
	return ranges
}

// skewedSizeThreshold returns the Kth largest bucket size (1-indexed),
// i.e. the smallest size that still qualifies as skewed. Any bucket
// whose size is >= this threshold (and > 0) is skewed.
func skewedSizeThreshold(bucketSize []uint64, k int) uint64 {
	sorted := append([]uint64(nil), bucketSize...)
	sortDesc(sorted)
	if k > len(sorted) {
		k = len(sorted)
	}
	if k == 0 {
		return ^uint64(0) // nothing qualifies
	}
	return sorted[k-1]
}

func sortDesc(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] < s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func containsSkewed(bucketSize []uint64, threshold uint64, start, finish int) bool {
	for i := start; i < finish; i++ {
		if bucketSize[i] > 0 && bucketSize[i] >= threshold {
			return true
		}
	}
	return false
}

func diffAbs(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
