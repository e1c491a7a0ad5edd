package coordinator

import (
	"flowcore/internal/keyrange"
	"flowcore/internal/model"
)

// SkewReportData summarizes how evenly a ShuffleDistribution spreads
// observed byte sizes across destination tasks. It supplements
// DataSkewRuntimePass's printUnOpimizedDist/printOpimizedDist debug
// dumps (which wrote before/after histograms to a hardcoded local
// path) with a structured value a caller can log instead.
type SkewReportData struct {
	TotalBytes     uint64
	BytesPerTask   []uint64
	MaxToMeanRatio float64
	HotRangeCount  int
}

// SkewReport computes per-task byte totals for dist against the raw
// per-key sizes observed at the metric barrier, plus the ratio of the
// heaviest task to the mean task — the single number that answers
// "how skewed is this shuffle, right now".
func SkewReport(sizes map[string]uint64, dist model.ShuffleDistribution) SkewReportData {
	perTask := make([]uint64, len(dist.Ranges))
	bucketSize := make([]uint64, dist.HashRange)
	for key, size := range sizes {
		bucketSize[keyrange.BucketOf(key, dist.HashRange)] += size
	}

	var total uint64
	hot := 0
	for i, r := range dist.Ranges {
		for b := r.Begin; b < r.End; b++ {
			perTask[i] += bucketSize[b]
		}
		total += perTask[i]
		if r.Hot {
			hot++
		}
	}

	var maxRatio float64
	if len(perTask) > 0 && total > 0 {
		mean := float64(total) / float64(len(perTask))
		var max uint64
		for _, v := range perTask {
			if v > max {
				max = v
			}
		}
		maxRatio = float64(max) / mean
	}

	return SkewReportData{
		TotalBytes:     total,
		BytesPerTask:   perTask,
		MaxToMeanRatio: maxRatio,
		HotRangeCount:  hot,
	}
}
