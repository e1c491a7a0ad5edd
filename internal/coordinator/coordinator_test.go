package coordinator

import (
	"testing"

	"flowcore/internal/keyrange"
	"flowcore/internal/model"
	"flowcore/internal/queue"
)

func samplePlan() (*model.PhysicalPlan, *model.StageEdge) {
	src := &model.Stage{ID: "s1", Parallelism: 3}
	dst := &model.Stage{ID: "s2", Parallelism: 4}
	edge := &model.StageEdge{ID: "e1", From: src, To: dst, Pattern: model.Shuffle, Partitioner: model.HashPartitioner}
	plan := &model.PhysicalPlan{ID: "p1", Stages: []*model.Stage{src, dst}, Edges: []*model.StageEdge{edge}}
	return plan, edge
}

func TestHandleMetricBarrierUpdatesDistributionAndEnqueues(t *testing.T) {
	plan, edge := samplePlan()
	q := queue.NewPending()
	c := New(keyrange.DefaultPlanner{}, plan, q)

	sizes := map[string]uint64{"a": 100, "b": 50, "c": 25, "d": 10}
	if err := c.HandleMetricBarrier(edge, sizes); err != nil {
		t.Fatalf("HandleMetricBarrier: %v", err)
	}

	dist, ok := c.Distribution(edge.ID)
	if !ok {
		t.Fatal("Distribution should be present after HandleMetricBarrier")
	}
	if len(dist.Ranges) != edge.To.Parallelism {
		t.Fatalf("len(Ranges) = %d, want %d", len(dist.Ranges), edge.To.Parallelism)
	}
	wantHashRange := keyrange.NextPrime(uint32(edge.To.Parallelism) * keyrange.HashRangeMultiplier)
	if dist.HashRange != wantHashRange {
		t.Errorf("HashRange = %d, want %d", dist.HashRange, wantHashRange)
	}

	if q.Len() != edge.To.Parallelism {
		t.Fatalf("Len() = %d, want %d task groups enqueued", q.Len(), edge.To.Parallelism)
	}
	seenIdx := map[int]bool{}
	for i := 0; i < edge.To.Parallelism; i++ {
		tg, ok := q.Dequeue()
		if !ok {
			t.Fatalf("expected a task group at position %d", i)
		}
		seenIdx[tg.Index] = true
	}
	if len(seenIdx) != edge.To.Parallelism {
		t.Errorf("expected one task group per destination index, got indices %v", seenIdx)
	}
}

func TestHandleMetricBarrierUnknownEdgeFails(t *testing.T) {
	plan, _ := samplePlan()
	q := queue.NewPending()
	c := New(keyrange.DefaultPlanner{}, plan, q)

	ghost := &model.StageEdge{ID: "ghost", To: &model.Stage{ID: "s2", Parallelism: 2}, Pattern: model.Shuffle}
	if err := c.HandleMetricBarrier(ghost, map[string]uint64{"a": 1}); err == nil {
		t.Fatal("expected an error for an edge not present on the plan")
	}
}

func TestDistributionMissingEdgeReturnsFalse(t *testing.T) {
	plan, _ := samplePlan()
	c := New(keyrange.DefaultPlanner{}, plan, queue.NewPending())
	if _, ok := c.Distribution("nope"); ok {
		t.Error("Distribution for an unknown edge id should report false")
	}
}

func TestSkewReportComputesMaxToMeanRatio(t *testing.T) {
	dist := model.ShuffleDistribution{
		HashRange: 4,
		Ranges: []model.KeyRange{
			{Begin: 0, End: 2},
			{Begin: 2, End: 4, Hot: true},
		},
	}
	sizes := map[string]uint64{}
	// Build two keys, "a" and "b", each prefixed and sized by which half
	// the bare letter's bucket falls in. SkewReport buckets the prefixed
	// key, so the halves the two sizes end up in are not controlled; the
	// assertions below hold for any placement with a nonzero total.
	for i := 0; i < 1000 && len(sizes) < 2; i++ {
		k := string(rune('a' + i%26))
		b := keyrange.BucketOf(k, dist.HashRange)
		if b < 2 {
			sizes["low:"+k] = 10
		} else {
			sizes["high:"+k] = 90
		}
	}

	report := SkewReport(sizes, dist)
	if report.TotalBytes == 0 {
		t.Fatal("expected nonzero total bytes")
	}
	if report.HotRangeCount != 1 {
		t.Errorf("HotRangeCount = %d, want 1", report.HotRangeCount)
	}
	if report.MaxToMeanRatio < 1.0 {
		t.Errorf("MaxToMeanRatio = %f, want >= 1.0", report.MaxToMeanRatio)
	}
}

func TestSkewReportZeroTotalIsZeroRatio(t *testing.T) {
	dist := model.ShuffleDistribution{HashRange: 4, Ranges: []model.KeyRange{{Begin: 0, End: 4}}}
	report := SkewReport(map[string]uint64{}, dist)
	if report.MaxToMeanRatio != 0 {
		t.Errorf("MaxToMeanRatio = %f, want 0 for zero total", report.MaxToMeanRatio)
	}
}
