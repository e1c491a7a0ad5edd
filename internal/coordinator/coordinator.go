// Package coordinator implements dynamic optimization: reacting to a
// metric barrier's observed key distribution by recomputing a shuffle
// edge's key ranges and re-enqueuing the downstream stage. Grounded
// step-for-step on DataSkewRuntimePass.apply.
package coordinator

import (
	"fmt"

	"flowcore/internal/keyrange"
	"flowcore/internal/model"
	"flowcore/internal/queue"
	"flowcore/internal/telemetry"
)

// Coordinator owns the physical plan and the pending queue, and is the
// sole writer of ShuffleDistributions once a job is executing.
type Coordinator struct {
	Planner keyrange.Planner
	Plan    *model.PhysicalPlan
	Queue   *queue.Pending
}

// New returns a Coordinator wired against plan and pending, using
// planner to recompute key ranges on each metric barrier.
func New(planner keyrange.Planner, plan *model.PhysicalPlan, pending *queue.Pending) *Coordinator {
	return &Coordinator{Planner: planner, Plan: plan, Queue: pending}
}

// HandleMetricBarrier recomputes edge's ShuffleDistribution from sizes
// (observed bytes per key), overwrites it in place on the plan, and
// enqueues a TaskGroup for every task index of the downstream stage so
// the scheduler can place them under the new distribution.
func (c *Coordinator) HandleMetricBarrier(edge *model.StageEdge, sizes map[string]uint64) error {
	if edge.To == nil {
		return fmt.Errorf("flowcore: stage edge %q has no destination stage", edge.ID)
	}
	dstParallelism := edge.To.Parallelism
	hashRange := keyrange.NextPrime(uint32(dstParallelism) * keyrange.HashRangeMultiplier)

	ranges := c.Planner.Plan(sizes, dstParallelism, hashRange)
	dist := model.ShuffleDistribution{HashRange: hashRange, Ranges: ranges}

	if err := c.Plan.ReplaceDistribution(edge.ID, dist); err != nil {
		return err
	}

	report := SkewReport(sizes, dist)
	telemetry.L().Sugar().Infow("shuffle distribution recomputed",
		"edge", edge.ID, "dstParallelism", dstParallelism, "hashRange", hashRange,
		"maxToMeanRatio", report.MaxToMeanRatio, "hotRanges", report.HotRangeCount)

	for idx := 0; idx < dstParallelism; idx++ {
		c.Queue.Enqueue(&model.TaskGroup{
			ID:       model.NewTaskGroupID(),
			Index:    idx,
			Stage:    edge.To,
			Incoming: []*model.StageEdge{edge},
		})
	}
	return nil
}

// Distribution returns the current ShuffleDistribution for the named
// edge, for tests and observability.
func (c *Coordinator) Distribution(edgeID string) (model.ShuffleDistribution, bool) {
	edge, err := c.Plan.EdgeByID(edgeID)
	if err != nil {
		return model.ShuffleDistribution{}, false
	}
	return edge.Distribution(), true
}
