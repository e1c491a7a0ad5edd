// Command schedulerd wires the scheduling and dynamic-optimization
// core together against a small static physical plan and a handful of
// in-process executors, and runs it to completion. It exists to
// exercise the core the way the teacher's cmd/master/main.go wires its
// scheduler, registry, and store — there is no RPC transport here
// because that layer is an external collaborator out of scope for
// this module.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flowcore/internal/coordinator"
	"flowcore/internal/executor"
	"flowcore/internal/keyrange"
	"flowcore/internal/model"
	"flowcore/internal/queue"
	"flowcore/internal/scheduler"
	"flowcore/internal/telemetry"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err == nil {
		telemetry.SetLogger(logger)
	}
	log := telemetry.Sugar()
	defer telemetry.L().Sync()

	src := &model.Stage{ID: "map", Parallelism: 3}
	dst := &model.Stage{ID: "reduce", Parallelism: 4}
	edge := &model.StageEdge{ID: "map-to-reduce", From: src, To: dst, Pattern: model.Shuffle, Partitioner: model.HashPartitioner}
	plan := &model.PhysicalPlan{ID: "demo-job", Stages: []*model.Stage{src, dst}, Edges: []*model.StageEdge{edge}}

	registry := executor.NewRegistry()
	policy := scheduler.NewRoundRobinPolicy(registry)
	pending := queue.NewPending()
	var runner *scheduler.Runner
	runner = scheduler.NewRunner(pending, policy, registry, func(tg *model.TaskGroup, e *executor.Executor) {
		_ = registry.MarkScheduled(e.ID, tg.ID)
		log.Infow("placed task group", "taskGroup", tg.ID, "stage", tgStage(tg), "executor", e.ID)
		// The demo has no real executor to report back a completion, so
		// it simulates one immediately through the production path
		// instead of poking the registry directly.
		if err := runner.HandleTaskGroupComplete("demo-job", e.ID, tg.ID); err != nil {
			log.Errorw("handle task group complete failed", "err", err)
		}
		runner.OnAnExecutorAvailable()
	})

	for i := 0; i < 2; i++ {
		e := executor.New(executor.NewExecutorID(), model.ContainerTypeCompute, 2)
		registry.Register(e)
		policy.OnExecutorAdded(e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go runner.Run(ctx)

	for idx := 0; idx < src.Parallelism; idx++ {
		pending.Enqueue(&model.TaskGroup{ID: model.NewTaskGroupID(), Index: idx, Stage: src})
	}
	runner.OnATaskGroupAvailable()

	time.Sleep(100 * time.Millisecond)

	coord := coordinator.New(keyrange.DefaultPlanner{}, plan, pending)
	observedSizes := map[string]uint64{"user:1": 4096, "user:2": 512, "user:3": 256, "user:4": 128}
	if err := coord.HandleMetricBarrier(edge, observedSizes); err != nil {
		log.Errorw("metric barrier handling failed", "err", err)
	}
	runner.OnATaskGroupAvailable()

	time.Sleep(200 * time.Millisecond)
	log.Infow("demo run complete", "plan", plan.ID)
}

func tgStage(tg *model.TaskGroup) string {
	if tg.Stage == nil {
		return ""
	}
	return tg.Stage.ID
}
