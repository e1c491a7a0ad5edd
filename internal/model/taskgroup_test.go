package model

import "testing"

func TestTaskGroupIsHot(t *testing.T) {
	stage := &Stage{ID: "reduce", Parallelism: 2}
	edge := &StageEdge{ID: "e0", Pattern: Shuffle}
	edge.SetDistribution(ShuffleDistribution{
		HashRange: 11,
		Ranges: []KeyRange{
			{Begin: 0, End: 1, Hot: true},
			{Begin: 1, End: 11, Hot: false},
		},
	})

	hot := TaskGroup{ID: "tg0", Index: 0, Stage: stage, Incoming: []*StageEdge{edge}}
	cold := TaskGroup{ID: "tg1", Index: 1, Stage: stage, Incoming: []*StageEdge{edge}}

	if !hot.IsHot() {
		t.Errorf("task group 0 should be hot")
	}
	if cold.IsHot() {
		t.Errorf("task group 1 should not be hot")
	}
}

func TestTaskGroupIsHotIgnoresNonShuffleEdges(t *testing.T) {
	edge := &StageEdge{ID: "e0", Pattern: OneToOne}
	tg := TaskGroup{ID: "tg0", Index: 0, Incoming: []*StageEdge{edge}}
	if tg.IsHot() {
		t.Errorf("a OneToOne edge should never mark a task group hot")
	}
}
