package model

import (
	"fmt"
	"sync"
)

// DataCommunicationPattern describes how data moves across a StageEdge.
type DataCommunicationPattern string

const (
	OneToOne  DataCommunicationPattern = "ONE_TO_ONE"
	Broadcast DataCommunicationPattern = "BROADCAST"
	Shuffle   DataCommunicationPattern = "SHUFFLE"
)

// Partitioner names the hash/partition function used for a Shuffle edge.
// The core never executes a partitioner itself (the element codec and
// hash function are opaque, per spec.md's out-of-scope external
// collaborators); it only needs a stable label to carry on the edge.
type Partitioner string

const (
	HashPartitioner  Partitioner = "HASH"
	RangePartitioner Partitioner = "RANGE"
)

// Stage is a maximal group of vertices connected by intra-stage edges,
// decomposed into Parallelism TaskGroups indexed 0..Parallelism-1.
type Stage struct {
	ID          string
	Parallelism int
}

// StageEdge connects two Stages and carries the execution properties
// relevant to the scheduling/shuffle core.
type StageEdge struct {
	ID          string
	From        *Stage
	To          *Stage
	Pattern     DataCommunicationPattern
	Partitioner Partitioner

	mu           sync.RWMutex
	distribution ShuffleDistribution
}

// Distribution returns the edge's current shuffle distribution. Only
// meaningful when Pattern == Shuffle.
func (e *StageEdge) Distribution() ShuffleDistribution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.distribution
}

// SetDistribution overwrites the edge's shuffle distribution. Takes
// effect for all future scheduling decisions but never retroactively
// alters TaskGroups already dispatched under the previous distribution.
func (e *StageEdge) SetDistribution(d ShuffleDistribution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.distribution = d
}

// KeyRangeForTask returns the KeyRange this edge assigns to destination
// task index idx, and whether one is currently assigned.
func (e *StageEdge) KeyRangeForTask(idx int) (KeyRange, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.distribution.RangeFor(idx)
}

// PhysicalPlan is a DAG of Stages connected by StageEdges.
type PhysicalPlan struct {
	ID     string
	Stages []*Stage
	Edges  []*StageEdge
}

// OutgoingEdges returns the StageEdges whose From stage is s.
func (p *PhysicalPlan) OutgoingEdges(s *Stage) []*StageEdge {
	var out []*StageEdge
	for _, e := range p.Edges {
		if e.From == s {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns the StageEdges whose To stage is s.
func (p *PhysicalPlan) IncomingEdges(s *Stage) []*StageEdge {
	var in []*StageEdge
	for _, e := range p.Edges {
		if e.To == s {
			in = append(in, e)
		}
	}
	return in
}

// EdgeByID looks up a StageEdge by its id.
func (p *PhysicalPlan) EdgeByID(id string) (*StageEdge, error) {
	for _, e := range p.Edges {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("flowcore: no stage edge with id %q in plan %q", id, p.ID)
}

// ReplaceDistribution overwrites the named edge's shuffle distribution
// on the in-memory plan, permanently, for the remainder of the job.
func (p *PhysicalPlan) ReplaceDistribution(edgeID string, d ShuffleDistribution) error {
	edge, err := p.EdgeByID(edgeID)
	if err != nil {
		return err
	}
	edge.SetDistribution(d)
	return nil
}
