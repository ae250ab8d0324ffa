package master

import (
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/models"
)

// Planner assigns chunks to chunk servers in batches. Every chunk of a batch
// gets the same replica list, taken from the head of the rotation queue, and
// the queue advances by that many servers before the next batch.
type Planner struct {
	ReplicationFactor int
	BatchSize         int
}

// EffectiveReplication is the replica count a plan over live servers can reach.
func (p Planner) EffectiveReplication(live int) int {
	if live < p.ReplicationFactor {
		return live
	}
	return p.ReplicationFactor
}

// Plan does not modify queue.
func (p Planner) Plan(queue []string, numChunks int) (models.ChunkAllocation, error) {
	if len(queue) == 0 {
		return nil, helper.ErrNoHealthyServers
	}

	allocations := make(models.ChunkAllocation)
	rotation := append([]string(nil), queue...)
	replication := p.EffectiveReplication(len(rotation))
	batch := p.BatchSize
	if batch < 1 {
		batch = 1
	}

	for start := 0; start < numChunks; start += batch {
		servers := rotation[:replication]
		for id := start; id < start+batch && id < numChunks; id++ {
			allocations[id] = append([]string(nil), servers...)
		}
		// shift the rotation for the next batch
		next := make([]string, 0, len(rotation))
		next = append(next, rotation[replication:]...)
		rotation = append(next, servers...)
	}
	return allocations, nil
}

// Batches is the number of batches a plan for numChunks produces.
func (p Planner) Batches(numChunks int) int {
	batch := p.BatchSize
	if batch < 1 {
		batch = 1
	}
	return (numChunks + batch - 1) / batch
}

// rotate returns queue started at offset, wrapping around.
func rotate(queue []string, offset int) []string {
	if len(queue) == 0 {
		return nil
	}
	offset %= len(queue)
	if offset < 0 {
		offset += len(queue)
	}
	out := make([]string, 0, len(queue))
	out = append(out, queue[offset:]...)
	return append(out, queue[:offset]...)
}
