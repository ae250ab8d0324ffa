package master

import (
	"errors"
	"testing"

	"github.com/sutd_dfs_project/helper"
	. "gopkg.in/check.v1"
)

// Hook gocheck into go test.
func Test(t *testing.T) { TestingT(t) }

type PlannerSuite struct{}

var _ = Suite(&PlannerSuite{})

func (s *PlannerSuite) TestBatchesShareServerList(c *C) {
	p := Planner{ReplicationFactor: 2, BatchSize: 10}
	plan, err := p.Plan([]string{"a", "b", "c"}, 25)
	c.Assert(err, IsNil)
	c.Assert(plan, HasLen, 25)

	for id := 0; id < 10; id++ {
		c.Check(plan[id], DeepEquals, []string{"a", "b"})
	}
	for id := 10; id < 20; id++ {
		c.Check(plan[id], DeepEquals, []string{"c", "a"})
	}
	for id := 20; id < 25; id++ {
		c.Check(plan[id], DeepEquals, []string{"b", "c"})
	}
}

func (s *PlannerSuite) TestRoundRobinFairness(c *C) {
	p := Planner{ReplicationFactor: 2, BatchSize: 10}
	plan, err := p.Plan([]string{"a", "b", "c"}, 25)
	c.Assert(err, IsNil)

	counts := map[string]int{}
	for start := 0; start < 25; start += 10 {
		for _, node := range plan[start] {
			counts[node]++
		}
	}
	c.Assert(counts, HasLen, 3)
	lo, hi := 1<<30, 0
	for _, n := range counts {
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	c.Check(hi-lo <= 1, Equals, true, Commentf("batch assignments %v", counts))
}

func (s *PlannerSuite) TestDeterministic(c *C) {
	p := Planner{ReplicationFactor: 3, BatchSize: 4}
	queue := []string{"a", "b", "c", "d", "e"}
	first, err := p.Plan(queue, 17)
	c.Assert(err, IsNil)
	second, err := p.Plan(queue, 17)
	c.Assert(err, IsNil)
	c.Check(first, DeepEquals, second)
	c.Check(queue, DeepEquals, []string{"a", "b", "c", "d", "e"})
}

func (s *PlannerSuite) TestDegradesToLiveServers(c *C) {
	p := Planner{ReplicationFactor: 3, BatchSize: 2}
	plan, err := p.Plan([]string{"a", "b"}, 5)
	c.Assert(err, IsNil)
	for id := 0; id < 5; id++ {
		c.Check(plan[id], HasLen, 2)
	}
	c.Check(p.EffectiveReplication(2), Equals, 2)
	c.Check(p.EffectiveReplication(7), Equals, 3)
}

func (s *PlannerSuite) TestNoLiveServers(c *C) {
	p := Planner{ReplicationFactor: 2, BatchSize: 10}
	_, err := p.Plan(nil, 3)
	c.Check(errors.Is(err, helper.ErrResourceExhausted), Equals, true)
}

func (s *PlannerSuite) TestEmptyFile(c *C) {
	p := Planner{ReplicationFactor: 2, BatchSize: 10}
	plan, err := p.Plan([]string{"a"}, 0)
	c.Assert(err, IsNil)
	c.Check(plan, HasLen, 0)
}

func (s *PlannerSuite) TestBatches(c *C) {
	p := Planner{ReplicationFactor: 2, BatchSize: 10}
	c.Check(p.Batches(0), Equals, 0)
	c.Check(p.Batches(10), Equals, 1)
	c.Check(p.Batches(25), Equals, 3)
}

func (s *PlannerSuite) TestRotate(c *C) {
	q := []string{"a", "b", "c"}
	c.Check(rotate(q, 0), DeepEquals, []string{"a", "b", "c"})
	c.Check(rotate(q, 1), DeepEquals, []string{"b", "c", "a"})
	c.Check(rotate(q, 5), DeepEquals, []string{"c", "a", "b"})
	c.Check(rotate(nil, 3), IsNil)
}
