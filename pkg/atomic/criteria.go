package atomic

import (
	"github.com/wintersim/muonio/pkg/bt"
	"github.com/wintersim/muonio/pkg/sim"
)

// Test states of a criterion.
const (
	TestInit    = "INIT"
	TestRunning = "RUNNING"
	TestSuccess = "SUCCESS"
	TestFailure = "FAILURE"
)

// Result is a criterion's verdict, sampled when the scenario ends.
type Result struct {
	Name     string      `json:"name"`
	Actor    sim.ActorID `json:"actor"`
	Status   string      `json:"status"`
	Actual   float64     `json:"actual_value"`
	Expected float64     `json:"expected_value"`
	Optional bool        `json:"optional,omitempty"`
}

// Passed reports whether the criterion did not fail.
func (r Result) Passed() bool {
	return r.Optional || r.Status != TestFailure
}

// Criterion observes the run without steering it. Its node never finishes on
// its own, so it can sit beside the behavior under a parallel.
type Criterion interface {
	Node() bt.Node
	Result() Result
	// Finalize takes the last sample and settles the verdict.
	Finalize() Result
}

// CollisionTest fails as soon as the actor is in any collision.
type CollisionTest struct {
	env      *Env
	actor    sim.ActorID
	node     *bt.Leaf
	baseline int
	started  bool
	result   Result
}

var _ Criterion = (*CollisionTest)(nil)

// NewCollisionTest watches actor for collisions from now on.
func NewCollisionTest(env *Env, actor sim.ActorID) *CollisionTest {
	c := &CollisionTest{
		env:      env,
		actor:    actor,
		baseline: len(env.World.Collisions(actor)),
		result: Result{
			Name:     "CollisionTest",
			Actor:    actor,
			Status:   TestInit,
			Expected: 0,
		},
	}
	c.node = bt.NewLeaf(c.result.Name, c)
	return c
}

func (c *CollisionTest) Node() bt.Node { return c.node }

func (c *CollisionTest) Result() Result { return c.result }

func (c *CollisionTest) Update() bt.Status {
	c.started = true
	events := c.env.World.Collisions(c.actor)
	if n := len(events) - c.baseline; n > 0 {
		if c.result.Status != TestFailure {
			last := events[len(events)-1]
			c.env.Logger.Info("Collision detected",
				"actor_id", c.actor,
				"other_id", last.Other,
				"other_type", last.OtherType,
				"frame", last.Frame)
		}
		c.result.Actual = float64(n)
		c.result.Status = TestFailure
	} else if c.result.Status != TestFailure {
		c.result.Status = TestRunning
	}
	return bt.Running
}

// Terminate turns a clean run into a pass. A criterion that never ran stays INIT.
func (c *CollisionTest) Terminate(bt.Status) {
	c.finalize()
}

func (c *CollisionTest) finalize() {
	if c.result.Status == TestRunning {
		c.result.Status = TestSuccess
	}
}

// Finalize samples the criterion at teardown, whether or not its node was
// stopped by the tree.
func (c *CollisionTest) Finalize() Result {
	if c.started {
		c.Update()
	}
	c.finalize()
	return c.result
}
