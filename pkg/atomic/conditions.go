package atomic

import (
	"time"

	"github.com/wintersim/muonio/pkg/bt"
	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
)

// standStillSpeed is the speed below which a vehicle counts as stopped, m/s.
const standStillSpeed = 0.1

type triggerDistanceToVehicle struct {
	env       *Env
	name      string
	reference sim.ActorID
	actor     sim.ActorID
	distance  float64
}

// NewInTriggerDistanceToVehicle succeeds once actor is closer than distance to
// reference.
func NewInTriggerDistanceToVehicle(env *Env, name string, reference, actor sim.ActorID, distance float64) *bt.Leaf {
	return bt.NewLeaf(name, &triggerDistanceToVehicle{env: env, name: name, reference: reference, actor: actor, distance: distance})
}

func (c *triggerDistanceToVehicle) Update() bt.Status {
	d, err := c.env.distance(c.reference, c.actor)
	if err != nil {
		return c.env.fail(c.name, c.actor, err)
	}
	if d < c.distance {
		return bt.Success
	}
	return bt.Running
}

type triggerDistanceToIntersection struct {
	env      *Env
	name     string
	actor    sim.ActorID
	distance float64
	target   *geom.Location
}

// NewInTriggerDistanceToNextIntersection succeeds once actor is closer than
// distance to the first junction ahead of it on its lane. The junction is
// looked up on the first tick, from wherever the actor is then.
func NewInTriggerDistanceToNextIntersection(env *Env, name string, actor sim.ActorID, distance float64) *bt.Leaf {
	return bt.NewLeaf(name, &triggerDistanceToIntersection{env: env, name: name, actor: actor, distance: distance})
}

func (c *triggerDistanceToIntersection) Update() bt.Status {
	t, err := c.env.World.Transform(c.actor)
	if err != nil {
		return c.env.fail(c.name, c.actor, err)
	}
	if c.target == nil {
		wp, found, err := sim.NextJunction(c.env.World.Map(), t.Location)
		if err != nil {
			return c.env.fail(c.name, c.actor, err)
		}
		if !found {
			c.env.Logger.Warn("No junction ahead, using end of lane", "node", c.name, "actor_id", c.actor)
		}
		loc := wp.Transform.Location
		c.target = &loc
	}
	if t.Location.Distance2D(*c.target) < c.distance {
		return bt.Success
	}
	return bt.Running
}

// Target is the junction location, once known.
func (c *triggerDistanceToIntersection) Target() (geom.Location, bool) {
	if c.target == nil {
		return geom.Location{}, false
	}
	return *c.target, true
}

type driveDistance struct {
	env       *Env
	name      string
	actor     sim.ActorID
	distance  float64
	last      geom.Location
	travelled float64
}

// NewDriveDistance succeeds once actor has driven distance meters since the
// node started.
func NewDriveDistance(env *Env, name string, actor sim.ActorID, distance float64) *bt.Leaf {
	return bt.NewLeaf(name, &driveDistance{env: env, name: name, actor: actor, distance: distance})
}

func (c *driveDistance) Initialize() {
	c.travelled = 0
	if t, err := c.env.World.Transform(c.actor); err == nil {
		c.last = t.Location
	}
}

func (c *driveDistance) Update() bt.Status {
	t, err := c.env.World.Transform(c.actor)
	if err != nil {
		return c.env.fail(c.name, c.actor, err)
	}
	c.travelled += t.Location.Distance(c.last)
	c.last = t.Location
	if c.travelled >= c.distance {
		return bt.Success
	}
	return bt.Running
}

type standStill struct {
	env      *Env
	name     string
	actor    sim.ActorID
	duration time.Duration
	since    time.Duration
	still    bool
}

// NewStandStill succeeds once actor has been stopped for duration of
// simulation time.
func NewStandStill(env *Env, name string, actor sim.ActorID, duration time.Duration) *bt.Leaf {
	return bt.NewLeaf(name, &standStill{env: env, name: name, actor: actor, duration: duration})
}

func (c *standStill) Initialize() {
	c.still = false
}

func (c *standStill) Update() bt.Status {
	speed, err := c.env.speed(c.actor)
	if err != nil {
		return c.env.fail(c.name, c.actor, err)
	}
	now := c.env.Clock()
	if speed >= standStillSpeed {
		c.still = false
		return bt.Running
	}
	if !c.still {
		c.still, c.since = true, now
	}
	if now-c.since >= c.duration {
		return bt.Success
	}
	return bt.Running
}
