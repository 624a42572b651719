package atomic

import (
	"errors"

	"github.com/wintersim/muonio/pkg/bt"
	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
)

type transformSetter struct {
	env       *Env
	name      string
	actor     sim.ActorID
	transform geom.Transform
	physics   bool
}

// NewActorTransformSetter moves actor to t, zeroes its velocity and turns
// physics on. A dormant actor is activated in place.
func NewActorTransformSetter(env *Env, name string, actor sim.ActorID, t geom.Transform) *bt.Leaf {
	return bt.NewLeaf(name, &transformSetter{env: env, name: name, actor: actor, transform: t, physics: true})
}

func (s *transformSetter) Update() bt.Status {
	w := s.env.World
	if err := w.SetTransform(s.actor, s.transform); err != nil {
		return s.env.fail(s.name, s.actor, err)
	}
	if err := w.SetTargetVelocity(s.actor, geom.Vector3D{}); err != nil && !errors.Is(err, sim.ErrNotVehicle) {
		return s.env.fail(s.name, s.actor, err)
	}
	if ds, ok := w.(sim.DeferredSpawner); ok {
		if a, err := w.Actor(s.actor); err == nil && a.Dormant {
			if err := ds.Activate(s.actor); err != nil {
				return s.env.fail(s.name, s.actor, err)
			}
		}
	}
	if err := w.SetSimulatePhysics(s.actor, s.physics); err != nil {
		return s.env.fail(s.name, s.actor, err)
	}
	s.env.Logger.Debug("Actor relocated", "node", s.name, "actor_id", s.actor, "location", s.transform.Location)
	return bt.Success
}

type waypointFollower struct {
	env         *Env
	name        string
	actor       sim.ActorID
	targetSpeed float64
}

// NewWaypointFollower drives actor along its lane at targetSpeed (m/s). It
// never finishes on its own; put it under a parallel with an end condition.
func NewWaypointFollower(env *Env, name string, actor sim.ActorID, targetSpeed float64) *bt.Leaf {
	return bt.NewLeaf(name, &waypointFollower{env: env, name: name, actor: actor, targetSpeed: targetSpeed})
}

func (f *waypointFollower) Update() bt.Status {
	t, err := f.env.World.Transform(f.actor)
	if err != nil {
		return f.env.fail(f.name, f.actor, err)
	}
	speed, err := f.env.speed(f.actor)
	if err != nil {
		return f.env.fail(f.name, f.actor, err)
	}
	c, err := sim.PursuitControl(f.env.World.Map(), t, speed, f.targetSpeed)
	if err != nil {
		return f.env.fail(f.name, f.actor, err)
	}
	if err := f.env.World.ApplyControl(f.actor, c); err != nil {
		return f.env.fail(f.name, f.actor, err)
	}
	return bt.Running
}

type stopVehicle struct {
	env   *Env
	name  string
	actor sim.ActorID
	brake float64
}

// NewStopVehicle cuts the throttle and applies brake. It succeeds immediately;
// the brake stays applied.
func NewStopVehicle(env *Env, name string, actor sim.ActorID, brake float64) *bt.Leaf {
	return bt.NewLeaf(name, &stopVehicle{env: env, name: name, actor: actor, brake: brake})
}

func (s *stopVehicle) Update() bt.Status {
	if err := s.env.World.ApplyControl(s.actor, sim.VehicleControl{Brake: s.brake}); err != nil {
		return s.env.fail(s.name, s.actor, err)
	}
	return bt.Success
}

type keepVelocity struct {
	env      *Env
	name     string
	actor    sim.ActorID
	velocity float64
}

// NewKeepVelocity holds actor at velocity (m/s) along its heading until the
// node is stopped, then releases the throttle.
func NewKeepVelocity(env *Env, name string, actor sim.ActorID, velocity float64) *bt.Leaf {
	return bt.NewLeaf(name, &keepVelocity{env: env, name: name, actor: actor, velocity: velocity})
}

func (k *keepVelocity) Update() bt.Status {
	t, err := k.env.World.Transform(k.actor)
	if err != nil {
		return k.env.fail(k.name, k.actor, err)
	}
	if err := k.env.World.SetTargetVelocity(k.actor, t.Forward().Scale(k.velocity)); err != nil {
		return k.env.fail(k.name, k.actor, err)
	}
	return bt.Running
}

func (k *keepVelocity) Terminate(bt.Status) {
	if err := k.env.World.ApplyControl(k.actor, sim.VehicleControl{}); err != nil && !errors.Is(err, sim.ErrActorNotFound) {
		k.env.Logger.Warn("Failed to release throttle", "node", k.name, "actor_id", k.actor, "error", err)
	}
}

type actorDestroy struct {
	env   *Env
	name  string
	actor sim.ActorID
}

// NewActorDestroy removes actor from the world. An actor that is already gone
// counts as destroyed.
func NewActorDestroy(env *Env, name string, actor sim.ActorID) *bt.Leaf {
	return bt.NewLeaf(name, &actorDestroy{env: env, name: name, actor: actor})
}

func (d *actorDestroy) Update() bt.Status {
	err := d.env.World.Destroy(d.actor)
	if err != nil && !errors.Is(err, sim.ErrActorNotFound) {
		return d.env.fail(d.name, d.actor, err)
	}
	d.env.Logger.Debug("Actor destroyed", "node", d.name, "actor_id", d.actor)
	return bt.Success
}
