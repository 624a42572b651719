// Package atomic holds the leaf behaviors, trigger conditions and criteria
// that scenarios are composed from.
package atomic

import (
	"log/slog"

	"github.com/wintersim/muonio/pkg/bt"
	"github.com/wintersim/muonio/pkg/sim"
)

// Env is what every atomic needs to act on the world.
type Env struct {
	World  sim.World
	Logger *slog.Logger
	// Clock reports simulation time since the scenario started.
	Clock bt.Clock
}

// fail logs err for the named node and returns Failure.
func (e *Env) fail(node string, actor sim.ActorID, err error) bt.Status {
	e.Logger.Error("Behavior failed", "node", node, "actor_id", actor, "error", err)
	return bt.Failure
}

func (e *Env) speed(id sim.ActorID) (float64, error) {
	v, err := e.World.Velocity(id)
	if err != nil {
		return 0, err
	}
	return v.Length(), nil
}

func (e *Env) distance(a, b sim.ActorID) (float64, error) {
	ta, err := e.World.Transform(a)
	if err != nil {
		return 0, err
	}
	tb, err := e.World.Transform(b)
	if err != nil {
		return 0, err
	}
	return ta.Location.Distance(tb.Location), nil
}
