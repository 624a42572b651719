package scenario

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/wintersim/muonio/pkg/atomic"
	"github.com/wintersim/muonio/pkg/bt"
	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
)

// FollowLeadingVehicleType is the config type of the Muonio follow scenario.
const FollowLeadingVehicleType = "FollowLeadingVehicle"

// Follow scenario parameters.
const (
	LeadVehicleModel       = "vehicle.nissan.patrol"
	LeadVehicleDistance    = 35.0 // meters ahead of the trigger point
	LeadVehicleSpeed       = 25.0 // m/s
	LeadVehicleMaxBrake    = 1.0
	StopBeforeIntersection = 20.0 // meters
	FinalDistance          = 20.0 // ego to lead vehicle, meters
	StandStillDuration     = time.Second

	// SpawnClearance lifts the live pose off the road surface.
	SpawnClearance = 1.0
	// HoldingDepth is how far below the live pose the lead vehicle waits
	// when the world cannot hold it dormant.
	HoldingDepth = 400.0

	MinStartDistance = 4
	MaxStartDistance = 8
)

func init() {
	Register(FollowLeadingVehicleType, NewFollowLeadingVehicle)
}

// Placement is where the lead vehicle starts.
type Placement struct {
	Live    geom.Transform // pose the behavior starts from
	Holding geom.Transform // out-of-the-way pose used until the behavior starts
}

// PlaceLeadVehicle computes the lead vehicle's poses for a trigger point: the
// lane waypoint LeadVehicleDistance ahead, raised by SpawnClearance.
func PlaceLeadVehicle(m sim.Map, trigger geom.Transform) (Placement, error) {
	ref, err := m.Waypoint(trigger.Location)
	if err != nil {
		return Placement{}, fmt.Errorf("no reference waypoint at trigger point: %w", err)
	}
	wp, _ := sim.WaypointInDistance(m, ref, LeadVehicleDistance)
	live := wp.Transform.Offset(SpawnClearance)
	return Placement{Live: live, Holding: live.Offset(-HoldingDepth)}, nil
}

// StartDistance draws the randomized ego to lead start distance, in
// [MinStartDistance, MaxStartDistance].
func StartDistance(r *rand.Rand) int {
	return MinStartDistance + r.IntN(MaxStartDistance-MinStartDistance+1)
}

// FollowLeadingVehicle is the Muonio scenario: a lead vehicle drives to the
// next intersection and stops; the ego has to catch up with it.
type FollowLeadingVehicle struct {
	*Scenario
	Lead      sim.ActorID
	Placement Placement
	// StartDistance is the randomized ego to lead start distance. It is zero
	// unless the config asks for randomization, and placement does not use it.
	StartDistance int
}

// NewFollowLeadingVehicle builds the scenario. It spawns the lead vehicle
// and fails if that is not possible.
func NewFollowLeadingVehicle(env *atomic.Env, egos []sim.ActorID, cfg *Config) (*Scenario, error) {
	f, err := BuildFollowLeadingVehicle(env, egos, cfg)
	if err != nil {
		return nil, err
	}
	return f.Scenario, nil
}

// BuildFollowLeadingVehicle is NewFollowLeadingVehicle with access to the
// scenario's parameters.
func BuildFollowLeadingVehicle(env *atomic.Env, egos []sim.ActorID, cfg *Config) (*FollowLeadingVehicle, error) {
	if len(egos) == 0 {
		return nil, errors.New("follow leading vehicle needs an ego vehicle")
	}
	if len(cfg.TriggerPoints) == 0 {
		return nil, errors.New("follow leading vehicle needs a trigger point")
	}

	f := &FollowLeadingVehicle{Scenario: newScenario("FollowLeadingVehicle", env, egos, cfg)}
	if cfg.Randomize {
		seed := cfg.Seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		f.StartDistance = StartDistance(rand.New(rand.NewPCG(seed, seed)))
		f.setParam("seed", seed)
		f.setParam("start_distance", f.StartDistance)
		f.logger.Info("Randomized start distance", "seed", seed, "start_distance", f.StartDistance)
	}

	if err := f.initializeActors(cfg); err != nil {
		if rmErr := f.RemoveAllActors(); rmErr != nil {
			f.logger.Error("Failed to clean up after spawn failure", "error", rmErr)
		}
		return nil, err
	}

	var criteria []atomic.Criterion
	if !cfg.NoCriteria {
		criteria = append(criteria, atomic.NewCollisionTest(env, egos[0]))
	}
	f.assemble(f.createBehavior(cfg), criteria, cfg)
	return f, nil
}

func (f *FollowLeadingVehicle) initializeActors(cfg *Config) error {
	placement, err := PlaceLeadVehicle(f.env.World.Map(), cfg.TriggerPoints[0])
	if err != nil {
		return err
	}
	f.Placement = placement

	var id sim.ActorID
	if ds, ok := f.env.World.(sim.DeferredSpawner); ok {
		id, err = ds.SpawnDormant(sim.SpawnRequest{Blueprint: LeadVehicleModel, Transform: placement.Live, RoleName: "scenario"})
	} else {
		id, err = f.env.World.Spawn(sim.SpawnRequest{Blueprint: LeadVehicleModel, Transform: placement.Holding, RoleName: "scenario"})
	}
	if err != nil {
		return fmt.Errorf("failed to spawn lead vehicle %s: %w", LeadVehicleModel, err)
	}
	f.addActor(id)
	f.Lead = id

	// Physics has to be on for the wheel physics to be tunable later.
	if err := f.env.World.SetSimulatePhysics(id, true); err != nil {
		return fmt.Errorf("failed to enable physics on lead vehicle: %w", err)
	}
	f.logger.Info("Lead vehicle spawned", "actor_id", id, "live", placement.Live.Location)
	return nil
}

func (f *FollowLeadingVehicle) createBehavior(cfg *Config) bt.Node {
	env, lead, ego := f.env, f.Lead, f.egos[0]

	startTransform := atomic.NewActorTransformSetter(env, "TransformSetter", lead, f.Placement.Live)

	driving := bt.NewParallel("DrivingTowardsIntersection", bt.SuccessOnOne,
		atomic.NewWaypointFollower(env, "FollowLane", lead, LeadVehicleSpeed),
		atomic.NewInTriggerDistanceToNextIntersection(env, "NearIntersection", lead, StopBeforeIntersection))

	stop := atomic.NewStopVehicle(env, "StopVehicle", lead, LeadVehicleMaxBrake)

	endCondition := bt.NewParallel("Waiting for end position", bt.SuccessOnAll,
		atomic.NewInTriggerDistanceToVehicle(env, "FinalDistance", lead, ego, FinalDistance))
	if cfg.StandStill {
		endCondition.Add(atomic.NewStandStill(env, "StandStill", ego, StandStillDuration))
	}

	return bt.NewSequence("Sequence Behavior",
		startTransform,
		driving,
		stop,
		endCondition,
		atomic.NewActorDestroy(env, "DestroyLead", lead))
}
