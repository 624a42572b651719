package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/wintersim/muonio/pkg/atomic"
	"github.com/wintersim/muonio/pkg/bt"
	"github.com/wintersim/muonio/pkg/sim"
)

// Verdict is the outcome of a scenario run.
type Verdict string

const (
	VerdictSuccess Verdict = "SUCCESS"
	VerdictFailure Verdict = "FAILURE"
	VerdictTimeout Verdict = "TIMEOUT"
	VerdictAborted Verdict = "ABORTED"
)

// Passed reports whether the run counts as a pass.
func (v Verdict) Passed() bool { return v == VerdictSuccess }

// Builder creates a scenario from its config. The ego vehicles are already
// spawned.
type Builder func(env *atomic.Env, egos []sim.ActorID, cfg *Config) (*Scenario, error)

var (
	buildersMu sync.RWMutex
	builders   = make(map[string]Builder)
)

// Register makes a scenario type available to configs.
func Register(name string, b Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	if _, dup := builders[name]; dup {
		panic("scenario: Register called twice for " + name)
	}
	builders[name] = b
}

// Lookup returns the builder registered under name.
func Lookup(name string) (Builder, bool) {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	b, ok := builders[name]
	return b, ok
}

// Types lists the registered scenario types.
func Types() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build looks up cfg.Type and builds it.
func Build(env *atomic.Env, egos []sim.ActorID, cfg *Config) (*Scenario, error) {
	b, ok := Lookup(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unknown scenario type %q", cfg.Type)
	}
	return b(env, egos, cfg)
}

// Scenario is one built scenario: its actors, its behavior tree and its
// criteria. The root runs the behavior, the criteria and a timeout side by
// side and finishes with whichever of behavior or timeout finishes first.
type Scenario struct {
	name     string
	env      *atomic.Env
	logger   *slog.Logger
	egos     []sim.ActorID
	others   []sim.ActorID
	behavior bt.Node
	criteria []atomic.Criterion
	timeout  *bt.Timeout
	tree     *bt.Tree
	debug    bool
	params   map[string]interface{}

	torn    bool
	verdict Verdict
	results []atomic.Result
}

// newScenario creates the shell a builder fills in.
func newScenario(name string, env *atomic.Env, egos []sim.ActorID, cfg *Config) *Scenario {
	return &Scenario{
		name:   name,
		env:    env,
		logger: env.Logger.With("scenario", name),
		egos:   egos,
		debug:  cfg.Debug,
	}
}

// setParam records a drawn or derived parameter for the run report.
func (s *Scenario) setParam(key string, v interface{}) {
	if s.params == nil {
		s.params = make(map[string]interface{})
	}
	s.params[key] = v
}

// Params are the randomized parameters the builder settled on.
func (s *Scenario) Params() map[string]interface{} { return s.params }

// addActor records an actor the scenario owns and must remove on teardown.
func (s *Scenario) addActor(id sim.ActorID) {
	s.others = append(s.others, id)
}

// assemble builds the root tree. With no criteria the criteria branch is left
// out, since an empty SuccessOnAll parallel would end the run on its first tick.
func (s *Scenario) assemble(behavior bt.Node, criteria []atomic.Criterion, cfg *Config) {
	s.behavior = behavior
	s.criteria = criteria

	root := bt.NewParallel(s.name, bt.SuccessOnOne, behavior)
	if len(criteria) > 0 {
		branch := bt.NewParallel("Criteria", bt.SuccessOnAll)
		for _, c := range criteria {
			branch.Add(c.Node())
		}
		root.Add(branch)
	}
	timeoutNode, timeout := bt.NewTimeout("Timeout", cfg.TimeoutDuration(), s.env.Clock)
	root.Add(timeoutNode)
	s.timeout = timeout
	s.tree = bt.NewTree(root)
}

func (s *Scenario) Name() string                 { return s.name }
func (s *Scenario) EgoVehicles() []sim.ActorID   { return s.egos }
func (s *Scenario) OtherActors() []sim.ActorID   { return s.others }
func (s *Scenario) Tree() *bt.Tree               { return s.tree }
func (s *Scenario) Criteria() []atomic.Criterion { return s.criteria }

// Tick advances the tree once. Call it after the world has ticked.
func (s *Scenario) Tick() bt.Status {
	status := s.tree.Tick()
	if s.debug {
		s.logger.Debug("Tree ticked", "tick", s.tree.Ticks(), "status", status.String(), "tree", bt.Render(s.tree.Root()))
	}
	return status
}

// Done reports whether the tree has finished.
func (s *Scenario) Done() bool {
	return s.tree.Status().Done()
}

// TimedOut reports whether the timeout fired.
func (s *Scenario) TimedOut() bool {
	return s.timeout.TimedOut()
}

// Teardown stops the tree, samples the criteria and removes every owned
// actor. It is safe to call more than once and on any exit path; the first
// call fixes the verdict.
func (s *Scenario) Teardown() error {
	if s.torn {
		return nil
	}
	s.torn = true

	finished := s.Done()
	if !finished {
		s.tree.Stop(bt.Invalid)
	}

	s.results = make([]atomic.Result, 0, len(s.criteria))
	for _, c := range s.criteria {
		s.results = append(s.results, c.Finalize())
	}
	s.verdict = s.judge(finished)

	err := s.RemoveAllActors()
	s.logger.Info("Scenario torn down", "verdict", s.verdict, "ticks", s.tree.Ticks())
	return err
}

func (s *Scenario) judge(finished bool) Verdict {
	switch {
	case !finished:
		return VerdictAborted
	case s.timeout.TimedOut() && s.behavior.Status() != bt.Success:
		return VerdictTimeout
	case s.behavior.Status() != bt.Success:
		return VerdictFailure
	}
	for _, r := range s.results {
		if !r.Passed() {
			return VerdictFailure
		}
	}
	return VerdictSuccess
}

// RemoveAllActors destroys every actor the scenario spawned. Actors the tree
// already destroyed are skipped.
func (s *Scenario) RemoveAllActors() error {
	var errs []error
	for _, id := range s.others {
		err := s.env.World.Destroy(id)
		switch {
		case err == nil:
			s.logger.Debug("Removed scenario actor", "actor_id", id)
		case errors.Is(err, sim.ErrActorNotFound):
		default:
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", id, err))
		}
	}
	s.others = nil
	return errors.Join(errs...)
}

// Verdict is the outcome fixed by Teardown. Before teardown it is empty.
func (s *Scenario) Verdict() Verdict { return s.verdict }

// Results are the criteria results sampled by Teardown.
func (s *Scenario) Results() []atomic.Result { return s.results }
