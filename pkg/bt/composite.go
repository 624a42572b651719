package bt

// Sequence ticks its children in order, one at a time. It remembers the child
// it is waiting on across ticks. The first failing child fails the sequence
// and later children are never ticked.
type Sequence struct {
	name     string
	children []Node
	current  int
	status   Status
}

var _ Composite = (*Sequence)(nil)

// NewSequence creates a sequence over children.
func NewSequence(name string, children ...Node) *Sequence {
	return &Sequence{name: name, children: children}
}

// Add appends children.
func (s *Sequence) Add(children ...Node) {
	s.children = append(s.children, children...)
}

func (s *Sequence) Name() string     { return s.name }
func (s *Sequence) Status() Status   { return s.status }
func (s *Sequence) Children() []Node { return s.children }

func (s *Sequence) Tick() Status {
	if s.status != Running {
		s.current = 0
	}
	for s.current < len(s.children) {
		switch s.children[s.current].Tick() {
		case Running:
			s.status = Running
			return s.status
		case Failure:
			s.status = Failure
			return s.status
		}
		s.current++
	}
	s.status = Success
	return s.status
}

func (s *Sequence) Stop(newStatus Status) {
	stopRunning(s.children, Invalid)
	s.current = 0
	s.status = newStatus
}

// Policy decides when a Parallel succeeds.
type Policy int

const (
	// SuccessOnOne succeeds as soon as any child succeeds.
	SuccessOnOne Policy = iota
	// SuccessOnAll succeeds once every child has succeeded.
	SuccessOnAll
)

func (p Policy) String() string {
	if p == SuccessOnAll {
		return "SUCCESS_ON_ALL"
	}
	return "SUCCESS_ON_ONE"
}

// Parallel ticks every unfinished child on each tick. Any child failure fails
// the parallel. On completion the children still running are stopped.
// A parallel without children succeeds on its first tick.
type Parallel struct {
	name      string
	policy    Policy
	children  []Node
	succeeded []bool
	status    Status
}

var _ Composite = (*Parallel)(nil)

// NewParallel creates a parallel over children with the given policy.
func NewParallel(name string, policy Policy, children ...Node) *Parallel {
	return &Parallel{name: name, policy: policy, children: children}
}

// Add appends children.
func (p *Parallel) Add(children ...Node) {
	p.children = append(p.children, children...)
}

func (p *Parallel) Name() string     { return p.name }
func (p *Parallel) Status() Status   { return p.status }
func (p *Parallel) Children() []Node { return p.children }
func (p *Parallel) Policy() Policy   { return p.policy }

func (p *Parallel) Tick() Status {
	if p.status != Running || len(p.succeeded) != len(p.children) {
		p.succeeded = make([]bool, len(p.children))
	}

	failed, anySuccess := false, false
	for i, c := range p.children {
		if p.succeeded[i] {
			continue
		}
		switch c.Tick() {
		case Success:
			p.succeeded[i] = true
			anySuccess = true
		case Failure:
			failed = true
		}
	}

	switch {
	case failed:
		p.status = Failure
	case p.policy == SuccessOnOne && anySuccess:
		p.status = Success
	case p.allSucceeded():
		p.status = Success
	default:
		p.status = Running
	}

	if p.status.Done() {
		stopRunning(p.children, Invalid)
	}
	return p.status
}

func (p *Parallel) allSucceeded() bool {
	for _, ok := range p.succeeded {
		if !ok {
			return false
		}
	}
	return true
}

func (p *Parallel) Stop(newStatus Status) {
	stopRunning(p.children, Invalid)
	p.succeeded = nil
	p.status = newStatus
}
