package bt

import "time"

// Behavior is the user logic of a leaf. Update is called once per tick while
// the leaf is active.
type Behavior interface {
	Update() Status
}

// Initializer is implemented by behaviors that need to reset state when the
// leaf starts (its first tick, or the first tick after it finished).
type Initializer interface {
	Initialize()
}

// Terminator is implemented by behaviors that react to the leaf finishing or
// being stopped.
type Terminator interface {
	Terminate(newStatus Status)
}

// Leaf adapts a Behavior to the Node interface.
type Leaf struct {
	name     string
	behavior Behavior
	status   Status
}

var _ Node = (*Leaf)(nil)

// NewLeaf wraps b in a node.
func NewLeaf(name string, b Behavior) *Leaf {
	return &Leaf{name: name, behavior: b}
}

func (l *Leaf) Name() string       { return l.name }
func (l *Leaf) Status() Status     { return l.status }
func (l *Leaf) Behavior() Behavior { return l.behavior }

func (l *Leaf) Tick() Status {
	if l.status != Running {
		if i, ok := l.behavior.(Initializer); ok {
			i.Initialize()
		}
	}
	l.status = l.behavior.Update()
	if l.status == Invalid {
		l.status = Failure
	}
	if l.status.Done() {
		if t, ok := l.behavior.(Terminator); ok {
			t.Terminate(l.status)
		}
	}
	return l.status
}

func (l *Leaf) Stop(newStatus Status) {
	if l.status == Running {
		if t, ok := l.behavior.(Terminator); ok {
			t.Terminate(newStatus)
		}
	}
	l.status = newStatus
}

// BehaviorFunc lets a plain function act as a Behavior.
type BehaviorFunc func() Status

func (f BehaviorFunc) Update() Status { return f() }

// Action creates a leaf from fn.
func Action(name string, fn func() Status) *Leaf {
	return NewLeaf(name, BehaviorFunc(fn))
}

// Condition creates a leaf that keeps running until pred holds, then succeeds.
func Condition(name string, pred func() bool) *Leaf {
	return NewLeaf(name, BehaviorFunc(func() Status {
		if pred() {
			return Success
		}
		return Running
	}))
}

// Clock reports the time elapsed on whatever clock drives the tree.
type Clock func() time.Duration

// Timeout runs until its duration has elapsed on clock, then succeeds.
type Timeout struct {
	duration time.Duration
	clock    Clock
	start    time.Duration
	timedOut bool
}

// NewTimeout creates a timeout leaf.
func NewTimeout(name string, d time.Duration, clock Clock) (*Leaf, *Timeout) {
	t := &Timeout{duration: d, clock: clock}
	return NewLeaf(name, t), t
}

func (t *Timeout) Initialize() {
	t.start = t.clock()
	t.timedOut = false
}

func (t *Timeout) Update() Status {
	if t.clock()-t.start >= t.duration {
		t.timedOut = true
		return Success
	}
	return Running
}

// TimedOut reports whether the duration was reached.
func (t *Timeout) TimedOut() bool { return t.timedOut }

// Duration is the configured timeout.
func (t *Timeout) Duration() time.Duration { return t.duration }
