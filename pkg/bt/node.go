// Package bt is a small tick-driven behavior tree runtime.
//
// Every node returns Running, Success or Failure from Tick without blocking.
// Behavior that spans many ticks keeps its progress in node state. The node
// kinds are closed: Sequence, Parallel and Leaf. Leaf logic is supplied by
// the caller as a Behavior.
package bt

// Status is the result of ticking a node.
type Status int

const (
	// Invalid means the node has not been ticked since it was created or stopped.
	Invalid Status = iota
	Running
	Success
	Failure
)

func (s Status) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	default:
		return "INVALID"
	}
}

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	return s == Success || s == Failure
}

// Node is a behavior tree node.
type Node interface {
	Name() string

	// Tick advances the node one step and returns its new status.
	Tick() Status

	// Stop interrupts the node. A running node terminates with newStatus.
	Stop(newStatus Status)

	// Status is the result of the last tick.
	Status() Status
}

// Composite is implemented by nodes that own children.
type Composite interface {
	Node
	Children() []Node
}

// stopRunning interrupts every child that is still running.
func stopRunning(children []Node, newStatus Status) {
	for _, c := range children {
		if c.Status() == Running {
			c.Stop(newStatus)
		}
	}
}
