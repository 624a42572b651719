package bt

import (
	"fmt"
	"strings"
)

// Tree owns a root node and counts ticks.
type Tree struct {
	root  Node
	ticks int
}

// NewTree creates a tree around root.
func NewTree(root Node) *Tree {
	return &Tree{root: root}
}

func (t *Tree) Root() Node     { return t.root }
func (t *Tree) Ticks() int     { return t.ticks }
func (t *Tree) Status() Status { return t.root.Status() }

// Tick ticks the root once. A finished tree is not ticked again.
func (t *Tree) Tick() Status {
	if t.root.Status().Done() {
		return t.root.Status()
	}
	t.ticks++
	return t.root.Tick()
}

// Stop interrupts every running node and leaves the root with newStatus.
func (t *Tree) Stop(newStatus Status) {
	t.root.Stop(newStatus)
}

// Walk visits n and its descendants depth first.
func Walk(n Node, fn func(n Node, depth int)) {
	walk(n, 0, fn)
}

func walk(n Node, depth int, fn func(Node, int)) {
	fn(n, depth)
	if c, ok := n.(Composite); ok {
		for _, child := range c.Children() {
			walk(child, depth+1, fn)
		}
	}
}

// Render prints the tree with one node per line, marking each node's status.
func Render(n Node) string {
	var b strings.Builder
	Walk(n, func(n Node, depth int) {
		kind := "-->"
		switch v := n.(type) {
		case *Sequence:
			kind = "[-]"
		case *Parallel:
			kind = "/_/"
			if v.Policy() == SuccessOnAll {
				kind = "/&/"
			}
		}
		fmt.Fprintf(&b, "%s%s %s [%s]\n", strings.Repeat("    ", depth), kind, n.Name(), glyph(n.Status()))
	})
	return b.String()
}

func glyph(s Status) string {
	switch s {
	case Running:
		return "*"
	case Success:
		return "✓"
	case Failure:
		return "x"
	default:
		return "-"
	}
}
