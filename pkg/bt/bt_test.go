package bt

import (
	"strings"
	"testing"
	"time"
)

// scripted returns the given statuses in order, repeating the last one.
type scripted struct {
	statuses   []Status
	ticks      int
	inits      int
	terminated []Status
}

func (s *scripted) Initialize() { s.inits++ }

func (s *scripted) Update() Status {
	i := s.ticks
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.ticks++
	return s.statuses[i]
}

func (s *scripted) Terminate(st Status) { s.terminated = append(s.terminated, st) }

func leaf(name string, statuses ...Status) (*Leaf, *scripted) {
	s := &scripted{statuses: statuses}
	return NewLeaf(name, s), s
}

func TestSequence(t *testing.T) {
	t.Run("runs children in order", func(t *testing.T) {
		a, sa := leaf("a", Running, Success)
		b, sb := leaf("b", Success)
		seq := NewSequence("seq", a, b)

		if got := seq.Tick(); got != Running {
			t.Fatalf("first tick: expected RUNNING, got %s", got)
		}
		if sb.ticks != 0 {
			t.Errorf("b ticked before a finished")
		}
		if got := seq.Tick(); got != Success {
			t.Fatalf("second tick: expected SUCCESS, got %s", got)
		}
		if sa.ticks != 2 || sb.ticks != 1 {
			t.Errorf("unexpected tick counts a=%d b=%d", sa.ticks, sb.ticks)
		}
	})

	t.Run("aborts on failure", func(t *testing.T) {
		a, _ := leaf("a", Success)
		b, _ := leaf("b", Failure)
		c, sc := leaf("c", Success)
		seq := NewSequence("seq", a, b, c)

		if got := seq.Tick(); got != Failure {
			t.Fatalf("expected FAILURE, got %s", got)
		}
		if sc.ticks != 0 {
			t.Errorf("child after the failure was ticked %d times", sc.ticks)
		}
		if c.Status() != Invalid {
			t.Errorf("expected c to stay INVALID, got %s", c.Status())
		}
	})

	t.Run("remembers the running child", func(t *testing.T) {
		a, sa := leaf("a", Success)
		b, _ := leaf("b", Running, Running, Success)
		seq := NewSequence("seq", a, b)

		for i := 0; i < 3; i++ {
			seq.Tick()
		}
		if sa.ticks != 1 {
			t.Errorf("a ticked %d times, expected 1", sa.ticks)
		}
		if seq.Status() != Success {
			t.Errorf("expected SUCCESS, got %s", seq.Status())
		}
	})

	t.Run("empty sequence succeeds", func(t *testing.T) {
		if got := NewSequence("empty").Tick(); got != Success {
			t.Errorf("expected SUCCESS, got %s", got)
		}
	})
}

func TestParallelSuccessOnOne(t *testing.T) {
	follow, sf := leaf("follow", Running)
	trigger, _ := leaf("trigger", Running, Running, Success)
	par := NewParallel("par", SuccessOnOne, follow, trigger)

	for i := 0; i < 2; i++ {
		if got := par.Tick(); got != Running {
			t.Fatalf("tick %d: expected RUNNING, got %s", i, got)
		}
	}
	if got := par.Tick(); got != Success {
		t.Fatalf("expected SUCCESS on the tick the trigger succeeded, got %s", got)
	}
	if follow.Status() != Invalid {
		t.Errorf("expected running sibling to be stopped, got %s", follow.Status())
	}
	if len(sf.terminated) != 1 || sf.terminated[0] != Invalid {
		t.Errorf("expected follow to be terminated once with INVALID, got %v", sf.terminated)
	}
}

func TestParallelSuccessOnAll(t *testing.T) {
	t.Run("waits for every child", func(t *testing.T) {
		a, sa := leaf("a", Success)
		b, _ := leaf("b", Running, Running, Success)
		par := NewParallel("par", SuccessOnAll, a, b)

		want := []Status{Running, Running, Success}
		for i, w := range want {
			if got := par.Tick(); got != w {
				t.Fatalf("tick %d: expected %s, got %s", i, w, got)
			}
		}
		if sa.ticks != 1 {
			t.Errorf("finished child re-ticked: %d ticks", sa.ticks)
		}
	})

	t.Run("fails when a child fails", func(t *testing.T) {
		a, sa := leaf("a", Running)
		b, _ := leaf("b", Failure)
		par := NewParallel("par", SuccessOnAll, a, b)

		if got := par.Tick(); got != Failure {
			t.Fatalf("expected FAILURE, got %s", got)
		}
		if a.Status() != Invalid || len(sa.terminated) != 1 {
			t.Errorf("running child should have been stopped")
		}
	})

	t.Run("empty parallel succeeds", func(t *testing.T) {
		for _, p := range []Policy{SuccessOnOne, SuccessOnAll} {
			if got := NewParallel("empty", p).Tick(); got != Success {
				t.Errorf("%s: expected SUCCESS, got %s", p, got)
			}
		}
	})
}

func TestLeafLifecycle(t *testing.T) {
	l, s := leaf("l", Running, Success, Running)

	l.Tick()
	l.Tick()
	if s.inits != 1 {
		t.Errorf("expected 1 initialize, got %d", s.inits)
	}
	if len(s.terminated) != 1 || s.terminated[0] != Success {
		t.Errorf("expected terminate(SUCCESS), got %v", s.terminated)
	}

	// A finished leaf starts over on the next tick.
	l.Tick()
	if s.inits != 2 {
		t.Errorf("expected re-initialize after finishing, got %d", s.inits)
	}
}

func TestConditionAndAction(t *testing.T) {
	ready := false
	cond := Condition("ready", func() bool { return ready })
	if got := cond.Tick(); got != Running {
		t.Errorf("expected RUNNING, got %s", got)
	}
	ready = true
	if got := cond.Tick(); got != Success {
		t.Errorf("expected SUCCESS, got %s", got)
	}

	act := Action("invalid", func() Status { return Invalid })
	if got := act.Tick(); got != Failure {
		t.Errorf("an action returning INVALID should fail, got %s", got)
	}
}

func TestTimeout(t *testing.T) {
	var now time.Duration
	node, timeout := NewTimeout("timeout", 300*time.Second, func() time.Duration { return now })

	if got := node.Tick(); got != Running {
		t.Fatalf("expected RUNNING, got %s", got)
	}
	now = 299 * time.Second
	if got := node.Tick(); got != Running || timeout.TimedOut() {
		t.Fatalf("timed out early")
	}
	now = 300 * time.Second
	if got := node.Tick(); got != Success {
		t.Fatalf("expected SUCCESS, got %s", got)
	}
	if !timeout.TimedOut() {
		t.Error("expected TimedOut after the duration elapsed")
	}
}

func TestTreeAndRender(t *testing.T) {
	a, _ := leaf("Drive", Running, Success)
	b, _ := leaf("Stop", Success)
	root := NewSequence("Behavior", NewParallel("Drive until junction", SuccessOnOne, a), b)
	tree := NewTree(root)

	tree.Tick()
	if got := tree.Tick(); got != Success {
		t.Fatalf("expected SUCCESS, got %s", got)
	}
	tree.Tick()
	if tree.Ticks() != 2 {
		t.Errorf("finished tree should not be ticked again, ticks=%d", tree.Ticks())
	}

	out := Render(root)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "[-] Behavior") {
		t.Errorf("unexpected root line %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "        --> Drive") {
		t.Errorf("unexpected nested line %q", lines[2])
	}
}
