package process

import (
	"runtime"
	"testing"
	"weak"
)

func TestGroupBasic(t *testing.T) {
	root := NewInit(newPid())
	group := root.Group()
	if group.PGID() != root.PID() {
		t.Fatalf("pgid = %d, want %d", group.PGID(), root.PID())
	}
	child := newChild(root)
	if child.Group() != group {
		t.Fatal("child did not inherit the group")
	}
	ps := group.Processes()
	if !contains(ps, root) || !contains(ps, child) {
		t.Fatal("group members missing")
	}
}

func TestGroupCreate(t *testing.T) {
	parent := NewInit(newPid())
	child := newChild(parent)
	g := child.CreateGroup()
	if g == nil {
		t.Fatal("CreateGroup failed")
	}
	if child.Group() != g || g.PGID() != child.PID() {
		t.Fatal("child is not the leader of its new group")
	}
	if ps := g.Processes(); len(ps) != 1 || ps[0] != child {
		t.Fatalf("new group members = %v", ps)
	}
	if contains(parent.Group().Processes(), child) {
		t.Fatal("child still in the old group")
	}
}

func TestGroupCreateLeader(t *testing.T) {
	root := NewInit(newPid())
	group := root.Group()
	if root.CreateGroup() != nil {
		t.Fatal("group leader created another group")
	}
	if root.Group() != group {
		t.Fatal("leader changed group")
	}
}

func TestGroupCleanup(t *testing.T) {
	root := NewInit(newPid())
	wg := func() weak.Pointer[ProcessGroup] {
		child := newChild(root)
		g := child.CreateGroup()
		child.Exit()
		child.Free()
		return weak.Make(g)
	}()
	runtime.GC()
	if wg.Value() != nil {
		t.Fatal("group outlived its last member")
	}
	runtime.KeepAlive(root)
}

func TestGroupInherit(t *testing.T) {
	parent := newChild(NewInit(newPid()))
	g := parent.CreateGroup()
	child := newChild(parent)
	if child.Group() != g {
		t.Fatal("child did not inherit the group")
	}
	if n := len(g.Processes()); n != 2 {
		t.Fatalf("group has %d members", n)
	}
}

func TestMoveToGroup(t *testing.T) {
	parent := NewInit(newPid())

	child1 := newChild(parent)
	g1 := child1.CreateGroup()
	if !child1.MoveToGroup(child1.Group()) {
		t.Fatal("move to own group failed")
	}
	if child1.Group() != g1 || len(g1.Processes()) != 1 {
		t.Fatal("moving to own group changed membership")
	}

	child2 := newChild(parent)
	g2 := child2.CreateGroup()
	if !child2.MoveToGroup(g1) || child2.Group() != g1 {
		t.Fatal("move failed")
	}
	ps := g1.Processes()
	if len(ps) != 2 || ps[0] != child1 || ps[1] != child2 {
		t.Fatalf("members = %v", ps)
	}
	if n := len(g2.Processes()); n != 0 {
		t.Fatalf("old group has %d members", n)
	}
}

func TestMoveCleanup(t *testing.T) {
	parent := NewInit(newPid())
	group := parent.Group()
	child := newChild(parent)

	wg := weak.Make(child.CreateGroup())
	if wg.Value() == nil {
		t.Fatal("group collected while in use")
	}
	if !child.MoveToGroup(group) {
		t.Fatal("move failed")
	}
	runtime.GC()
	if wg.Value() != nil {
		t.Fatal("empty group still alive")
	}
	for _, g := range group.Session().ProcessGroups() {
		if g != group {
			t.Fatalf("session still lists group %d", g.PGID())
		}
	}
}

func TestMoveBack(t *testing.T) {
	parent := NewInit(newPid())
	group := parent.Group()
	child := newChild(parent)
	childGroup := child.CreateGroup()

	if !child.MoveToGroup(group) || !child.MoveToGroup(childGroup) {
		t.Fatal("move failed")
	}
	if child.Group() != childGroup {
		t.Fatal("child not back in its group")
	}
	if contains(group.Processes(), child) {
		t.Fatal("child still in parent's group")
	}
}

func TestGroupCleanupProcesses(t *testing.T) {
	parent := newChild(NewInit(newPid()))
	g := parent.CreateGroup()
	parent.Exit()
	parent.Free()
	if n := len(g.Processes()); n != 0 {
		t.Fatalf("freed process still in group (%d members)", n)
	}
}
