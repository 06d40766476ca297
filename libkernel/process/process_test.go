package process

import (
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"weak"
)

var lastPid atomic.Uint32

func newPid() Pid {
	return lastPid.Add(1)
}

func newChild(p *Process) *Process {
	return p.Fork(newPid())
}

func contains(ps []*Process, p *Process) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

func TestChild(t *testing.T) {
	root := NewInit(newPid())
	child := newChild(root)
	if child.Parent() != root {
		t.Fatal("child's parent is not root")
	}
	if !contains(root.Children(), child) {
		t.Fatal("child not among root's children")
	}
	if child.Init() != root || !root.IsInit() || child.IsInit() {
		t.Fatal("root bookkeeping is wrong")
	}
}

func TestExit(t *testing.T) {
	root := NewInit(newPid())
	child := newChild(root)
	child.Exit()
	if !child.IsZombie() {
		t.Fatal("exited process is not a zombie")
	}
	if !contains(root.Children(), child) {
		t.Fatal("zombie left its parent before being freed")
	}
	if s, ok := child.ZombieInfo(); !ok || s.Signal != 0 {
		t.Fatalf("zombie state = %v", s)
	}
}

func TestExitInitIsNoop(t *testing.T) {
	root := NewInit(newPid())
	root.Exit()
	if root.IsZombie() {
		t.Fatal("root became a zombie")
	}
}

func TestFreeNotZombie(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("freeing a live process did not panic")
		}
	}()
	newChild(NewInit(newPid())).Free()
}

func TestFree(t *testing.T) {
	parent := newChild(NewInit(newPid()))
	child := newChild(parent)
	child.Exit()
	child.Free()
	if len(parent.Children()) != 0 {
		t.Fatal("freed child still listed")
	}
}

func TestFreeWhileParentExits(t *testing.T) {
	for i := 0; i < 200; i++ {
		root := NewInit(newPid())
		parent := newChild(root)
		child := newChild(parent)
		child.Exit()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			parent.Exit()
		}()
		go func() {
			defer wg.Done()
			child.Free()
		}()
		wg.Wait()

		if contains(root.Children(), child) || contains(parent.Children(), child) {
			t.Fatalf("iteration %d: freed zombie still listed", i)
		}
	}
}

func TestReparentToInit(t *testing.T) {
	root := NewInit(newPid())
	parent := newChild(root)
	child := newChild(parent)
	grandchild := newChild(child)

	parent.Exit()
	if child.Parent() != root {
		t.Fatalf("orphan parent = %v, want root", child.Parent())
	}
	if !contains(root.Children(), child) {
		t.Fatal("orphan not adopted by root")
	}
	if len(parent.Children()) != 0 {
		t.Fatal("exited process kept its children")
	}
	if grandchild.Parent() != child {
		t.Fatal("grandchild was reparented")
	}
}

func TestThreadExit(t *testing.T) {
	child := newChild(NewInit(newPid()))
	child.AddThread(101)
	child.AddThread(102)

	if got := child.Threads(); !reflect.DeepEqual(got, []Pid{101, 102}) {
		t.Fatalf("threads = %v", got)
	}
	if child.ExitThread(101, 7) {
		t.Fatal("101 is not the last thread")
	}
	if child.ExitCode() != 7 {
		t.Fatalf("exit code = %d", child.ExitCode())
	}

	child.GroupExit()
	if !child.IsGroupExited() {
		t.Fatal("group exit not recorded")
	}
	if !child.ExitThread(102, 3) {
		t.Fatal("102 is the last thread")
	}
	if child.ExitCode() != 7 {
		t.Fatalf("exit code changed after group exit: %d", child.ExitCode())
	}
}

func TestExitThreadUnknownTid(t *testing.T) {
	child := newChild(NewInit(newPid()))
	child.AddThread(201)
	if !child.ExitThread(201, 5) {
		t.Fatal("201 is the last thread")
	}
	if child.ExitThread(201, 9) || child.ExitThread(999, 9) {
		t.Fatal("exiting an unknown thread reported the last thread")
	}
	if child.ExitCode() != 5 {
		t.Fatalf("exit code = %d, want 5", child.ExitCode())
	}

	other := newChild(NewInit(newPid()))
	other.AddThread(301)
	if other.ExitThread(302, 1) {
		t.Fatal("unknown tid ended a live thread group")
	}
	if other.ExitCode() != 0 {
		t.Fatalf("unknown tid set exit code %d", other.ExitCode())
	}
	if got := other.Threads(); !reflect.DeepEqual(got, []Pid{301}) {
		t.Fatalf("threads = %v", got)
	}
}

func TestExitWithSignal(t *testing.T) {
	child := newChild(NewInit(newPid()))
	child.AddThread(child.PID())
	child.ExitThread(child.PID(), 128+9)
	child.ExitWithSignal(9, true)

	s, ok := child.ZombieInfo()
	if !ok || s.Signal != 9 || !s.CoreDumped || s.ExitCode != 137 {
		t.Fatalf("zombie state = %+v", s)
	}
}

func TestStopContinueTransitions(t *testing.T) {
	p := newChild(NewInit(newPid()))
	if p.ContinueFromStop() {
		t.Fatal("continued a running process")
	}
	if !p.StopBySignal(19) || !p.IsStopped() || !p.StoppedUnacked() {
		t.Fatalf("state after stop: %v", p.State())
	}
	if p.StopBySignal(20) {
		t.Fatal("stopped twice")
	}
	p.AckStopped()
	if p.StoppedUnacked() {
		t.Fatal("ack not recorded")
	}
	if !p.ContinueFromStop() || !p.IsContinued() {
		t.Fatalf("state after continue: %v", p.State())
	}
	p.AckContinued()
	if p.IsContinued() {
		t.Fatal("continue ack not recorded")
	}
	p.Exit()
	if p.StopBySignal(19) {
		t.Fatal("stopped a zombie")
	}
}

func TestFreedProcessIsCollected(t *testing.T) {
	root := NewInit(newPid())
	wp := func() weak.Pointer[Process] {
		child := newChild(root)
		child.Exit()
		child.Free()
		return weak.Make(child)
	}()
	runtime.GC()
	if wp.Value() != nil {
		t.Fatal("freed process is still reachable")
	}
	runtime.KeepAlive(root)
}
