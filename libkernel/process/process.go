// Package process implements the process hierarchy: processes, process
// groups and sessions, and the job-control state a parent observes through
// wait.
//
// Parents own their children; a child refers to its parent weakly. Groups
// and sessions track their members in weak maps, so a group or session
// disappears once nothing belongs to it.
package process

import (
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/bits-and-blooms/bitset"
)

// Pid is a process, thread, process group or session id.
type Pid = uint32

type threadGroup struct {
	threads     *bitset.BitSet
	exitCode    int32
	groupExited bool
}

// Process is a process in the hierarchy.
type Process struct {
	pid  Pid
	init *Process

	zombie atomic.Bool

	tgMu sync.Mutex
	tg   threadGroup

	childrenMu sync.Mutex
	children   map[Pid]*Process

	parentMu sync.Mutex
	parent   weak.Pointer[Process]

	groupMu sync.Mutex
	group   *ProcessGroup

	stateMu sync.Mutex
	state   State
}

func newProcess(pid Pid, parent *Process) *Process {
	p := &Process{
		pid:      pid,
		tg:       threadGroup{threads: bitset.New(0)},
		children: make(map[Pid]*Process),
	}

	var group *ProcessGroup
	if parent == nil {
		p.init = p
		group = newProcessGroup(pid, newSession(pid))
	} else {
		p.init = parent.init
		p.parent = weak.Make(parent)
		group = parent.Group()
	}
	p.group = group
	group.add(p)

	if parent != nil {
		parent.childrenMu.Lock()
		parent.children[pid] = p
		parent.childrenMu.Unlock()
	}
	return p
}

// NewInit creates the init process of a new hierarchy, leading a new
// session and process group. Orphans of every descendant are reparented to
// it.
func NewInit(pid Pid) *Process {
	return newProcess(pid, nil)
}

// Fork creates a child of p with the given pid, in p's process group.
func (p *Process) Fork(pid Pid) *Process {
	return newProcess(pid, p)
}

// PID returns the process id.
func (p *Process) PID() Pid {
	return p.pid
}

// IsInit reports whether p is the init process of its hierarchy.
func (p *Process) IsInit() bool {
	return p.init == p
}

// Init returns the init process of p's hierarchy.
func (p *Process) Init() *Process {
	return p.init
}

// Parent returns the parent, or nil for init or if the parent is gone.
func (p *Process) Parent() *Process {
	p.parentMu.Lock()
	defer p.parentMu.Unlock()
	return p.parent.Value()
}

// Children returns the children ordered by pid, zombies included.
func (p *Process) Children() []*Process {
	p.childrenMu.Lock()
	defer p.childrenMu.Unlock()
	out := make([]*Process, 0, len(p.children))
	for _, c := range p.children {
		out = append(out, c)
	}
	sortByPid(out)
	return out
}

// Group returns the process group p belongs to.
func (p *Process) Group() *ProcessGroup {
	p.groupMu.Lock()
	defer p.groupMu.Unlock()
	return p.group
}

func (p *Process) setGroup(g *ProcessGroup) {
	p.groupMu.Lock()
	defer p.groupMu.Unlock()
	p.group.remove(p.pid)
	g.add(p)
	p.group = g
}

// CreateSession makes p the leader of a new session and of a new process
// group within it. It returns nil if p already leads a session.
//
// The caller must make sure p does not lead a process group, since the new
// group takes p's pid.
func (p *Process) CreateSession() (*Session, *ProcessGroup) {
	if p.Group().Session().SID() == p.pid {
		return nil, nil
	}
	s := newSession(p.pid)
	g := newProcessGroup(p.pid, s)
	p.setGroup(g)
	return s, g
}

// CreateGroup makes p the leader of a new process group in its session. It
// returns nil if p already leads a group.
func (p *Process) CreateGroup() *ProcessGroup {
	cur := p.Group()
	if cur.PGID() == p.pid {
		return nil
	}
	g := newProcessGroup(p.pid, cur.Session())
	p.setGroup(g)
	return g
}

// MoveToGroup moves p into g. It fails if g belongs to another session.
func (p *Process) MoveToGroup(g *ProcessGroup) bool {
	cur := p.Group()
	if cur == g {
		return true
	}
	if cur.Session() != g.Session() {
		return false
	}
	p.setGroup(g)
	return true
}

// AddThread records tid as a live thread of p.
func (p *Process) AddThread(tid Pid) {
	p.tgMu.Lock()
	p.tg.threads.Set(uint(tid))
	p.tgMu.Unlock()
}

// ExitThread removes tid and, unless the process has group-exited, records
// code as the exit code. It returns true if tid was the last thread. An
// unknown tid is ignored.
func (p *Process) ExitThread(tid Pid, code int32) bool {
	p.tgMu.Lock()
	defer p.tgMu.Unlock()
	if !p.tg.threads.Test(uint(tid)) {
		return false
	}
	if !p.tg.groupExited {
		p.tg.exitCode = code
	}
	p.tg.threads.Clear(uint(tid))
	return p.tg.threads.None()
}

// Threads returns the live thread ids in ascending order.
func (p *Process) Threads() []Pid {
	p.tgMu.Lock()
	defer p.tgMu.Unlock()
	out := make([]Pid, 0, p.tg.threads.Count())
	for i, ok := p.tg.threads.NextSet(0); ok; i, ok = p.tg.threads.NextSet(i + 1) {
		out = append(out, Pid(i))
	}
	return out
}

// GroupExit marks the process as exiting as a whole. The exit code can no
// longer change.
func (p *Process) GroupExit() {
	p.tgMu.Lock()
	p.tg.groupExited = true
	p.tgMu.Unlock()
}

// IsGroupExited reports whether GroupExit was called.
func (p *Process) IsGroupExited() bool {
	p.tgMu.Lock()
	defer p.tgMu.Unlock()
	return p.tg.groupExited
}

// ExitCode returns the exit code.
func (p *Process) ExitCode() int32 {
	p.tgMu.Lock()
	defer p.tgMu.Unlock()
	return p.tg.exitCode
}

// IsZombie reports whether p has exited and not been freed.
func (p *Process) IsZombie() bool {
	return p.zombie.Load()
}

// Exit turns p into a zombie and hands its children to init. Exiting init
// does nothing.
func (p *Process) Exit() {
	p.exit(0, false)
}

// ExitWithSignal is Exit for a process killed by sig. The signal is what
// the parent's wait reports.
func (p *Process) ExitWithSignal(sig int32, coreDumped bool) {
	p.exit(sig, coreDumped)
}

func (p *Process) exit(sig int32, coreDumped bool) {
	reaper := p.init
	if reaper == p {
		return
	}

	p.childrenMu.Lock()
	defer p.childrenMu.Unlock()

	p.setZombieState(sig, coreDumped)
	p.zombie.Store(true)

	reaper.childrenMu.Lock()
	defer reaper.childrenMu.Unlock()
	for pid, c := range p.children {
		c.parentMu.Lock()
		c.parent = weak.Make(reaper)
		c.parentMu.Unlock()
		reaper.children[pid] = c
	}
	clear(p.children)
}

// Free releases a zombie: it is removed from its parent and its process
// group. Freeing a live process is a programming error and panics.
func (p *Process) Free() {
	if !p.IsZombie() {
		panic(fmt.Sprintf("process %d: only zombie process can be freed", p.pid))
	}
	for {
		parent := p.Parent()
		if parent == nil {
			break
		}
		parent.childrenMu.Lock()
		// The parent may have exited and handed us to its reaper.
		if p.Parent() != parent {
			parent.childrenMu.Unlock()
			continue
		}
		delete(parent.children, p.pid)
		parent.childrenMu.Unlock()
		break
	}
	p.Group().remove(p.pid)
}

func (p *Process) String() string {
	return fmt.Sprintf("Process(%d)", p.pid)
}
