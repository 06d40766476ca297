package process

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/hostkern/hostkern/internal/weakmap"
)

// ProcessGroup is a set of processes in the same session that receive job
// control signals together.
type ProcessGroup struct {
	pgid    Pid
	session *Session

	mu        sync.Mutex
	processes *weakmap.Map[Pid, Process]
}

func newProcessGroup(pgid Pid, s *Session) *ProcessGroup {
	g := &ProcessGroup{
		pgid:      pgid,
		session:   s,
		processes: weakmap.New[Pid, Process](),
	}
	s.add(g)
	return g
}

// PGID returns the process group id.
func (g *ProcessGroup) PGID() Pid {
	return g.pgid
}

// Session returns the session the group belongs to.
func (g *ProcessGroup) Session() *Session {
	return g.session
}

// Processes returns the live members ordered by pid.
func (g *ProcessGroup) Processes() []*Process {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.processes.Values()
}

func (g *ProcessGroup) add(p *Process) {
	g.mu.Lock()
	g.processes.Insert(p.pid, p)
	g.mu.Unlock()
}

func (g *ProcessGroup) remove(pid Pid) {
	g.mu.Lock()
	g.processes.Remove(pid)
	g.mu.Unlock()
}

func (g *ProcessGroup) String() string {
	return fmt.Sprintf("ProcessGroup(%d, session=%d)", g.pgid, g.session.sid)
}

func sortByPid(ps []*Process) {
	slices.SortFunc(ps, func(a, b *Process) int {
		return cmp.Compare(a.pid, b.pid)
	})
}
