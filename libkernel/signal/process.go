// Package signal implements POSIX signal state: the pending queues, the
// action table, and the per-process and per-thread managers that decide
// which signal to deliver next and set up user handler frames.
package signal

import (
	"sync"
	"sync/atomic"

	"github.com/hostkern/hostkern/internal/weakmap"
	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
	"github.com/hostkern/hostkern/libkernel/vm"
)

// ProcessManager holds the signal state shared by every thread of a process.
type ProcessManager struct {
	mu      sync.Mutex
	pending PendingSignals

	// Actions may be shared with other processes.
	Actions *Actions

	mem             vm.IO
	defaultRestorer uint64

	threadsMu sync.Mutex
	threads   *weakmap.Map[uint32, ThreadManager]

	possiblyHasSignal atomic.Bool
}

// NewProcessManager returns the signal state of a process whose user memory
// is mem. Handlers without their own restorer return to defaultRestorer.
func NewProcessManager(actions *Actions, mem vm.IO, defaultRestorer uint64) *ProcessManager {
	return &ProcessManager{
		Actions:         actions,
		mem:             mem,
		defaultRestorer: defaultRestorer,
		threads:         weakmap.New[uint32, ThreadManager](),
	}
}

// Memory returns the user memory signal frames are written to.
func (p *ProcessManager) Memory() vm.IO {
	return p.mem
}

func (p *ProcessManager) addThread(tid uint32, t *ThreadManager) {
	p.threadsMu.Lock()
	p.threads.Insert(tid, t)
	p.threadsMu.Unlock()
}

func (p *ProcessManager) removeThread(tid uint32) {
	p.threadsMu.Lock()
	p.threads.Remove(tid)
	p.threadsMu.Unlock()
}

func (p *ProcessManager) dequeueSignal(blocked abi.SignalSet) (arch.SignalInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.pending.DequeueSignal(blocked)
	if p.pending.Set().IsEmpty() {
		p.possiblyHasSignal.Store(false)
	}
	return info, ok
}

// SignalIgnored reports whether sig would be discarded on delivery.
func (p *ProcessManager) SignalIgnored(sig abi.Signal) bool {
	act := p.Actions.Get(sig)
	return act.Ignores(sig)
}

// CanRestart reports whether a system call interrupted by sig is restarted.
func (p *ProcessManager) CanRestart(sig abi.Signal) bool {
	act := p.Actions.Get(sig)
	return act.HasFlag(abi.SA_RESTART)
}

// SendSignal queues info on the process. It returns the id of a thread that
// does not block the signal and should be woken. It returns false if the
// signal is invalid or ignored, or if every thread blocks it.
func (p *ProcessManager) SendSignal(info arch.SignalInfo) (uint32, bool) {
	sig := info.Signal()
	if !sig.IsValid() || p.SignalIgnored(sig) {
		return 0, false
	}

	p.mu.Lock()
	if p.pending.PutSignal(info) {
		p.possiblyHasSignal.Store(true)
	}
	p.mu.Unlock()

	p.threadsMu.Lock()
	defer p.threadsMu.Unlock()
	for _, t := range p.threads.Values() {
		if !t.SignalBlocked(sig) {
			return t.tid, true
		}
	}
	return 0, false
}

// Discard drops every instance of sig pending on the process and its threads.
func (p *ProcessManager) Discard(sig abi.Signal) {
	p.mu.Lock()
	p.pending.Discard(sig)
	p.mu.Unlock()

	p.threadsMu.Lock()
	threads := p.threads.Values()
	p.threadsMu.Unlock()
	for _, t := range threads {
		t.mu.Lock()
		t.pending.Discard(sig)
		t.mu.Unlock()
	}
}

// Pending returns the signals pending on the process.
func (p *ProcessManager) Pending() abi.SignalSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Set()
}

// Threads returns the live thread managers ordered by thread id.
func (p *ProcessManager) Threads() []*ThreadManager {
	p.threadsMu.Lock()
	defer p.threadsMu.Unlock()
	return p.threads.Values()
}
