// Package task ties the process hierarchy and signal state together into
// kernel tasks, and implements what happens on the way back to user space:
// signal delivery, job-control stop and continue, and exit.
package task

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
	"github.com/hostkern/hostkern/libkernel/process"
	"github.com/hostkern/hostkern/libkernel/signal"
	"github.com/hostkern/hostkern/libkernel/vm"
)

// Pid is a process or thread id.
type Pid = process.Pid

// DefaultMaxPid matches the default kernel.pid_max.
const DefaultMaxPid = 32768

// Config configures a Kernel.
type Config struct {
	// Arch is the user ABI of new register contexts.
	Arch arch.Arch
	// DefaultRestorer is the address handlers return to when their action
	// has no restorer of its own.
	DefaultRestorer uint64
	// MaxPid is the largest pid handed out.
	MaxPid Pid
}

// DefaultConfig returns a configuration for the host architecture.
func DefaultConfig() Config {
	a, err := arch.ParseArch(runtime.GOARCH)
	if err != nil {
		a = arch.AMD64
	}
	return Config{Arch: a, MaxPid: DefaultMaxPid}
}

// Kernel holds the process and thread tables.
type Kernel struct {
	cfg  Config
	pids *process.PidAllocator

	mu      sync.RWMutex
	threads map[Pid]*Thread
	procs   map[Pid]*ProcessData
}

// NewKernel returns an empty kernel.
func NewKernel(cfg Config) *Kernel {
	if cfg.MaxPid == 0 {
		cfg.MaxPid = DefaultMaxPid
	}
	return &Kernel{
		cfg:     cfg,
		pids:    process.NewPidAllocator(cfg.MaxPid),
		threads: make(map[Pid]*Thread),
		procs:   make(map[Pid]*ProcessData),
	}
}

// Config returns the kernel configuration.
func (k *Kernel) Config() Config {
	return k.cfg
}

// NewUserContext returns a register context that starts executing at entry
// with the given stack pointer.
func (k *Kernel) NewUserContext(entry, sp uint64) arch.Context {
	ctx := arch.NewContext(k.cfg.Arch)
	ctx.SetIP(entry)
	ctx.SetSP(sp)
	return ctx
}

// Boot creates the init process with its main thread. mem is its user
// address space.
func (k *Kernel) Boot(mem vm.IO) (*Thread, error) {
	pid, err := k.pids.Alloc()
	if err != nil {
		return nil, err
	}
	proc := process.NewInit(pid)
	pd := k.newProcessData(proc, signal.NewActions(), mem)
	thr := k.newThread(pid, pd)
	logrus.Debugf("booted init process %d", pid)
	return thr, nil
}

// Fork creates a child process of thr's process whose address space is mem.
// Signal actions are copied; pending signals and the alternate stack are
// not. The new main thread inherits thr's blocked mask.
func (k *Kernel) Fork(thr *Thread, mem vm.IO) (*Thread, error) {
	pid, err := k.pids.Alloc()
	if err != nil {
		return nil, err
	}
	parent := thr.proc
	proc := parent.Proc.Fork(pid)
	pd := k.newProcessData(proc, parent.Signal.Actions.Clone(), mem)
	child := k.newThread(pid, pd)
	child.Signal.SetBlocked(thr.Signal.Blocked())
	logrus.Debugf("process %d forked %d", parent.PID(), pid)
	return child, nil
}

// Clone creates a new thread in thr's process. It shares the process's
// signal actions and pending queue.
func (k *Kernel) Clone(thr *Thread) (*Thread, error) {
	tid, err := k.pids.Alloc()
	if err != nil {
		return nil, err
	}
	t := k.newThread(tid, thr.proc)
	t.Signal.SetBlocked(thr.Signal.Blocked())
	return t, nil
}

// Exec resets the signal state of thr's process for a new program image.
// Handled signals revert to their default action, ignored ones stay
// ignored, and the alternate stack is disabled. The blocked mask and
// pending signals are kept. thr must be the only thread of its process.
func (k *Kernel) Exec(thr *Thread) error {
	proc := thr.proc.Proc
	if n := len(proc.Threads()); n != 1 {
		return fmt.Errorf("exec in process %d with %d threads: %w", proc.PID(), n, ErrOtherThreads)
	}
	thr.proc.Signal.Actions.ResetHandlers()
	thr.Signal.SetStack(arch.DisabledSignalStack())
	logrus.Debugf("process %d exec", proc.PID())
	return nil
}

func (k *Kernel) newProcessData(proc *process.Process, actions *signal.Actions, mem vm.IO) *ProcessData {
	pd := &ProcessData{
		Proc:       proc,
		Signal:     signal.NewProcessManager(actions, mem, k.cfg.DefaultRestorer),
		ExitSignal: abi.SIGCHLD,
		kernel:     k,
	}
	k.mu.Lock()
	k.procs[proc.PID()] = pd
	k.mu.Unlock()
	return pd
}

func (k *Kernel) newThread(tid Pid, pd *ProcessData) *Thread {
	t := &Thread{
		tid:    tid,
		proc:   pd,
		Signal: signal.NewThreadManager(tid, pd.Signal),
	}
	pd.Proc.AddThread(tid)
	k.mu.Lock()
	k.threads[tid] = t
	k.mu.Unlock()
	return t
}

// Thread looks up a live thread.
func (k *Kernel) Thread(tid Pid) (*Thread, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.threads[tid]
	if !ok {
		return nil, fmt.Errorf("thread %d: %w", tid, ErrNoSuchProcess)
	}
	return t, nil
}

// Process looks up a process that has not been reaped.
func (k *Kernel) Process(pid Pid) (*ProcessData, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pd, ok := k.procs[pid]
	if !ok {
		return nil, fmt.Errorf("process %d: %w", pid, ErrNoSuchProcess)
	}
	return pd, nil
}

// Processes returns every process that has not been reaped, ordered by pid.
func (k *Kernel) Processes() []*ProcessData {
	k.mu.RLock()
	out := make([]*ProcessData, 0, len(k.procs))
	for _, pd := range k.procs {
		out = append(out, pd)
	}
	k.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PID() < out[j].PID() })
	return out
}

func (k *Kernel) removeThread(t *Thread) {
	k.mu.Lock()
	delete(k.threads, t.tid)
	k.mu.Unlock()
	if t.tid != t.proc.PID() {
		k.pids.Release(t.tid)
	}
}

// reap frees a zombie and releases its pid.
func (k *Kernel) reap(pd *ProcessData) {
	pd.Proc.Free()
	k.mu.Lock()
	delete(k.procs, pd.PID())
	k.mu.Unlock()
	k.pids.Release(pd.PID())
	logrus.Debugf("reaped process %d", pd.PID())
}
