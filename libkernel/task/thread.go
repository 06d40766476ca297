package task

import (
	"sync/atomic"

	"github.com/hostkern/hostkern/internal/event"
	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/process"
	"github.com/hostkern/hostkern/libkernel/signal"
)

// ProcessData is the kernel state of a process.
type ProcessData struct {
	Proc   *process.Process
	Signal *signal.ProcessManager

	// ExitSignal is sent to the parent when the process exits. Zero sends
	// nothing.
	ExitSignal abi.Signal

	// childExit is woken whenever a child changes state.
	childExit event.Event
	// exit is woken when the process becomes a zombie.
	exit event.Event
	// state is woken on continue, kill and thread interrupts.
	state event.Event

	groupSignal atomic.Int32
	groupCore   atomic.Bool

	kernel *Kernel
}

// PID returns the process id.
func (pd *ProcessData) PID() Pid {
	return pd.Proc.PID()
}

// Parent returns the parent's data, or nil if there is none.
func (pd *ProcessData) Parent() *ProcessData {
	parent := pd.Proc.Parent()
	if parent == nil {
		return nil
	}
	ppd, err := pd.kernel.Process(parent.PID())
	if err != nil {
		return nil
	}
	return ppd
}

// Thread is a kernel task running user code.
type Thread struct {
	tid  Pid
	proc *ProcessData

	Signal *signal.ThreadManager

	exited      atomic.Bool
	interrupted atomic.Bool
}

// TID returns the thread id.
func (t *Thread) TID() Pid {
	return t.tid
}

// Process returns the process the thread belongs to.
func (t *Thread) Process() *ProcessData {
	return t.proc
}

// Kernel returns the kernel the thread runs in.
func (t *Thread) Kernel() *Kernel {
	return t.proc.kernel
}

// Exited reports whether the thread has exited.
func (t *Thread) Exited() bool {
	return t.exited.Load()
}

// Interrupt wakes the thread if it is blocked so that it notices a new
// signal.
func (t *Thread) Interrupt() {
	t.interrupted.Store(true)
	t.proc.state.Wake()
}

// TakeInterrupt reports and clears a pending interrupt.
func (t *Thread) TakeInterrupt() bool {
	return t.interrupted.Swap(false)
}

func (t *Thread) setExited() {
	if t.exited.Swap(true) {
		return
	}
	t.Signal.Detach()
	t.proc.kernel.removeThread(t)
	t.proc.state.Wake()
}
