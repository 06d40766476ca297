package signal

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
)

// ThreadManager holds the signal state of one thread.
type ThreadManager struct {
	tid  uint32
	proc *ProcessManager

	mu      sync.Mutex
	pending PendingSignals
	blocked abi.SignalSet
	stack   arch.SignalStack

	possiblyHasSignal atomic.Bool
}

// NewThreadManager returns the signal state of thread tid and registers it
// with proc.
func NewThreadManager(tid uint32, proc *ProcessManager) *ThreadManager {
	t := &ThreadManager{
		tid:   tid,
		proc:  proc,
		stack: arch.DisabledSignalStack(),
	}
	proc.addThread(tid, t)
	return t
}

// Process returns the process-wide signal state.
func (t *ThreadManager) Process() *ProcessManager {
	return t.proc
}

// Detach unregisters the thread from its process.
func (t *ThreadManager) Detach() {
	t.proc.removeThread(t.tid)
}

func (t *ThreadManager) dequeueSignal(blocked abi.SignalSet) (arch.SignalInfo, bool) {
	t.mu.Lock()
	info, ok := t.pending.DequeueSignal(blocked)
	if !ok {
		t.possiblyHasSignal.Store(false)
	}
	t.mu.Unlock()
	if ok {
		return info, true
	}
	return t.proc.dequeueSignal(blocked)
}

// HandleSignal resolves the delivery of info under act. For a user handler it
// pushes a signal frame onto the user stack and redirects uctx to the
// handler; restore is the mask sigreturn will reinstate. It returns false if
// the signal is ignored.
func (t *ThreadManager) HandleSignal(uctx arch.Context, restore abi.SignalSet, info *arch.SignalInfo, act *Action) (OSAction, bool) {
	sig := info.Signal()
	logrus.Debugf("handle signal %s on thread %d", sig, t.tid)

	switch act.Disposition {
	case DispositionIgnore:
		return 0, false
	case DispositionDefault:
		return defaultOSAction(sig)
	}

	if err := t.enterHandler(uctx, restore, info, act); err != nil {
		logrus.WithFields(logrus.Fields{
			"tid":    t.tid,
			"signal": sig,
		}).Warnf("cannot deliver signal to handler: %v", err)
		return CoreDump, true
	}

	add := act.Mask
	if !act.HasFlag(abi.SA_NODEFER) {
		add.Add(sig)
	}
	if act.HasFlag(abi.SA_RESETHAND) {
		t.proc.Actions.Reset(sig)
	}
	t.mu.Lock()
	t.blocked |= add &^ abi.Unblockable()
	t.mu.Unlock()
	return Handler, true
}

func (t *ThreadManager) enterHandler(uctx arch.Context, restore abi.SignalSet, info *arch.SignalInfo, act *Action) error {
	a := uctx.Arch()
	mem := t.proc.mem

	t.mu.Lock()
	stack := t.stack
	t.mu.Unlock()

	sp := uctx.SP()
	if act.HasFlag(abi.SA_ONSTACK) && !stack.Disabled() && !stack.Contains(sp) {
		sp = stack.Top()
	}
	frameSize := arch.FrameSize(a)
	if sp < frameSize {
		return fmt.Errorf("stack pointer %#x too low for signal frame", sp)
	}
	frameAddr := (sp - frameSize) &^ (arch.FrameAlign - 1)

	uc := arch.NewUContext(uctx, restore)
	uc.Stack = stack
	frame := &arch.Frame{Arch: a, UContext: uc, Info: *info, Saved: uctx.Clone()}
	if err := arch.WriteFrame(mem, frameAddr, frame); err != nil {
		return fmt.Errorf("write signal frame: %w", err)
	}

	uctx.SetIP(act.Handler)
	uctx.SetSP(frameAddr)
	uctx.SetArg(0, uint64(info.Signal()))
	uctx.SetArg(1, frameAddr+arch.InfoOffset(a))
	uctx.SetArg(2, frameAddr+arch.UContextOffset(a))

	restorer := act.Restorer
	if restorer == 0 {
		restorer = t.proc.defaultRestorer
	}
	if err := uctx.SetReturnAddress(mem, restorer); err != nil {
		return fmt.Errorf("set handler return address: %w", err)
	}
	return nil
}

// CheckSignals dequeues pending signals until one requires action. Ignored
// signals are consumed along the way. restore, if not nil, is the mask a
// handler's sigreturn reinstates instead of the current one.
func (t *ThreadManager) CheckSignals(uctx arch.Context, restore *abi.SignalSet) (arch.SignalInfo, OSAction, bool) {
	if !t.possiblyHasSignal.Load() && !t.proc.possiblyHasSignal.Load() {
		return arch.SignalInfo{}, 0, false
	}

	t.mu.Lock()
	blocked := t.blocked
	t.mu.Unlock()
	saved := blocked
	if restore != nil {
		saved = *restore
	}

	for {
		info, ok := t.dequeueSignal(blocked)
		if !ok {
			return arch.SignalInfo{}, 0, false
		}
		act := t.proc.Actions.Get(info.Signal())
		if osAction, ok := t.HandleSignal(uctx, saved, &info, &act); ok {
			return info, osAction, true
		}
	}
}

// ErrNoSignalFrame is returned by Restore when the stack pointer does not
// address a readable signal frame.
var ErrNoSignalFrame = errors.New("no signal frame on user stack")

// Restore unwinds the signal frame at the stack pointer of uctx, as
// sigreturn does: the registers and blocked mask in effect before the
// handler ran are reinstated.
func (t *ThreadManager) Restore(uctx arch.Context) error {
	frame, err := arch.ReadFrame(t.proc.mem, uctx.Arch(), uctx.SP())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoSignalFrame, err)
	}
	arch.Load(uctx, frame.Saved)
	frame.UContext.MContext.Restore(uctx)

	t.mu.Lock()
	t.blocked = frame.UContext.Sigmask &^ abi.Unblockable()
	t.mu.Unlock()
	t.possiblyHasSignal.Store(true)
	return nil
}

// SendSignal queues info on the thread. It returns true if the thread should
// be woken: the signal is valid and neither ignored nor blocked.
func (t *ThreadManager) SendSignal(info arch.SignalInfo) bool {
	sig := info.Signal()
	if !sig.IsValid() || t.proc.SignalIgnored(sig) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending.PutSignal(info) {
		t.possiblyHasSignal.Store(true)
	}
	return !t.blocked.Has(sig)
}

// Blocked returns the blocked signal mask.
func (t *ThreadManager) Blocked() abi.SignalSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked
}

// SetBlocked replaces the blocked mask and returns the old one. SIGKILL and
// SIGSTOP are never blocked.
func (t *ThreadManager) SetBlocked(set abi.SignalSet) abi.SignalSet {
	set &^= abi.Unblockable()
	t.possiblyHasSignal.Store(true)
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.blocked
	t.blocked = set
	return old
}

// SignalBlocked reports whether sig is blocked.
func (t *ThreadManager) SignalBlocked(sig abi.Signal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked.Has(sig)
}

// Stack returns the alternate signal stack.
func (t *ThreadManager) Stack() arch.SignalStack {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stack
}

// SetStack replaces the alternate signal stack.
func (t *ThreadManager) SetStack(stack arch.SignalStack) {
	t.mu.Lock()
	t.stack = stack
	t.mu.Unlock()
}

// Pending returns the signals pending on the thread or its process.
func (t *ThreadManager) Pending() abi.SignalSet {
	t.mu.Lock()
	set := t.pending.Set()
	t.mu.Unlock()
	return set | t.proc.Pending()
}

// TID returns the thread id.
func (t *ThreadManager) TID() uint32 {
	return t.tid
}
