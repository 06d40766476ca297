package task

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
	"github.com/hostkern/hostkern/libkernel/signal"
)

var blockNextSignalCheck atomic.Bool

// BlockNextSignal makes the next signal check on the trap-return path a
// no-op.
func BlockNextSignal() {
	blockNextSignalCheck.Store(true)
}

// UnblockNextSignal clears the flag set by BlockNextSignal and reports
// whether it was set.
func UnblockNextSignal() bool {
	return blockNextSignalCheck.Swap(false)
}

// CheckSignals delivers at most one pending signal to thr and carries out
// the resulting OS action. uctx is the register context thr returns to user
// space with. restore, if not nil, is the blocked mask a handler's
// sigreturn reinstates.
//
// It returns false if no signal required action.
func CheckSignals(thr *Thread, uctx arch.Context, restore *abi.SignalSet) bool {
	info, act, ok := thr.Signal.CheckSignals(uctx, restore)
	if !ok {
		return false
	}

	sig := info.Signal()
	logrus.Debugf("thread %d: %s -> %s", thr.tid, sig, act)
	switch act {
	case signal.Terminate:
		DoExit(thr, 128+int32(sig), true, sig, false)
	case signal.CoreDump:
		// Only the flag is recorded; no core file is written.
		DoExit(thr, 128+int32(sig), true, sig, true)
	case signal.Stop:
		DoStop(thr, sig)
	case signal.Continue:
		DoContinue(thr)
	case signal.Handler:
	}
	return true
}

// RestartSyscall reports whether a blocking system call of thr that was
// interrupted by sig resumes once the signal has been dealt with. It fails
// with EINTR instead only when sig runs a handler installed without
// SA_RESTART.
func RestartSyscall(thr *Thread, sig abi.Signal) bool {
	if !sig.IsValid() {
		return false
	}
	pm := thr.proc.Signal
	if pm.Actions.Get(sig).Disposition != signal.DispositionHandler {
		return true
	}
	return pm.CanRestart(sig)
}

// WithReplacedBlocked runs f with thr's blocked mask replaced by blocked,
// as sigsuspend and pselect do. The previous mask is put back only if f
// succeeds; on error the replaced mask stays in effect so that the signal
// that interrupted f can be delivered, and it is up to the caller to pass
// the previous mask to CheckSignals as the mask to restore.
//
// A nil blocked runs f unchanged.
func WithReplacedBlocked[R any](thr *Thread, blocked *abi.SignalSet, f func() (R, error)) (R, error) {
	if blocked == nil {
		return f()
	}
	old := thr.Signal.SetBlocked(*blocked)
	r, err := f()
	if err == nil {
		thr.Signal.SetBlocked(old)
	}
	return r, err
}
