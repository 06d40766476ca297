package task

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
)

// DoStop stops thr's process because of sig and tells the parent. Threads
// suspend in TrapReturn until the process is continued or killed.
func DoStop(thr *Thread, sig abi.Signal) {
	pd := thr.proc
	logrus.Infof("process %d stopping due to %s", pd.PID(), sig)
	if pd.Proc.StopBySignal(int32(sig)) {
		pd.notifyParent(abi.CLD_STOPPED, int32(sig))
	}
	if parent := pd.Parent(); parent != nil {
		parent.childExit.Wake()
	}
}

// DoContinue resumes thr's process and tells the parent.
func DoContinue(thr *Thread) {
	thr.proc.resume()
}

func (pd *ProcessData) resume() {
	if pd.Proc.ContinueFromStop() {
		logrus.Infof("process %d continuing from stopped state", pd.PID())
		pd.notifyParent(abi.CLD_CONTINUED, int32(abi.SIGCONT))
	}
	pd.state.Wake()
	pd.childExit.Wake()
	if parent := pd.Parent(); parent != nil {
		parent.childExit.Wake()
	}
}

// notifyParent sends SIGCHLD with code unless the parent asked not to hear
// about stops and continues.
func (pd *ProcessData) notifyParent(code, status int32) {
	parent := pd.Parent()
	if parent == nil {
		return
	}
	act := parent.Signal.Actions.Get(abi.SIGCHLD)
	if act.HasFlag(abi.SA_NOCLDSTOP) {
		return
	}
	info := arch.KernelSignalInfo(abi.SIGCHLD)
	info.Code = code
	info.SetPID(pd.PID())
	info.SetStatus(status)
	pd.kernel.sendToProcess(parent, info)
}

// TrapReturn runs the signal work due before thr goes back to user space
// with uctx. Pending signals are delivered unless BlockNextSignal was
// called; a stopped process suspends here until it is continued, killed or
// ctx is done.
//
// It returns ErrThreadExited once the thread has exited and must not run
// user code again.
func (t *Thread) TrapReturn(ctx context.Context, uctx arch.Context) error {
	t.deliverSignals(uctx)

	pd := t.proc
	if !t.Exited() && pd.Proc.IsStopped() {
		logrus.Debugf("thread %d blocked (process %d stopped)", t.tid, pd.PID())
		err := pd.state.Wait(ctx, func() bool {
			return !pd.Proc.IsStopped() || t.Exited() || t.Signal.Pending().Has(abi.SIGKILL)
		})
		if err != nil {
			return err
		}
		logrus.Debugf("thread %d resumed", t.tid)
	}

	t.deliverSignals(uctx)
	t.TakeInterrupt()
	if t.Exited() {
		return ErrThreadExited
	}
	return nil
}

func (t *Thread) deliverSignals(uctx arch.Context) {
	if UnblockNextSignal() {
		return
	}
	for !t.Exited() && CheckSignals(t, uctx, nil) {
	}
}
