package task

import (
	"github.com/sirupsen/logrus"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
)

// DoExit terminates thr. If it is the last thread the process becomes a
// zombie and its parent is notified. With groupExit every other thread of
// the process is killed, and the first exit code recorded is kept.
//
// sig and coreDumped describe a death by signal; sig is zero for a normal
// exit.
func DoExit(thr *Thread, code int32, groupExit bool, sig abi.Signal, coreDumped bool) {
	pd := thr.proc
	proc := pd.Proc
	k := pd.kernel

	logrus.WithFields(logrus.Fields{
		"pid":    proc.PID(),
		"tid":    thr.tid,
		"code":   code,
		"signal": sig,
		"core":   coreDumped,
	}).Info("exit")

	if proc.ExitThread(thr.tid, code) {
		if s := abi.Signal(pd.groupSignal.Load()); s != 0 {
			sig, coreDumped = s, pd.groupCore.Load()
		}
		if sig != 0 {
			proc.ExitWithSignal(int32(sig), coreDumped)
		} else {
			proc.Exit()
		}
		if parent := pd.Parent(); parent != nil {
			if pd.ExitSignal != 0 {
				k.sendToProcess(parent, childSignalInfo(pd, sig, coreDumped))
			}
			parent.childExit.Wake()
		}
		pd.exit.Wake()
	}

	if groupExit && !proc.IsGroupExited() {
		if sig != 0 {
			pd.groupCore.Store(coreDumped)
			pd.groupSignal.Store(int32(sig))
		}
		proc.GroupExit()
		for _, tid := range proc.Threads() {
			if tid == thr.tid {
				continue
			}
			if err := k.SendSignalToThread(tid, arch.KernelSignalInfo(abi.SIGKILL)); err != nil {
				logrus.Debugf("group exit of %d: %v", proc.PID(), err)
			}
		}
	}
	thr.setExited()
}

func childSignalInfo(pd *ProcessData, sig abi.Signal, coreDumped bool) arch.SignalInfo {
	info := arch.KernelSignalInfo(pd.ExitSignal)
	info.SetPID(pd.PID())
	switch {
	case sig == 0:
		info.Code = abi.CLD_EXITED
		info.SetStatus(pd.Proc.ExitCode() & 0xff)
	case coreDumped:
		info.Code = abi.CLD_DUMPED
		info.SetStatus(int32(sig))
	default:
		info.Code = abi.CLD_KILLED
		info.SetStatus(int32(sig))
	}
	return info
}

// RaiseSignalFatal sends a synchronous fault signal to thr's process. If no
// thread can take it, the process exits at once.
func RaiseSignalFatal(thr *Thread, info arch.SignalInfo) {
	pd := thr.proc
	sig := info.Signal()
	logrus.Infof("fatal signal %s for process %d", sig, pd.PID())

	if tid, ok := pd.Signal.SendSignal(info); ok {
		if t, err := pd.kernel.Thread(tid); err == nil {
			t.Interrupt()
			return
		}
	}
	DoExit(thr, 128+int32(sig), true, 0, false)
}

// HandleFault raises SIGSEGV for a user access to addr that could not be
// resolved.
func HandleFault(thr *Thread, addr uint64, accessDenied bool) {
	code := int32(abi.SEGV_MAPERR)
	if accessDenied {
		code = abi.SEGV_ACCERR
	}
	RaiseSignalFatal(thr, arch.FaultSignalInfo(abi.SIGSEGV, code, addr))
}
