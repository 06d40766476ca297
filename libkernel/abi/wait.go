package abi

import "golang.org/x/sys/unix"

const (
	wSigMask      = 0x7f
	wStopped      = 0x7f
	wCoreFlag     = 0x80
	wContinued    = 0xffff
	wExitShift    = 8
	wExitCodeMask = 0xff
)

// WaitStatus is the status word reported by wait4 and waitpid. The guest
// uses the Linux encoding, so decoding is left to unix.WaitStatus.
type WaitStatus int32

// Exited returns the status of a process that exited normally with code.
func Exited(code int32) WaitStatus {
	return WaitStatus((code & wExitCodeMask) << wExitShift)
}

// Signaled returns the status of a process killed by sig.
func Signaled(sig Signal, coreDumped bool) WaitStatus {
	st := int32(sig) & wSigMask
	if coreDumped {
		st |= wCoreFlag
	}
	return WaitStatus(st)
}

// Stopped returns the status of a process stopped by sig.
func Stopped(sig Signal) WaitStatus {
	return WaitStatus((int32(sig)&wExitCodeMask)<<wExitShift | wStopped)
}

// Continued returns the status of a process resumed by SIGCONT.
func Continued() WaitStatus {
	return wContinued
}

// Raw returns the status word as written to user memory.
func (w WaitStatus) Raw() int32 { return int32(w) }

// Unix returns w as the host type.
func (w WaitStatus) Unix() unix.WaitStatus { return unix.WaitStatus(uint32(w)) }

func (w WaitStatus) Exited() bool    { return w.Unix().Exited() }
func (w WaitStatus) Signaled() bool  { return w.Unix().Signaled() }
func (w WaitStatus) CoreDump() bool  { return w.Unix().CoreDump() }
func (w WaitStatus) Stopped() bool   { return w.Unix().Stopped() }
func (w WaitStatus) Continued() bool { return w.Unix().Continued() }

// ExitStatus is WEXITSTATUS, or -1 if the process did not exit.
func (w WaitStatus) ExitStatus() int32 { return int32(w.Unix().ExitStatus()) }

// Signal is WTERMSIG, or 0 if the process was not killed by a signal.
func (w WaitStatus) Signal() Signal { return guestSignal(w.Unix().Signal()) }

// StopSignal is WSTOPSIG, or 0 if the process is not stopped.
func (w WaitStatus) StopSignal() Signal { return guestSignal(w.Unix().StopSignal()) }

func guestSignal(s unix.Signal) Signal {
	if s < 1 || s > SignalMaximum {
		return 0
	}
	return Signal(s)
}
