// Package abi holds the Linux ABI definitions shared by the kernel core:
// signal numbers, signal sets, sigaction flags and wait status encoding.
package abi

import (
	"errors"
	"strconv"
)

// ErrInvalidSignal is returned when a signal number is outside 1..SignalMaximum.
var ErrInvalidSignal = errors.New("invalid signal number")

// Signal is a signal number.
type Signal uint8

const (
	SIGHUP    Signal = 1
	SIGINT    Signal = 2
	SIGQUIT   Signal = 3
	SIGILL    Signal = 4
	SIGTRAP   Signal = 5
	SIGABRT   Signal = 6
	SIGBUS    Signal = 7
	SIGFPE    Signal = 8
	SIGKILL   Signal = 9
	SIGUSR1   Signal = 10
	SIGSEGV   Signal = 11
	SIGUSR2   Signal = 12
	SIGPIPE   Signal = 13
	SIGALRM   Signal = 14
	SIGTERM   Signal = 15
	SIGSTKFLT Signal = 16
	SIGCHLD   Signal = 17
	SIGCONT   Signal = 18
	SIGSTOP   Signal = 19
	SIGTSTP   Signal = 20
	SIGTTIN   Signal = 21
	SIGTTOU   Signal = 22
	SIGURG    Signal = 23
	SIGXCPU   Signal = 24
	SIGXFSZ   Signal = 25
	SIGVTALRM Signal = 26
	SIGPROF   Signal = 27
	SIGWINCH  Signal = 28
	SIGIO     Signal = 29
	SIGPWR    Signal = 30
	SIGSYS    Signal = 31

	// SIGRTMIN is the first real-time signal.
	SIGRTMIN Signal = 32
	// SIGRTMAX is the last real-time signal.
	SIGRTMAX Signal = 64

	// SignalMaximum is the highest valid signal number.
	SignalMaximum = 64
)

var signalNames = [...]string{
	SIGHUP:    "SIGHUP",
	SIGINT:    "SIGINT",
	SIGQUIT:   "SIGQUIT",
	SIGILL:    "SIGILL",
	SIGTRAP:   "SIGTRAP",
	SIGABRT:   "SIGABRT",
	SIGBUS:    "SIGBUS",
	SIGFPE:    "SIGFPE",
	SIGKILL:   "SIGKILL",
	SIGUSR1:   "SIGUSR1",
	SIGSEGV:   "SIGSEGV",
	SIGUSR2:   "SIGUSR2",
	SIGPIPE:   "SIGPIPE",
	SIGALRM:   "SIGALRM",
	SIGTERM:   "SIGTERM",
	SIGSTKFLT: "SIGSTKFLT",
	SIGCHLD:   "SIGCHLD",
	SIGCONT:   "SIGCONT",
	SIGSTOP:   "SIGSTOP",
	SIGTSTP:   "SIGTSTP",
	SIGTTIN:   "SIGTTIN",
	SIGTTOU:   "SIGTTOU",
	SIGURG:    "SIGURG",
	SIGXCPU:   "SIGXCPU",
	SIGXFSZ:   "SIGXFSZ",
	SIGVTALRM: "SIGVTALRM",
	SIGPROF:   "SIGPROF",
	SIGWINCH:  "SIGWINCH",
	SIGIO:     "SIGIO",
	SIGPWR:    "SIGPWR",
	SIGSYS:    "SIGSYS",
}

// ParseSignalNumber validates a raw signal number.
func ParseSignalNumber(n int) (Signal, error) {
	if n < 1 || n > SignalMaximum {
		return 0, ErrInvalidSignal
	}
	return Signal(n), nil
}

// IsValid returns true if s is in 1..SignalMaximum.
func (s Signal) IsValid() bool {
	return s >= 1 && s <= SignalMaximum
}

// IsStandard returns true if s is a standard (non-queued) signal.
func (s Signal) IsStandard() bool {
	return s >= 1 && s < SIGRTMIN
}

// IsRealtime returns true if s is a real-time signal. Real-time signals are
// queued: every instance sent is delivered.
func (s Signal) IsRealtime() bool {
	return s >= SIGRTMIN && s <= SIGRTMAX
}

// Index returns the zero-based index of s, used for per-signal tables.
func (s Signal) Index() int {
	return int(s) - 1
}

func (s Signal) String() string {
	if s.IsStandard() {
		return signalNames[s]
	}
	if s == SIGRTMIN {
		return "SIGRTMIN"
	}
	if s.IsRealtime() {
		return "SIGRTMIN+" + strconv.Itoa(int(s-SIGRTMIN))
	}
	return "signal " + strconv.Itoa(int(s))
}

// DefaultAction is what happens when a signal is delivered with the SIG_DFL
// disposition.
type DefaultAction uint8

const (
	// DefaultTerminate terminates the process.
	DefaultTerminate DefaultAction = iota
	// DefaultIgnore discards the signal.
	DefaultIgnore
	// DefaultCoreDump terminates the process and records a core dump.
	DefaultCoreDump
	// DefaultStop stops the process.
	DefaultStop
	// DefaultContinue continues the process if stopped.
	DefaultContinue
)

func (a DefaultAction) String() string {
	switch a {
	case DefaultTerminate:
		return "terminate"
	case DefaultIgnore:
		return "ignore"
	case DefaultCoreDump:
		return "core"
	case DefaultStop:
		return "stop"
	case DefaultContinue:
		return "continue"
	}
	return "unknown"
}

// DefaultAction returns the default action of s, as listed in signal(7).
// Real-time signals and unknown numbers are ignored.
func (s Signal) DefaultAction() DefaultAction {
	switch s {
	case SIGQUIT, SIGILL, SIGTRAP, SIGABRT, SIGBUS, SIGFPE, SIGSEGV,
		SIGXCPU, SIGXFSZ, SIGSYS:
		return DefaultCoreDump
	case SIGCHLD, SIGURG, SIGWINCH:
		return DefaultIgnore
	case SIGCONT:
		return DefaultContinue
	case SIGSTOP, SIGTSTP, SIGTTIN, SIGTTOU:
		return DefaultStop
	}
	if s.IsStandard() {
		return DefaultTerminate
	}
	return DefaultIgnore
}

// IsStopSignal returns true for the job-control stop signals.
func (s Signal) IsStopSignal() bool {
	return s.DefaultAction() == DefaultStop
}

// Unblockable returns the signals that can never be blocked or caught.
func Unblockable() SignalSet {
	return SignalSetOf(SIGKILL, SIGSTOP)
}
