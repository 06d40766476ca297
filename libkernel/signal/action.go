package signal

import (
	"fmt"
	"sync"

	"github.com/hostkern/hostkern/libkernel/abi"
)

// Disposition is how a process has chosen to treat a signal.
type Disposition uint8

const (
	// DispositionDefault applies the signal's default action.
	DispositionDefault Disposition = iota
	// DispositionIgnore discards the signal.
	DispositionIgnore
	// DispositionHandler runs a user handler.
	DispositionHandler
)

func (d Disposition) String() string {
	switch d {
	case DispositionDefault:
		return "default"
	case DispositionIgnore:
		return "ignore"
	case DispositionHandler:
		return "handler"
	}
	return fmt.Sprintf("disposition(%d)", uint8(d))
}

// Action is struct sigaction.
type Action struct {
	Disposition Disposition
	// Handler is the user address of the handler for DispositionHandler.
	Handler uint64
	Flags   uint64
	// Mask is added to the blocked set while the handler runs.
	Mask abi.SignalSet
	// Restorer is the user address the handler returns to. Zero selects the
	// process default.
	Restorer uint64
}

// HasFlag reports whether every bit of flag is set.
func (a *Action) HasFlag(flag uint64) bool {
	return a.Flags&flag == flag
}

// Ignores reports whether delivering sig under a would be a no-op.
func (a *Action) Ignores(sig abi.Signal) bool {
	switch a.Disposition {
	case DispositionIgnore:
		return true
	case DispositionDefault:
		return sig.DefaultAction() == abi.DefaultIgnore
	}
	return false
}

// OSAction is what the kernel must do after a signal has been dequeued.
type OSAction uint8

const (
	// Terminate exits the process group.
	Terminate OSAction = iota
	// CoreDump exits the process group and records a core dump.
	CoreDump
	// Stop stops the process.
	Stop
	// Continue resumes a stopped process.
	Continue
	// Handler means a user handler frame was set up; nothing else to do.
	Handler
)

func (a OSAction) String() string {
	switch a {
	case Terminate:
		return "terminate"
	case CoreDump:
		return "core dump"
	case Stop:
		return "stop"
	case Continue:
		return "continue"
	case Handler:
		return "handler"
	}
	return fmt.Sprintf("os action(%d)", uint8(a))
}

// defaultOSAction maps a default action to the OS action, or false if the
// signal is ignored.
func defaultOSAction(sig abi.Signal) (OSAction, bool) {
	switch sig.DefaultAction() {
	case abi.DefaultTerminate:
		return Terminate, true
	case abi.DefaultCoreDump:
		return CoreDump, true
	case abi.DefaultStop:
		return Stop, true
	case abi.DefaultContinue:
		return Continue, true
	}
	return 0, false
}

// Actions is the table of signal actions of a process. Threads created with
// shared handlers point at the same table.
type Actions struct {
	mu    sync.Mutex
	table [abi.SignalMaximum]Action
}

// NewActions returns a table with every signal at its default disposition.
func NewActions() *Actions {
	return &Actions{}
}

// Get returns the action for sig.
func (a *Actions) Get(sig abi.Signal) Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table[sig.Index()]
}

// Set installs act for sig and returns the previous action. The dispositions
// of SIGKILL and SIGSTOP cannot be changed.
func (a *Actions) Set(sig abi.Signal, act Action) (Action, error) {
	if !sig.IsValid() {
		return Action{}, abi.ErrInvalidSignal
	}
	if abi.Unblockable().Has(sig) {
		return Action{}, fmt.Errorf("cannot change action of %s: %w", sig, abi.ErrInvalidSignal)
	}
	act.Mask &^= abi.Unblockable()

	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.table[sig.Index()]
	a.table[sig.Index()] = act
	return old, nil
}

// Reset restores the default disposition of sig.
func (a *Actions) Reset(sig abi.Signal) {
	a.mu.Lock()
	a.table[sig.Index()] = Action{}
	a.mu.Unlock()
}

// ResetHandlers resets every caught signal to its default disposition, as
// execve does. Ignored signals stay ignored.
func (a *Actions) ResetHandlers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.table {
		if a.table[i].Disposition == DispositionHandler {
			a.table[i] = Action{}
		}
	}
}

// Clone returns an independent copy of the table, as fork does.
func (a *Actions) Clone() *Actions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &Actions{table: a.table}
}
