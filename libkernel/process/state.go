package process

import "fmt"

// StateKind is the job-control state of a process.
type StateKind uint8

const (
	Running StateKind = iota
	Stopped
	Continued
	Zombie
)

func (k StateKind) String() string {
	switch k {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Continued:
		return "continued"
	case Zombie:
		return "zombie"
	}
	return fmt.Sprintf("state(%d)", uint8(k))
}

// State is a snapshot of the job-control state of a process.
type State struct {
	Kind StateKind
	// Signal is the stop signal when Stopped, and the terminating signal,
	// if any, when Zombie.
	Signal int32
	// Acked is set once a wait has reported a Stopped or Continued state.
	Acked bool
	// ExitCode and CoreDumped are valid when Zombie.
	ExitCode   int32
	CoreDumped bool
}

func (s State) String() string {
	switch s.Kind {
	case Stopped:
		return fmt.Sprintf("stopped(signal %d)", s.Signal)
	case Zombie:
		if s.Signal != 0 {
			return fmt.Sprintf("zombie(signal %d, core %t)", s.Signal, s.CoreDumped)
		}
		return fmt.Sprintf("zombie(exit %d)", s.ExitCode)
	}
	return s.Kind.String()
}

// State returns the current job-control state.
func (p *Process) State() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

// StopBySignal moves a running or continued process to Stopped. It returns
// false if the process is already stopped or is a zombie.
func (p *Process) StopBySignal(sig int32) bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	switch p.state.Kind {
	case Stopped, Zombie:
		return false
	}
	p.state = State{Kind: Stopped, Signal: sig}
	return true
}

// ContinueFromStop moves a stopped process to Continued. It returns false if
// the process was not stopped.
func (p *Process) ContinueFromStop() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.state.Kind != Stopped {
		return false
	}
	p.state = State{Kind: Continued}
	return true
}

// IsStopped reports whether the process is stopped.
func (p *Process) IsStopped() bool {
	return p.State().Kind == Stopped
}

// IsContinued reports whether the process was continued and no wait has
// reported it yet.
func (p *Process) IsContinued() bool {
	s := p.State()
	return s.Kind == Continued && !s.Acked
}

// StoppedUnacked reports whether the process is stopped and no wait has
// reported it yet.
func (p *Process) StoppedUnacked() bool {
	s := p.State()
	return s.Kind == Stopped && !s.Acked
}

// AckStopped records that a wait reported the stop.
func (p *Process) AckStopped() {
	p.stateMu.Lock()
	if p.state.Kind == Stopped {
		p.state.Acked = true
	}
	p.stateMu.Unlock()
}

// AckContinued records that a wait reported the continue.
func (p *Process) AckContinued() {
	p.stateMu.Lock()
	if p.state.Kind == Continued {
		p.state.Acked = true
	}
	p.stateMu.Unlock()
}

// ZombieInfo returns the termination state of a zombie.
func (p *Process) ZombieInfo() (State, bool) {
	s := p.State()
	return s, s.Kind == Zombie
}

func (p *Process) setZombieState(sig int32, coreDumped bool) {
	code := p.ExitCode()
	p.stateMu.Lock()
	p.state = State{Kind: Zombie, Signal: sig, ExitCode: code, CoreDumped: coreDumped}
	p.stateMu.Unlock()
}
