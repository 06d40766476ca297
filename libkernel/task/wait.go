package task

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/process"
)

// WaitSelector chooses which children a wait considers.
type WaitSelector struct {
	kind waitKind
	id   Pid
}

type waitKind uint8

const (
	waitAny waitKind = iota
	waitPid
	waitPgid
)

// WaitAny selects every child.
func WaitAny() WaitSelector { return WaitSelector{kind: waitAny} }

// WaitPid selects the child with the given pid.
func WaitPid(pid Pid) WaitSelector { return WaitSelector{kind: waitPid, id: pid} }

// WaitPgid selects the children in process group pgid.
func WaitPgid(pgid Pid) WaitSelector { return WaitSelector{kind: waitPgid, id: pgid} }

// ParseWaitSelector interprets the pid argument of waitpid for the calling
// process: -1 is any child, 0 is the caller's group, a negative value is
// the group -pid.
func ParseWaitSelector(pid int32, caller *ProcessData) WaitSelector {
	switch {
	case pid == -1:
		return WaitAny()
	case pid == 0:
		return WaitPgid(caller.Proc.Group().PGID())
	case pid > 0:
		return WaitPid(Pid(pid))
	}
	return WaitPgid(Pid(-pid))
}

func (s WaitSelector) matches(p *process.Process) bool {
	switch s.kind {
	case waitPid:
		return p.PID() == s.id
	case waitPgid:
		return p.Group().PGID() == s.id
	}
	return true
}

func (s WaitSelector) String() string {
	switch s.kind {
	case waitPid:
		return fmt.Sprintf("pid %d", s.id)
	case waitPgid:
		return fmt.Sprintf("pgid %d", s.id)
	}
	return "any"
}

const validWaitOptions = abi.WNOHANG | abi.WUNTRACED | abi.WEXITED | abi.WCONTINUED | abi.WNOWAIT

// WaitChild makes one pass over the children of parent selected by sel and
// reports the first state change: a continue (with WCONTINUED), an
// unreported stop (with WUNTRACED), or an exit. A zombie is reaped unless
// WNOWAIT is given.
//
// It returns pid 0 if no child is ready; the caller decides whether to
// block. ErrNoChild is returned if no child matches sel.
func (k *Kernel) WaitChild(parent *ProcessData, sel WaitSelector, options int) (Pid, abi.WaitStatus, error) {
	if options&^validWaitOptions != 0 {
		return 0, 0, ErrInvalidWait
	}

	var children []*process.Process
	for _, c := range parent.Proc.Children() {
		if sel.matches(c) {
			children = append(children, c)
		}
	}
	if len(children) == 0 {
		return 0, 0, fmt.Errorf("wait for %s: %w", sel, ErrNoChild)
	}

	if options&abi.WCONTINUED != 0 {
		for _, c := range children {
			if c.IsContinued() {
				c.AckContinued()
				return c.PID(), abi.Continued(), nil
			}
		}
	}

	if options&abi.WUNTRACED != 0 {
		for _, c := range children {
			if c.StoppedUnacked() {
				s := c.State()
				c.AckStopped()
				return c.PID(), abi.Stopped(abi.Signal(s.Signal)), nil
			}
		}
	}

	for _, c := range children {
		s, ok := c.ZombieInfo()
		if !ok {
			continue
		}
		if options&abi.WNOWAIT == 0 {
			if pd, err := k.Process(c.PID()); err == nil {
				k.reap(pd)
			} else {
				c.Free()
			}
		}
		status := abi.Exited(s.ExitCode)
		if s.Signal != 0 {
			status = abi.Signaled(abi.Signal(s.Signal), s.CoreDumped)
		}
		logrus.Debugf("process %d reported %s to %d", c.PID(), s, parent.PID())
		return c.PID(), status, nil
	}
	return 0, 0, nil
}

// Wait is WaitChild that blocks until a child is ready, unless WNOHANG is
// given.
func (k *Kernel) Wait(ctx context.Context, parent *ProcessData, sel WaitSelector, options int) (Pid, abi.WaitStatus, error) {
	var (
		pid    Pid
		status abi.WaitStatus
		werr   error
	)
	err := parent.childExit.Wait(ctx, func() bool {
		pid, status, werr = k.WaitChild(parent, sel, options)
		return werr != nil || pid != 0 || options&abi.WNOHANG != 0
	})
	if err != nil {
		return 0, 0, err
	}
	return pid, status, werr
}
