package process

import (
	"fmt"
	"sync"

	"github.com/hostkern/hostkern/internal/weakmap"
)

// Session is a set of process groups sharing a controlling terminal.
type Session struct {
	sid Pid

	mu     sync.Mutex
	groups *weakmap.Map[Pid, ProcessGroup]

	termMu   sync.Mutex
	terminal any
}

func newSession(sid Pid) *Session {
	return &Session{
		sid:    sid,
		groups: weakmap.New[Pid, ProcessGroup](),
	}
}

// SID returns the session id.
func (s *Session) SID() Pid {
	return s.sid
}

// ProcessGroups returns the live groups of the session ordered by pgid.
func (s *Session) ProcessGroups() []*ProcessGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups.Values()
}

func (s *Session) add(g *ProcessGroup) {
	s.mu.Lock()
	s.groups.Insert(g.pgid, g)
	s.mu.Unlock()
}

// SetTerminalWith installs the terminal returned by newTerminal as the
// controlling terminal. newTerminal is not called, and false is returned, if
// the session already has one.
//
// Terminals are compared by identity, so the handle must be comparable;
// pointers are the usual choice.
func (s *Session) SetTerminalWith(newTerminal func() any) bool {
	s.termMu.Lock()
	defer s.termMu.Unlock()
	if s.terminal != nil {
		return false
	}
	s.terminal = newTerminal()
	return s.terminal != nil
}

// UnsetTerminal releases the controlling terminal if it is term.
func (s *Session) UnsetTerminal(term any) bool {
	s.termMu.Lock()
	defer s.termMu.Unlock()
	if s.terminal == nil || s.terminal != term {
		return false
	}
	s.terminal = nil
	return true
}

// Terminal returns the controlling terminal, if any.
func (s *Session) Terminal() (any, bool) {
	s.termMu.Lock()
	defer s.termMu.Unlock()
	return s.terminal, s.terminal != nil
}

func (s *Session) String() string {
	return fmt.Sprintf("Session(%d)", s.sid)
}
