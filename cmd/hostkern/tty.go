package main

import (
	"fmt"
	"os"

	"github.com/containerd/console"
	"github.com/sirupsen/logrus"

	"github.com/hostkern/hostkern/libkernel/process"
	"github.com/hostkern/hostkern/libkernel/task"
)

// tty is the host console standing in as the controlling terminal of the
// init session.
type tty struct {
	console console.Console
	session *process.Session
}

func setupTerminal(init *task.Thread) (*tty, error) {
	c, err := console.ConsoleFromFile(os.Stdin)
	if err != nil {
		return nil, err
	}
	session := init.Process().Proc.Group().Session()
	if !session.SetTerminalWith(func() any { return c }) {
		return nil, fmt.Errorf("session %d already has a terminal", session.SID())
	}
	logrus.Debugf("attached %s as the terminal of session %d", c.Name(), session.SID())
	return &tty{console: c, session: session}, nil
}

func (t *tty) String() string {
	size, err := t.console.Size()
	if err != nil {
		return t.console.Name()
	}
	return fmt.Sprintf("%s (%dx%d)", t.console.Name(), size.Width, size.Height)
}

// Close detaches the console from the session. Stdin itself stays open.
func (t *tty) Close() error {
	if !t.session.UnsetTerminal(t.console) {
		return fmt.Errorf("session %d: terminal already replaced", t.session.SID())
	}
	return nil
}
