package main

import (
	"fmt"
	"strconv"

	"github.com/moby/sys/signal"
	"github.com/urfave/cli"
	"golang.org/x/sys/unix"

	"github.com/hostkern/hostkern/libkernel/abi"
)

const (
	exactArgs = iota
	minArgs
	maxArgs
)

func checkArgs(context *cli.Context, expected, checkType int) error {
	var err error
	cmdName := context.Command.Name
	switch checkType {
	case exactArgs:
		if context.NArg() != expected {
			err = fmt.Errorf("%s: %q requires exactly %d argument(s)", context.App.Name, cmdName, expected)
		}
	case minArgs:
		if context.NArg() < expected {
			err = fmt.Errorf("%s: %q requires a minimum of %d argument(s)", context.App.Name, cmdName, expected)
		}
	case maxArgs:
		if context.NArg() > expected {
			err = fmt.Errorf("%s: %q requires a maximum of %d argument(s)", context.App.Name, cmdName, expected)
		}
	}

	if err != nil {
		fmt.Printf("Incorrect Usage.\n\n")
		_ = cli.ShowCommandHelp(context, cmdName)
		return err
	}
	return nil
}

// parseSignal accepts a number, a guest signal name, or any name the host
// signal table knows.
func parseSignal(rawSignal string) (abi.Signal, error) {
	if s, err := strconv.Atoi(rawSignal); err == nil {
		return abi.ParseSignalNumber(s)
	}
	if s, ok := guestSignalByName(rawSignal); ok {
		return s, nil
	}
	host, err := signal.ParseSignal(rawSignal)
	if err != nil {
		return 0, err
	}
	if host == 0 {
		return 0, fmt.Errorf("unknown signal %q", rawSignal)
	}
	return hostToGuest(unix.Signal(host))
}

func guestSignalByName(name string) (abi.Signal, bool) {
	for s := abi.Signal(1); s <= abi.SignalMaximum; s++ {
		if n := s.String(); n == name || n == "SIG"+name {
			return s, true
		}
	}
	return 0, false
}

func hostToGuest(s unix.Signal) (abi.Signal, error) {
	sig, err := abi.ParseSignalNumber(int(s))
	if err != nil {
		return 0, fmt.Errorf("host signal %s: %w", unix.SignalName(s), err)
	}
	return sig, nil
}
