package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
	"github.com/hostkern/hostkern/libkernel/signal"
	"github.com/hostkern/hostkern/libkernel/task"
	"github.com/hostkern/hostkern/libkernel/utils"
	"github.com/hostkern/hostkern/libkernel/vm"
)

// Guest layout of a simulated process. Nothing executes at the code
// addresses; they only need to be recognizable in the register context.
const (
	entryAddr    = 0x400000
	handlerAddr  = 0x401000
	restorerAddr = 0x402000
	altStackBase = 0x60000000
	stackTop     = 0x7ffff000
)

var simulateCommand = cli.Command{
	Name:  "simulate",
	Usage: "deliver a signal to a simulated child process and report the outcome",
	ArgsUsage: `<signal>

Where "<signal>" is the name or number of the signal sent to the child. The
child is forked from a simulated init process, configured according to the
options, sent the signal, and then run up to its next return to user space.

EXAMPLE:
To see three queued real-time signals delivered to a handler on an
alternate stack:

       # hostkern simulate --handler --altstack-size 16KiB --count 3 SIGRTMIN+1`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "arch",
			Value: arch.AMD64.String(),
			Usage: "guest architecture (amd64, arm64 or riscv64)",
		},
		cli.BoolFlag{
			Name:  "handler",
			Usage: "install a handler for the signal",
		},
		cli.BoolFlag{
			Name:  "nodefer",
			Usage: "set SA_NODEFER on the handler",
		},
		cli.BoolFlag{
			Name:  "resethand",
			Usage: "set SA_RESETHAND on the handler",
		},
		cli.BoolFlag{
			Name:  "restart",
			Usage: "set SA_RESTART on the handler",
		},
		cli.BoolFlag{
			Name:  "exec",
			Usage: "have the child exec after configuring it, resetting its handlers",
		},
		cli.BoolFlag{
			Name:  "block",
			Usage: "block the signal in the child",
		},
		cli.BoolFlag{
			Name:  "continue",
			Usage: "send SIGCONT if the child stops (default is to kill it)",
		},
		cli.IntFlag{
			Name:  "count",
			Value: 1,
			Usage: "number of times the signal is sent",
		},
		cli.StringFlag{
			Name:  "stack-size",
			Value: "64KiB",
			Usage: "size of the child's stack",
		},
		cli.StringFlag{
			Name:  "altstack-size",
			Usage: "size of an alternate signal stack for the handler (default is none)",
		},
		cli.BoolFlag{
			Name:  "tty",
			Usage: "attach stdin as the controlling terminal of the init session",
		},
		cli.StringFlag{
			Name:  "format, f",
			Value: "table",
			Usage: `select one of: ` + formatOptions,
		},
	},
	Action: func(context *cli.Context) error {
		if err := checkArgs(context, 1, exactArgs); err != nil {
			return err
		}
		opts, err := newSimulateOpts(context)
		if err != nil {
			return err
		}
		r, err := simulate(opts)
		if err != nil {
			return err
		}
		if err := printReport(os.Stdout, context.String("format"), r); err != nil {
			return err
		}
		if r.ExitStatus != 0 {
			// Report the child's status as our own, as a shell would.
			return cli.NewExitError("", r.ExitStatus)
		}
		return nil
	},
}

type simulateOpts struct {
	arch      arch.Arch
	sig       abi.Signal
	handler   bool
	nodefer   bool
	resethand bool
	restart   bool
	exec      bool
	block     bool
	cont      bool
	count     int
	stackSize int64
	altSize   int64
	tty       bool
}

func newSimulateOpts(context *cli.Context) (*simulateOpts, error) {
	a, err := arch.ParseArch(context.String("arch"))
	if err != nil {
		return nil, err
	}
	sig, err := parseSignal(context.Args().First())
	if err != nil {
		return nil, err
	}
	opts := &simulateOpts{
		arch:      a,
		sig:       sig,
		handler:   context.Bool("handler"),
		nodefer:   context.Bool("nodefer"),
		resethand: context.Bool("resethand"),
		restart:   context.Bool("restart"),
		exec:      context.Bool("exec"),
		block:     context.Bool("block"),
		cont:      context.Bool("continue"),
		count:     context.Int("count"),
		tty:       context.Bool("tty"),
	}
	if opts.count < 1 {
		return nil, fmt.Errorf("invalid --count %d", opts.count)
	}
	if opts.stackSize, err = units.RAMInBytes(context.String("stack-size")); err != nil {
		return nil, fmt.Errorf("invalid --stack-size: %w", err)
	}
	if opts.stackSize < vm.PageSize {
		return nil, fmt.Errorf("--stack-size must be at least %s", units.BytesSize(vm.PageSize))
	}
	if s := context.String("altstack-size"); s != "" {
		if opts.altSize, err = units.RAMInBytes(s); err != nil {
			return nil, fmt.Errorf("invalid --altstack-size: %w", err)
		}
	}
	return opts, nil
}

type frameReport struct {
	Address  string `json:"address"`
	AltStack bool   `json:"alt_stack"`
	Signal   string `json:"signal"`
	Blocked  string `json:"blocked"`
}

type report struct {
	Arch       string        `json:"arch"`
	Signal     string        `json:"signal"`
	Sent       int           `json:"sent"`
	Pending    string        `json:"pending"`
	Outcome    string        `json:"outcome"`
	Handled    []frameReport `json:"handled,omitempty"`
	Syscall    string        `json:"syscall,omitempty"`
	StackSize  string        `json:"stack_size"`
	Terminal   string        `json:"terminal,omitempty"`
	WaitStatus int32         `json:"wait_status"`
	ExitStatus int           `json:"exit_status"`
}

func newGuestMemory(opts *simulateOpts) (*vm.Space, error) {
	mem := vm.NewSpace()
	if err := mem.Map(stackTop-uint64(opts.stackSize), uint64(opts.stackSize), vm.PermReadWrite); err != nil {
		return nil, err
	}
	if err := mem.Map(altStackBase, uint64(opts.altSize), vm.PermReadWrite); err != nil {
		return nil, err
	}
	return mem, nil
}

func simulate(opts *simulateOpts) (*report, error) {
	k := task.NewKernel(task.Config{Arch: opts.arch, DefaultRestorer: restorerAddr})
	initMem, err := newGuestMemory(opts)
	if err != nil {
		return nil, err
	}
	init, err := k.Boot(initMem)
	if err != nil {
		return nil, err
	}

	r := &report{
		Arch:      opts.arch.String(),
		Signal:    opts.sig.String(),
		Sent:      opts.count,
		StackSize: units.BytesSize(float64(opts.stackSize)),
	}
	if opts.tty {
		t, err := setupTerminal(init)
		if err != nil {
			logrus.Warnf("not attaching a terminal: %v", err)
		} else {
			defer t.Close()
			r.Terminal = t.String()
		}
	}

	mem, err := newGuestMemory(opts)
	if err != nil {
		return nil, err
	}
	child, err := k.Fork(init, mem)
	if err != nil {
		return nil, err
	}
	if err := configureChild(child, opts); err != nil {
		return nil, err
	}
	if opts.exec {
		if err := k.Exec(child); err != nil {
			return nil, err
		}
	}
	// Decided before delivery, as SA_RESETHAND may reset the action.
	restart := task.RestartSyscall(child, opts.sig)

	pid := child.Process().PID()
	for i := 0; i < opts.count; i++ {
		info := arch.UserSignalInfo(opts.sig, abi.SI_USER, init.Process().PID(), 0)
		if err := k.SendSignalToProcess(pid, info); err != nil {
			return nil, err
		}
	}
	r.Pending = child.Signal.Pending().String()

	uctx := k.NewUserContext(entryAddr, stackTop)
	for !child.Exited() && task.CheckSignals(child, uctx, nil) {
		if uctx.IP() != handlerAddr {
			continue
		}
		fr, err := returnFromHandler(child, mem, uctx)
		if err != nil {
			return nil, err
		}
		r.Handled = append(r.Handled, *fr)
	}

	r.Outcome = outcome(child, opts, r)
	if len(r.Handled) > 0 {
		r.Syscall = "interrupted (EINTR)"
		if restart {
			r.Syscall = "restarted"
		}
	}
	if child.Process().Proc.IsStopped() {
		if err := resolveStop(k, init, child, opts, uctx, r); err != nil {
			return nil, err
		}
	}
	if !child.Exited() {
		task.DoExit(child, 0, true, 0, false)
	}

	_, status, err := k.WaitChild(init.Process(), task.WaitPid(pid), 0)
	if err != nil {
		return nil, err
	}
	r.WaitStatus = status.Raw()
	r.ExitStatus = utils.ExitStatus(status.Unix())
	return r, nil
}

func configureChild(child *task.Thread, opts *simulateOpts) error {
	if opts.altSize > 0 {
		child.Signal.SetStack(arch.SignalStack{Sp: altStackBase, Size: uint64(opts.altSize)})
	}
	if opts.handler {
		act := signal.Action{
			Disposition: signal.DispositionHandler,
			Handler:     handlerAddr,
			Flags:       abi.SA_SIGINFO,
		}
		if opts.nodefer {
			act.Flags |= abi.SA_NODEFER
		}
		if opts.resethand {
			act.Flags |= abi.SA_RESETHAND
		}
		if opts.restart {
			act.Flags |= abi.SA_RESTART
		}
		if opts.altSize > 0 {
			act.Flags |= abi.SA_ONSTACK
		}
		if _, err := child.Process().Signal.Actions.Set(opts.sig, act); err != nil {
			return fmt.Errorf("install handler for %s: %w", opts.sig, err)
		}
	}
	if opts.block {
		child.Signal.SetBlocked(abi.SignalSetOf(opts.sig))
	}
	return nil
}

// returnFromHandler records the frame the handler was entered with and
// performs the sigreturn the restorer would.
func returnFromHandler(child *task.Thread, mem vm.IO, uctx arch.Context) (*frameReport, error) {
	sp := uctx.SP()
	if uctx.Arch() == arch.AMD64 {
		// Pop the return address the restorer was pushed as.
		sp += 8
	}
	frame, err := arch.ReadFrame(mem, uctx.Arch(), sp)
	if err != nil {
		return nil, err
	}
	fr := &frameReport{
		Address:  fmt.Sprintf("%#x", sp),
		AltStack: child.Signal.Stack().Contains(sp),
		Signal:   frame.Info.Signal().String(),
		Blocked:  child.Signal.Blocked().String(),
	}
	uctx.SetSP(sp)
	if err := child.Signal.Restore(uctx); err != nil {
		return nil, err
	}
	return fr, nil
}

func outcome(child *task.Thread, opts *simulateOpts, r *report) string {
	proc := child.Process().Proc
	switch {
	case child.Exited():
		if s, ok := proc.ZombieInfo(); ok && s.CoreDumped {
			return "core-dumped"
		}
		return "terminated"
	case proc.IsStopped():
		return "stopped"
	case len(r.Handled) > 0:
		return "handled"
	case child.Signal.Pending().Has(opts.sig):
		return "blocked"
	case opts.sig == abi.SIGCONT:
		return "continued"
	}
	return "ignored"
}

// resolveStop collects the stop as the parent would, then either continues
// or kills the child so that it can be reaped.
func resolveStop(k *task.Kernel, init, child *task.Thread, opts *simulateOpts, uctx arch.Context, r *report) error {
	pid := child.Process().PID()
	if _, status, err := k.WaitChild(init.Process(), task.WaitPid(pid), abi.WUNTRACED|abi.WNOHANG); err != nil {
		return err
	} else if status.Stopped() {
		logrus.Debugf("child %d stopped by %s", pid, status.StopSignal())
	}

	next := abi.SIGKILL
	if opts.cont {
		next = abi.SIGCONT
	}
	if err := k.SendSignalToProcess(pid, arch.KernelSignalInfo(next)); err != nil {
		return err
	}
	// The child is no longer stopped, so this does not block.
	err := child.TrapReturn(context.Background(), uctx)
	if err != nil && !errors.Is(err, task.ErrThreadExited) {
		return err
	}
	if opts.cont {
		r.Outcome = "stopped, continued"
	} else {
		r.Outcome = "stopped, killed"
	}
	return nil
}

func printReport(w io.Writer, format string, r *report) error {
	switch format {
	case "table":
		tw := tabwriter.NewWriter(w, 12, 1, 3, ' ', 0)
		fmt.Fprintf(tw, "ARCH\t%s\n", r.Arch)
		fmt.Fprintf(tw, "SIGNAL\t%s x%d\n", r.Signal, r.Sent)
		fmt.Fprintf(tw, "PENDING\t%s\n", r.Pending)
		fmt.Fprintf(tw, "STACK\t%s\n", r.StackSize)
		if r.Terminal != "" {
			fmt.Fprintf(tw, "TERMINAL\t%s\n", r.Terminal)
		}
		for i, f := range r.Handled {
			where := "stack"
			if f.AltStack {
				where = "altstack"
			}
			fmt.Fprintf(tw, "HANDLER #%d\t%s frame at %s (%s), blocked %s\n", i+1, f.Signal, f.Address, where, f.Blocked)
		}
		if r.Syscall != "" {
			fmt.Fprintf(tw, "SYSCALL\t%s\n", r.Syscall)
		}
		fmt.Fprintf(tw, "OUTCOME\t%s\n", r.Outcome)
		fmt.Fprintf(tw, "STATUS\t%#x (exit %d)\n", r.WaitStatus, r.ExitStatus)
		return tw.Flush()
	case "json":
		return utils.WriteJSON(w, r)
	}
	return fmt.Errorf("invalid format option %q, use %s", format, formatOptions)
}
