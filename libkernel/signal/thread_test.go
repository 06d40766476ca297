package signal

import (
	"errors"
	"reflect"
	"runtime"
	"testing"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
	"github.com/hostkern/hostkern/libkernel/vm"
)

const (
	stackBase    = 0x100000
	stackSize    = 0x10000
	altStackBase = 0x200000
	altStackSize = 0x8000
	handlerAddr  = 0x401000
	restorerAddr = 0x402000
)

func newTestThread(t *testing.T, a arch.Arch) (*ThreadManager, arch.Context, *vm.Space) {
	t.Helper()
	mem := vm.NewSpace()
	for _, r := range [][2]uint64{{stackBase, stackSize}, {altStackBase, altStackSize}} {
		if err := mem.Map(r[0], r[1], vm.PermReadWrite); err != nil {
			t.Fatal(err)
		}
	}
	pm := NewProcessManager(NewActions(), mem, restorerAddr)
	tm := NewThreadManager(1, pm)

	uctx := arch.NewContext(a)
	uctx.SetIP(0x400100)
	uctx.SetSP(stackBase + stackSize - 0x100)
	uctx.SetArg(0, 0x1111)
	uctx.SetArg(1, 0x2222)
	uctx.SetArg(2, 0x3333)
	return tm, uctx, mem
}

// returnFromHandler emulates the handler's return into the restorer.
func returnFromHandler(t *testing.T, uctx arch.Context, mem vm.IO) {
	t.Helper()
	if uctx.Arch() != arch.AMD64 {
		return
	}
	ra, err := vm.ReadUint64(mem, uctx.SP())
	if err != nil {
		t.Fatal(err)
	}
	if ra != restorerAddr {
		t.Fatalf("return address %#x, want %#x", ra, restorerAddr)
	}
	uctx.SetSP(uctx.SP() + 8)
}

func setHandler(t *testing.T, tm *ThreadManager, sig abi.Signal, act Action) {
	t.Helper()
	act.Disposition = DispositionHandler
	if act.Handler == 0 {
		act.Handler = handlerAddr
	}
	if _, err := tm.Process().Actions.Set(sig, act); err != nil {
		t.Fatal(err)
	}
}

func TestCheckSignalsNothingPending(t *testing.T) {
	tm, uctx, _ := newTestThread(t, arch.AMD64)
	before := uctx.Clone()
	if _, _, ok := tm.CheckSignals(uctx, nil); ok {
		t.Fatal("no signal is pending")
	}
	if !reflect.DeepEqual(uctx, before) {
		t.Fatal("context modified")
	}
}

func TestCheckSignalsAllBlocked(t *testing.T) {
	tm, uctx, _ := newTestThread(t, arch.AMD64)
	tm.SetBlocked(abi.SignalSetOf(abi.SIGUSR1, abi.SIGTERM))
	if tm.SendSignal(arch.KernelSignalInfo(abi.SIGUSR1)) {
		t.Error("blocked signal should not wake the thread")
	}
	if _, ok := tm.Process().SendSignal(arch.KernelSignalInfo(abi.SIGTERM)); ok {
		t.Error("no thread can take a signal everyone blocks")
	}
	before := uctx.Clone()
	if _, _, ok := tm.CheckSignals(uctx, nil); ok {
		t.Fatal("blocked signals must not be delivered")
	}
	if !reflect.DeepEqual(uctx, before) {
		t.Fatal("context modified")
	}
	if want := abi.SignalSetOf(abi.SIGUSR1, abi.SIGTERM); tm.Pending() != want {
		t.Fatalf("pending = %s, want %s", tm.Pending(), want)
	}

	tm.SetBlocked(0)
	info, act, ok := tm.CheckSignals(uctx, nil)
	if !ok || info.Signal() != abi.SIGUSR1 || act != Terminate {
		t.Fatalf("got %s %s %v", info.Signal(), act, ok)
	}
}

func TestCheckSignalsDefaultActions(t *testing.T) {
	for _, tt := range []struct {
		sig  abi.Signal
		want OSAction
	}{
		{abi.SIGTERM, Terminate},
		{abi.SIGKILL, Terminate},
		{abi.SIGSEGV, CoreDump},
		{abi.SIGQUIT, CoreDump},
		{abi.SIGSTOP, Stop},
		{abi.SIGTSTP, Stop},
		{abi.SIGCONT, Continue},
	} {
		tm, uctx, _ := newTestThread(t, arch.ARM64)
		if !tm.SendSignal(arch.KernelSignalInfo(tt.sig)) {
			t.Fatalf("%s: send refused", tt.sig)
		}
		info, act, ok := tm.CheckSignals(uctx, nil)
		if !ok || info.Signal() != tt.sig || act != tt.want {
			t.Errorf("%s: got %s %s %v, want %s", tt.sig, info.Signal(), act, ok, tt.want)
		}
	}
}

func TestIgnoredSignalsAreConsumed(t *testing.T) {
	tm, uctx, _ := newTestThread(t, arch.RISCV64)
	if tm.SendSignal(arch.KernelSignalInfo(abi.SIGCHLD)) {
		t.Error("SIGCHLD is ignored by default")
	}
	tm.SendSignal(arch.KernelSignalInfo(abi.SIGUSR1))
	tm.SendSignal(arch.KernelSignalInfo(abi.SIGTERM))
	// Ignored after it was queued.
	if _, err := tm.Process().Actions.Set(abi.SIGUSR1, Action{Disposition: DispositionIgnore}); err != nil {
		t.Fatal(err)
	}

	info, act, ok := tm.CheckSignals(uctx, nil)
	if !ok || info.Signal() != abi.SIGTERM || act != Terminate {
		t.Fatalf("got %s %s %v", info.Signal(), act, ok)
	}
	if !tm.Pending().IsEmpty() {
		t.Fatalf("pending = %s", tm.Pending())
	}
}

func TestHandlerFrameRoundTrip(t *testing.T) {
	for _, a := range []arch.Arch{arch.AMD64, arch.ARM64, arch.RISCV64} {
		t.Run(a.String(), func(t *testing.T) {
			tm, uctx, mem := newTestThread(t, a)
			setHandler(t, tm, abi.SIGUSR1, Action{Mask: abi.SignalSetOf(abi.SIGUSR2, abi.SIGKILL)})
			tm.SetBlocked(abi.SignalSetOf(abi.SIGHUP))

			if !tm.SendSignal(arch.UserSignalInfo(abi.SIGUSR1, abi.SI_USER, 77, 1000)) {
				t.Fatal("send refused")
			}
			before := uctx.Clone()

			info, act, ok := tm.CheckSignals(uctx, nil)
			if !ok || act != Handler || info.Signal() != abi.SIGUSR1 {
				t.Fatalf("got %s %s %v", info.Signal(), act, ok)
			}
			if uctx.IP() != handlerAddr {
				t.Fatalf("ip = %#x", uctx.IP())
			}
			if want := abi.SignalSetOf(abi.SIGHUP, abi.SIGUSR1, abi.SIGUSR2); tm.Blocked() != want {
				t.Fatalf("blocked in handler = %s, want %s", tm.Blocked(), want)
			}

			returnFromHandler(t, uctx, mem)
			frameAddr := uctx.SP()
			if frameAddr%arch.FrameAlign != 0 {
				t.Fatalf("frame at %#x is not aligned", frameAddr)
			}
			var si arch.SignalInfo
			if err := vm.ReadObject(mem, frameAddr+arch.InfoOffset(a), &si); err != nil {
				t.Fatal(err)
			}
			if si.Signal() != abi.SIGUSR1 || si.PID() != 77 || si.UID() != 1000 {
				t.Fatalf("siginfo on stack: %v pid=%d", si, si.PID())
			}

			if err := tm.Restore(uctx); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(uctx, before) {
				t.Fatal("registers not restored")
			}
			if want := abi.SignalSetOf(abi.SIGHUP); tm.Blocked() != want {
				t.Fatalf("blocked after sigreturn = %s, want %s", tm.Blocked(), want)
			}
		})
	}
}

func TestHandlerRestoresRequestedMask(t *testing.T) {
	tm, uctx, mem := newTestThread(t, arch.AMD64)
	setHandler(t, tm, abi.SIGINT, Action{})
	tm.SetBlocked(abi.SignalSetOf(abi.SIGUSR1))
	tm.SendSignal(arch.KernelSignalInfo(abi.SIGINT))

	restore := abi.SignalSetOf(abi.SIGUSR1, abi.SIGUSR2)
	if _, act, ok := tm.CheckSignals(uctx, &restore); !ok || act != Handler {
		t.Fatalf("got %s %v", act, ok)
	}
	returnFromHandler(t, uctx, mem)
	if err := tm.Restore(uctx); err != nil {
		t.Fatal(err)
	}
	if tm.Blocked() != restore {
		t.Fatalf("blocked = %s, want %s", tm.Blocked(), restore)
	}
}

func TestHandlerFlags(t *testing.T) {
	tm, uctx, _ := newTestThread(t, arch.ARM64)
	setHandler(t, tm, abi.SIGUSR2, Action{Flags: abi.SA_NODEFER | abi.SA_RESETHAND, Restorer: 0x403000})
	tm.SendSignal(arch.KernelSignalInfo(abi.SIGUSR2))

	if _, act, ok := tm.CheckSignals(uctx, nil); !ok || act != Handler {
		t.Fatalf("got %s %v", act, ok)
	}
	if tm.SignalBlocked(abi.SIGUSR2) {
		t.Error("SA_NODEFER handler blocked its own signal")
	}
	if d := tm.Process().Actions.Get(abi.SIGUSR2).Disposition; d != DispositionDefault {
		t.Errorf("SA_RESETHAND left disposition %s", d)
	}
	if lr := uctx.(*arch.ARM64Context).X[30]; lr != 0x403000 {
		t.Errorf("return address %#x, want the action's restorer", lr)
	}
}

func TestHandlerOnAlternateStack(t *testing.T) {
	tm, uctx, _ := newTestThread(t, arch.RISCV64)
	tm.SetStack(arch.SignalStack{Sp: altStackBase, Size: altStackSize})
	setHandler(t, tm, abi.SIGSEGV, Action{Flags: abi.SA_ONSTACK})
	tm.SendSignal(arch.FaultSignalInfo(abi.SIGSEGV, abi.SEGV_MAPERR, 0xdead))

	if _, act, ok := tm.CheckSignals(uctx, nil); !ok || act != Handler {
		t.Fatalf("got %s %v", act, ok)
	}
	if sp := uctx.SP(); sp < altStackBase || sp >= altStackBase+altStackSize {
		t.Fatalf("frame at %#x is not on the alternate stack", sp)
	}
}

func TestHandlerFrameFaultDumpsCore(t *testing.T) {
	tm, uctx, _ := newTestThread(t, arch.AMD64)
	setHandler(t, tm, abi.SIGUSR1, Action{})
	uctx.SetSP(0x900000)
	tm.SendSignal(arch.KernelSignalInfo(abi.SIGUSR1))

	if _, act, ok := tm.CheckSignals(uctx, nil); !ok || act != CoreDump {
		t.Fatalf("got %s %v, want core dump", act, ok)
	}
}

func TestRestoreWithoutFrame(t *testing.T) {
	tm, uctx, _ := newTestThread(t, arch.AMD64)
	uctx.SetSP(0x900000)
	err := tm.Restore(uctx)
	if !errors.Is(err, ErrNoSignalFrame) || !errors.Is(err, vm.ErrBadAddress) {
		t.Fatalf("got %v", err)
	}
}

func TestSetBlockedKeepsKillAndStop(t *testing.T) {
	tm, _, _ := newTestThread(t, arch.AMD64)
	tm.SetBlocked(^abi.SignalSet(0))
	if tm.SignalBlocked(abi.SIGKILL) || tm.SignalBlocked(abi.SIGSTOP) {
		t.Fatal("SIGKILL and SIGSTOP cannot be blocked")
	}
	if _, err := tm.Process().Actions.Set(abi.SIGKILL, Action{Disposition: DispositionIgnore}); err == nil {
		t.Fatal("SIGKILL action changed")
	}
}

func TestProcessSendSignalPicksUnblockedThread(t *testing.T) {
	tm, _, _ := newTestThread(t, arch.AMD64)
	pm := tm.Process()
	tm2 := NewThreadManager(2, pm)
	tm3 := NewThreadManager(3, pm)
	tm.SetBlocked(abi.SignalSetOf(abi.SIGUSR1))
	tm2.SetBlocked(abi.SignalSetOf(abi.SIGUSR1))

	tid, ok := pm.SendSignal(arch.KernelSignalInfo(abi.SIGUSR1))
	if !ok || tid != 3 {
		t.Fatalf("got tid %d %v, want 3", tid, ok)
	}
	if !pm.Pending().Has(abi.SIGUSR1) {
		t.Fatal("signal not queued on the process")
	}

	tm3.Detach()
	if _, ok := pm.SendSignal(arch.KernelSignalInfo(abi.SIGUSR1)); ok {
		t.Fatal("detached thread chosen")
	}
	if _, ok := pm.SendSignal(arch.KernelSignalInfo(abi.SIGWINCH)); ok {
		t.Fatal("ignored signal woke a thread")
	}
	runtime.KeepAlive(tm2)
}

func TestProcessSignalDeliveredToAnyThread(t *testing.T) {
	tm, uctx, _ := newTestThread(t, arch.AMD64)
	if _, ok := tm.Process().SendSignal(arch.KernelSignalInfo(abi.SIGHUP)); !ok {
		t.Fatal("send refused")
	}
	info, act, ok := tm.CheckSignals(uctx, nil)
	if !ok || info.Signal() != abi.SIGHUP || act != Terminate {
		t.Fatalf("got %s %s %v", info.Signal(), act, ok)
	}
	if !tm.Process().Pending().IsEmpty() {
		t.Fatal("process queue not drained")
	}
}

func TestSendSignalRejectsOutOfRange(t *testing.T) {
	tm, uctx, _ := newTestThread(t, arch.AMD64)
	for _, signo := range []int32{0, 65, 266, -246} {
		info := arch.SignalInfo{Signo: signo}
		if tm.SendSignal(info) {
			t.Errorf("thread accepted signo %d", signo)
		}
		if _, ok := tm.Process().SendSignal(info); ok {
			t.Errorf("process accepted signo %d", signo)
		}
	}
	if !tm.Pending().IsEmpty() {
		t.Fatalf("pending = %s, want empty", tm.Pending())
	}
	if _, _, ok := tm.CheckSignals(uctx, nil); ok {
		t.Fatal("delivered a signal")
	}
}
