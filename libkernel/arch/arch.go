// Package arch describes the per-architecture user register state the kernel
// core consumes: the trapped register context, and the machine context
// (MContext/UContext) codec used to build and unwind signal frames.
package arch

import (
	"fmt"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/vm"
)

// Arch identifies a user ABI.
type Arch uint8

const (
	AMD64 Arch = iota
	ARM64
	RISCV64
)

func (a Arch) String() string {
	switch a {
	case AMD64:
		return "amd64"
	case ARM64:
		return "arm64"
	case RISCV64:
		return "riscv64"
	}
	return fmt.Sprintf("arch(%d)", uint8(a))
}

// ParseArch accepts both Go and kernel spellings of an architecture name.
func ParseArch(s string) (Arch, error) {
	switch s {
	case "amd64", "x86_64":
		return AMD64, nil
	case "arm64", "aarch64":
		return ARM64, nil
	case "riscv64":
		return RISCV64, nil
	}
	return 0, fmt.Errorf("unsupported architecture %q", s)
}

// Context is the user register state saved when a thread traps into the
// kernel. Implementations are pointers to fixed-size structs so that they can
// be copied verbatim into a signal frame.
type Context interface {
	Arch() Arch

	IP() uint64
	SetIP(uint64)
	SP() uint64
	SetSP(uint64)

	// SetArg sets the i-th (0-based, at most 2) function argument register.
	SetArg(i int, v uint64)

	// SetReturnAddress arranges for the function about to be entered to
	// return to addr. On x86-64 the address is pushed onto the user stack.
	SetReturnAddress(mem vm.IO, addr uint64) error

	// Clone returns an independent copy.
	Clone() Context
}

// NewContext returns a zeroed register context for a.
func NewContext(a Arch) Context {
	return opsFor(a).newContext()
}

// SignalStack is the alternate signal stack (struct sigaltstack).
type SignalStack struct {
	Sp    uint64
	Flags int32
	_     int32
	Size  uint64
}

// DisabledSignalStack returns the initial, disabled alternate stack.
func DisabledSignalStack() SignalStack {
	return SignalStack{Flags: abi.SS_DISABLE}
}

// Disabled returns true if the alternate stack must not be used.
func (s SignalStack) Disabled() bool {
	return s.Flags&abi.SS_DISABLE != 0
}

// Top returns the first address above the alternate stack.
func (s SignalStack) Top() uint64 {
	return s.Sp + s.Size
}

// Contains returns true if sp lies on the alternate stack.
func (s SignalStack) Contains(sp uint64) bool {
	return !s.Disabled() && sp > s.Sp && sp <= s.Top()
}

type archOps interface {
	newContext() Context
	newMContext(ctx Context) MContext
	// ucontextLayout returns the wire form of uc for binary encoding.
	ucontextLayout(uc *UContext) any
	// fromLayout converts a decoded wire form back.
	fromLayout(layout any) *UContext
	emptyLayout() any
}

var ops = map[Arch]archOps{
	AMD64:   x86Ops{},
	ARM64:   armOps{},
	RISCV64: riscvOps{},
}

func opsFor(a Arch) archOps {
	o, ok := ops[a]
	if !ok {
		panic("unsupported architecture " + a.String())
	}
	return o
}

// Load overwrites dst with the registers in src. It panics if the two
// belong to different architectures.
func Load(dst, src Context) {
	switch d := dst.(type) {
	case *AMD64Context:
		*d = *src.(*AMD64Context)
	case *ARM64Context:
		*d = *src.(*ARM64Context)
	case *RISCV64Context:
		*d = *src.(*RISCV64Context)
	default:
		panic(fmt.Sprintf("unknown register context %T", dst))
	}
}
