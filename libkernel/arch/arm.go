package arch

import (
	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/vm"
)

// ARM64Context is the aarch64 trap frame.
type ARM64Context struct {
	X      [31]uint64
	Sp     uint64
	Elr    uint64
	Spsr   uint64
	Tpidr0 uint64
}

func (c *ARM64Context) Arch() Arch      { return ARM64 }
func (c *ARM64Context) IP() uint64      { return c.Elr }
func (c *ARM64Context) SetIP(ip uint64) { c.Elr = ip }
func (c *ARM64Context) SP() uint64      { return c.Sp }
func (c *ARM64Context) SetSP(sp uint64) { c.Sp = sp }

func (c *ARM64Context) SetArg(i int, v uint64) {
	if i < 0 || i > 2 {
		panic("arm64: argument index out of range")
	}
	c.X[i] = v
}

// SetReturnAddress sets the link register x30.
func (c *ARM64Context) SetReturnAddress(_ vm.IO, addr uint64) error {
	c.X[30] = addr
	return nil
}

func (c *ARM64Context) Clone() Context {
	cp := *c
	return &cp
}

// ARM64MContext is struct sigcontext for aarch64. Reserved holds the
// extension records (FP/SIMD and friends); the kernel core leaves it zero.
type ARM64MContext struct {
	FaultAddress uint64
	Regs         [31]uint64
	Sp           uint64
	Pc           uint64
	Pstate       uint64
	_            [8]byte
	Reserved     [4096]byte
}

// Restore implements MContext.
func (m *ARM64MContext) Restore(ctx Context) {
	c := ctx.(*ARM64Context)
	c.X = m.Regs
	c.Sp = m.Sp
	c.Elr = m.Pc
	c.Spsr = m.Pstate
}

// uc_mcontext is 16-byte aligned at offset 176.
type arm64UContext struct {
	Flags    uint64
	Link     uint64
	Stack    SignalStack
	Sigmask  abi.SignalSet
	_        [1024/8 - abi.SignalSetSize]byte
	_        [8]byte
	MContext ARM64MContext
}

type armOps struct{}

func (armOps) newContext() Context { return &ARM64Context{} }

func (armOps) newMContext(ctx Context) MContext {
	c := ctx.(*ARM64Context)
	return &ARM64MContext{
		Regs:   c.X,
		Sp:     c.Sp,
		Pc:     c.Elr,
		Pstate: c.Spsr,
	}
}

func (armOps) ucontextLayout(uc *UContext) any {
	return &arm64UContext{
		Flags:    uc.Flags,
		Link:     uc.Link,
		Stack:    uc.Stack,
		Sigmask:  uc.Sigmask,
		MContext: *uc.MContext.(*ARM64MContext),
	}
}

func (armOps) emptyLayout() any { return &arm64UContext{} }

func (armOps) fromLayout(layout any) *UContext {
	l := layout.(*arm64UContext)
	m := l.MContext
	return &UContext{
		Flags:    l.Flags,
		Link:     l.Link,
		Stack:    l.Stack,
		Sigmask:  l.Sigmask,
		MContext: &m,
	}
}
