package arch

import (
	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/vm"
)

// RISC-V general register indexes into RISCV64Context.Regs (x1..x31).
const (
	riscvRA = 0
	riscvSP = 1
	riscvA0 = 9
)

// RISCV64Context is the riscv64 trap frame.
type RISCV64Context struct {
	Regs    [31]uint64
	Sepc    uint64
	Sstatus uint64
}

func (c *RISCV64Context) Arch() Arch      { return RISCV64 }
func (c *RISCV64Context) IP() uint64      { return c.Sepc }
func (c *RISCV64Context) SetIP(ip uint64) { c.Sepc = ip }
func (c *RISCV64Context) SP() uint64      { return c.Regs[riscvSP] }
func (c *RISCV64Context) SetSP(sp uint64) { c.Regs[riscvSP] = sp }

func (c *RISCV64Context) SetArg(i int, v uint64) {
	if i < 0 || i > 2 {
		panic("riscv64: argument index out of range")
	}
	c.Regs[riscvA0+i] = v
}

// SetReturnAddress sets ra.
func (c *RISCV64Context) SetReturnAddress(_ vm.IO, addr uint64) error {
	c.Regs[riscvRA] = addr
	return nil
}

func (c *RISCV64Context) Clone() Context {
	cp := *c
	return &cp
}

// RISCV64MContext is struct sigcontext for riscv64: user_regs_struct followed
// by the FP state union.
type RISCV64MContext struct {
	Pc      uint64
	Regs    [31]uint64
	FpState [66]uint64
}

// Restore implements MContext.
func (m *RISCV64MContext) Restore(ctx Context) {
	c := ctx.(*RISCV64Context)
	c.Sepc = m.Pc
	c.Regs = m.Regs
}

type riscv64UContext struct {
	Flags    uint64
	Link     uint64
	Stack    SignalStack
	Sigmask  abi.SignalSet
	_        [1024/8 - abi.SignalSetSize]byte
	_        [8]byte
	MContext RISCV64MContext
}

type riscvOps struct{}

func (riscvOps) newContext() Context { return &RISCV64Context{} }

func (riscvOps) newMContext(ctx Context) MContext {
	c := ctx.(*RISCV64Context)
	return &RISCV64MContext{Pc: c.Sepc, Regs: c.Regs}
}

func (riscvOps) ucontextLayout(uc *UContext) any {
	return &riscv64UContext{
		Flags:    uc.Flags,
		Link:     uc.Link,
		Stack:    uc.Stack,
		Sigmask:  uc.Sigmask,
		MContext: *uc.MContext.(*RISCV64MContext),
	}
}

func (riscvOps) emptyLayout() any { return &riscv64UContext{} }

func (riscvOps) fromLayout(layout any) *UContext {
	l := layout.(*riscv64UContext)
	m := l.MContext
	return &UContext{
		Flags:    l.Flags,
		Link:     l.Link,
		Stack:    l.Stack,
		Sigmask:  l.Sigmask,
		MContext: &m,
	}
}
