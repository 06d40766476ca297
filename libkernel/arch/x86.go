package arch

import (
	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/vm"
)

// AMD64Context is the x86-64 trap frame.
type AMD64Context struct {
	R15, R14, R13, R12 uint64
	Rbp, Rbx           uint64
	R11, R10, R9, R8   uint64
	Rax, Rcx, Rdx      uint64
	Rsi, Rdi           uint64
	Vector, ErrorCode  uint64
	Rip, Cs, Rflags    uint64
	Rsp, Ss            uint64
}

func (c *AMD64Context) Arch() Arch      { return AMD64 }
func (c *AMD64Context) IP() uint64      { return c.Rip }
func (c *AMD64Context) SetIP(ip uint64) { c.Rip = ip }
func (c *AMD64Context) SP() uint64      { return c.Rsp }
func (c *AMD64Context) SetSP(sp uint64) { c.Rsp = sp }

func (c *AMD64Context) SetArg(i int, v uint64) {
	switch i {
	case 0:
		c.Rdi = v
	case 1:
		c.Rsi = v
	case 2:
		c.Rdx = v
	default:
		panic("amd64: argument index out of range")
	}
}

// SetReturnAddress pushes addr; the handler's ret pops it.
func (c *AMD64Context) SetReturnAddress(mem vm.IO, addr uint64) error {
	sp := c.Rsp - 8
	if err := vm.WriteUint64(mem, sp, addr); err != nil {
		return err
	}
	c.Rsp = sp
	return nil
}

func (c *AMD64Context) Clone() Context {
	cp := *c
	return &cp
}

// AMD64MContext is struct sigcontext for x86-64.
type AMD64MContext struct {
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	Rdi, Rsi, Rbp, Rbx uint64
	Rdx, Rax, Rcx, Rsp uint64
	Rip, Eflags        uint64
	Cs, Gs, Fs, _      uint16
	Err, Trapno        uint64
	Oldmask, Cr2       uint64
	Fpstate            uint64
	Reserved           [8]uint64
}

func newAMD64MContext(c *AMD64Context) *AMD64MContext {
	return &AMD64MContext{
		R8: c.R8, R9: c.R9, R10: c.R10, R11: c.R11,
		R12: c.R12, R13: c.R13, R14: c.R14, R15: c.R15,
		Rdi: c.Rdi, Rsi: c.Rsi, Rbp: c.Rbp, Rbx: c.Rbx,
		Rdx: c.Rdx, Rax: c.Rax, Rcx: c.Rcx, Rsp: c.Rsp,
		Rip:    c.Rip,
		Eflags: c.Rflags,
		Cs:     uint16(c.Cs),
		Err:    c.ErrorCode,
		Trapno: c.Vector,
	}
}

// Restore implements MContext.
func (m *AMD64MContext) Restore(ctx Context) {
	c := ctx.(*AMD64Context)
	c.R8, c.R9, c.R10, c.R11 = m.R8, m.R9, m.R10, m.R11
	c.R12, c.R13, c.R14, c.R15 = m.R12, m.R13, m.R14, m.R15
	c.Rdi, c.Rsi, c.Rbp, c.Rbx = m.Rdi, m.Rsi, m.Rbp, m.Rbx
	c.Rdx, c.Rax, c.Rcx, c.Rsp = m.Rdx, m.Rax, m.Rcx, m.Rsp
	c.Rip = m.Rip
	c.Rflags = m.Eflags
	c.Cs = uint64(m.Cs)
	c.ErrorCode = m.Err
	c.Vector = m.Trapno
}

type amd64UContext struct {
	Flags    uint64
	Link     uint64
	Stack    SignalStack
	MContext AMD64MContext
	Sigmask  abi.SignalSet
}

type x86Ops struct{}

func (x86Ops) newContext() Context { return &AMD64Context{} }

func (x86Ops) newMContext(ctx Context) MContext {
	return newAMD64MContext(ctx.(*AMD64Context))
}

func (x86Ops) ucontextLayout(uc *UContext) any {
	return &amd64UContext{
		Flags:    uc.Flags,
		Link:     uc.Link,
		Stack:    uc.Stack,
		MContext: *uc.MContext.(*AMD64MContext),
		Sigmask:  uc.Sigmask,
	}
}

func (x86Ops) emptyLayout() any { return &amd64UContext{} }

func (x86Ops) fromLayout(layout any) *UContext {
	l := layout.(*amd64UContext)
	m := l.MContext
	return &UContext{
		Flags:    l.Flags,
		Link:     l.Link,
		Stack:    l.Stack,
		Sigmask:  l.Sigmask,
		MContext: &m,
	}
}
