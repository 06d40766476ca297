package arch

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/vm"
)

// MContext is the machine register file as user space sees it in
// ucontext_t.uc_mcontext.
type MContext interface {
	// Restore writes the saved registers back into ctx.
	Restore(ctx Context)
}

// UContext is ucontext_t: the state a signal handler receives and that
// sigreturn restores.
type UContext struct {
	Flags    uint64
	Link     uint64
	Stack    SignalStack
	Sigmask  abi.SignalSet
	MContext MContext
}

// NewUContext captures ctx and the signal mask to restore on sigreturn.
func NewUContext(ctx Context, sigmask abi.SignalSet) *UContext {
	return &UContext{
		Stack:    DisabledSignalStack(),
		Sigmask:  sigmask,
		MContext: opsFor(ctx.Arch()).newMContext(ctx),
	}
}

// Frame is the signal frame pushed on the user stack before a handler runs:
// the ucontext, the siginfo, and a verbatim copy of the trapped registers.
type Frame struct {
	Arch     Arch
	UContext *UContext
	Info     SignalInfo
	Saved    Context
}

// FrameAlign is the stack alignment of a signal frame.
const FrameAlign = 16

func ucontextSize(a Arch) uint64 {
	return uint64(binary.Size(opsFor(a).emptyLayout()))
}

// FrameSize returns the encoded size of a Frame for a.
func FrameSize(a Arch) uint64 {
	return ucontextSize(a) + SignalInfoSize + uint64(binary.Size(opsFor(a).newContext()))
}

// UContextOffset is the offset of the ucontext within a frame.
func UContextOffset(Arch) uint64 { return 0 }

// InfoOffset is the offset of the siginfo within a frame.
func InfoOffset(a Arch) uint64 { return ucontextSize(a) }

// Marshal encodes f.
func (f *Frame) Marshal() ([]byte, error) {
	if f.Saved.Arch() != f.Arch {
		return nil, fmt.Errorf("frame for %s carries %s registers", f.Arch, f.Saved.Arch())
	}
	o := opsFor(f.Arch)
	var buf bytes.Buffer
	for _, part := range []any{o.ucontextLayout(f.UContext), &f.Info, f.Saved} {
		if err := binary.Write(&buf, vm.ByteOrder, part); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalFrame decodes a frame written by Marshal.
func UnmarshalFrame(a Arch, b []byte) (*Frame, error) {
	if uint64(len(b)) < FrameSize(a) {
		return nil, fmt.Errorf("short %s signal frame: %d bytes", a, len(b))
	}
	o := opsFor(a)
	r := bytes.NewReader(b)
	layout := o.emptyLayout()
	f := &Frame{Arch: a, Saved: o.newContext()}
	for _, part := range []any{layout, &f.Info, f.Saved} {
		if err := binary.Read(r, vm.ByteOrder, part); err != nil {
			return nil, err
		}
	}
	f.UContext = o.fromLayout(layout)
	return f, nil
}

// WriteFrame encodes f and copies it to user memory at addr.
func WriteFrame(mem vm.IO, addr uint64, f *Frame) error {
	b, err := f.Marshal()
	if err != nil {
		return err
	}
	return mem.Write(addr, b)
}

// ReadFrame reads and decodes a frame from user memory at addr.
func ReadFrame(mem vm.IO, a Arch, addr uint64) (*Frame, error) {
	b := make([]byte, FrameSize(a))
	if err := mem.Read(addr, b); err != nil {
		return nil, err
	}
	return UnmarshalFrame(a, b)
}
