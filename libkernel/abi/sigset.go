package abi

import (
	"math/bits"
	"strings"
)

// SignalSet is a set of signals. Bit i is set iff signal i+1 is in the set.
// It is compatible with the kernel's sigset_t.
type SignalSet uint64

// SignalSetSize is the size in bytes of a SignalSet in user memory.
const SignalSetSize = 8

// SignalSetOf returns a set containing the given signals.
func SignalSetOf(sigs ...Signal) SignalSet {
	var s SignalSet
	for _, sig := range sigs {
		s.Add(sig)
	}
	return s
}

func signalBit(sig Signal) SignalSet {
	if !sig.IsValid() {
		panic("signal number out of range: " + sig.String())
	}
	return 1 << uint(sig.Index())
}

// Add adds sig to the set. It returns false if sig was already present.
func (s *SignalSet) Add(sig Signal) bool {
	bit := signalBit(sig)
	if *s&bit != 0 {
		return false
	}
	*s |= bit
	return true
}

// Remove removes sig from the set. It returns false if sig was not present.
func (s *SignalSet) Remove(sig Signal) bool {
	bit := signalBit(sig)
	if *s&bit == 0 {
		return false
	}
	*s &^= bit
	return true
}

// Has returns true if sig is in the set.
func (s SignalSet) Has(sig Signal) bool {
	return s&signalBit(sig) != 0
}

// IsEmpty returns true if no signal is in the set.
func (s SignalSet) IsEmpty() bool {
	return s == 0
}

// Dequeue removes and returns the lowest-numbered signal in the set that is
// not in blocked.
func (s *SignalSet) Dequeue(blocked SignalSet) (Signal, bool) {
	ready := *s &^ blocked
	if ready == 0 {
		return 0, false
	}
	i := bits.TrailingZeros64(uint64(ready))
	*s &^= 1 << uint(i)
	return Signal(i + 1), true
}

// Signals returns the members of the set in ascending order.
func (s SignalSet) Signals() []Signal {
	var out []Signal
	for rest := uint64(s); rest != 0; rest &= rest - 1 {
		out = append(out, Signal(bits.TrailingZeros64(rest)+1))
	}
	return out
}

func (s SignalSet) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, sig := range s.Signals() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sig.String())
	}
	b.WriteByte('}')
	return b.String()
}
