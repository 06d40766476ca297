package signal

import (
	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
)

// PendingSignals records signals that have been sent but not yet delivered.
//
// A standard signal is pending at most once; sending it again while pending
// is dropped. Real-time signals are queued, and instances of the same signal
// are delivered in the order they were sent.
//
// PendingSignals does no locking of its own.
type PendingSignals struct {
	set abi.SignalSet

	std [abi.SIGRTMIN]*arch.SignalInfo
	rt  [abi.SIGRTMAX - abi.SIGRTMIN + 1][]arch.SignalInfo
}

// Set returns the signals that have at least one undelivered instance.
func (p *PendingSignals) Set() abi.SignalSet {
	return p.set
}

// PutSignal queues info. It returns false if info is a standard signal that
// is already pending, in which case the stored info is kept, or if its signal
// number is out of range.
func (p *PendingSignals) PutSignal(info arch.SignalInfo) bool {
	sig := info.Signal()
	if !sig.IsValid() {
		return false
	}
	added := p.set.Add(sig)

	if sig.IsRealtime() {
		i := sig - abi.SIGRTMIN
		p.rt[i] = append(p.rt[i], info)
		return true
	}
	if !added {
		return false
	}
	p.std[sig] = &info
	return true
}

// DequeueSignal removes and returns the lowest-numbered pending signal that
// is not in blocked.
func (p *PendingSignals) DequeueSignal(blocked abi.SignalSet) (arch.SignalInfo, bool) {
	sig, ok := p.set.Dequeue(blocked)
	if !ok {
		return arch.SignalInfo{}, false
	}
	if sig.IsRealtime() {
		i := sig - abi.SIGRTMIN
		q := p.rt[i]
		info := q[0]
		q[0] = arch.SignalInfo{}
		p.rt[i] = q[1:]
		if len(p.rt[i]) > 0 {
			p.set.Add(sig)
		} else {
			p.rt[i] = nil
		}
		return info, true
	}
	info := p.std[sig]
	p.std[sig] = nil
	return *info, true
}

// Discard drops every pending instance of sig.
func (p *PendingSignals) Discard(sig abi.Signal) {
	if !p.set.Remove(sig) {
		return
	}
	if sig.IsRealtime() {
		p.rt[sig-abi.SIGRTMIN] = nil
	} else {
		p.std[sig] = nil
	}
}
