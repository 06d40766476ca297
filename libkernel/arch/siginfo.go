package arch

import (
	"encoding/binary"
	"fmt"

	"github.com/hostkern/hostkern/libkernel/abi"
)

// SignalInfoSize is the size of siginfo_t.
const SignalInfoSize = 128

// SignalInfo is siginfo_t. Fields holds the union whose interpretation depends
// on Signo and Code.
type SignalInfo struct {
	Signo  int32
	Errno  int32
	Code   int32
	_      int32
	Fields [SignalInfoSize - 16]byte
}

// KernelSignalInfo returns the info of a signal raised by the kernel itself.
func KernelSignalInfo(sig abi.Signal) SignalInfo {
	return SignalInfo{Signo: int32(sig), Code: abi.SI_KERNEL}
}

// UserSignalInfo returns the info of a signal sent by process pid.
func UserSignalInfo(sig abi.Signal, code int32, pid, uid uint32) SignalInfo {
	info := SignalInfo{Signo: int32(sig), Code: code}
	info.SetPID(pid)
	info.SetUID(uid)
	return info
}

// FaultSignalInfo returns the info of a memory fault at addr.
func FaultSignalInfo(sig abi.Signal, code int32, addr uint64) SignalInfo {
	info := SignalInfo{Signo: int32(sig), Code: code}
	info.SetAddr(addr)
	return info
}

// Signal returns the signal number, or 0 if Signo is not a valid signal.
func (s *SignalInfo) Signal() abi.Signal {
	sig, err := abi.ParseSignalNumber(int(s.Signo))
	if err != nil {
		return 0
	}
	return sig
}

// PID is si_pid: the sender for kill-style signals, the child for SIGCHLD.
func (s *SignalInfo) PID() uint32 { return binary.LittleEndian.Uint32(s.Fields[0:4]) }

// SetPID sets si_pid.
func (s *SignalInfo) SetPID(pid uint32) { binary.LittleEndian.PutUint32(s.Fields[0:4], pid) }

// UID is si_uid.
func (s *SignalInfo) UID() uint32 { return binary.LittleEndian.Uint32(s.Fields[4:8]) }

// SetUID sets si_uid.
func (s *SignalInfo) SetUID(uid uint32) { binary.LittleEndian.PutUint32(s.Fields[4:8], uid) }

// Status is si_status of a SIGCHLD.
func (s *SignalInfo) Status() int32 { return int32(binary.LittleEndian.Uint32(s.Fields[8:12])) }

// SetStatus sets si_status of a SIGCHLD.
func (s *SignalInfo) SetStatus(status int32) {
	binary.LittleEndian.PutUint32(s.Fields[8:12], uint32(status))
}

// Addr is si_addr of a fault signal.
func (s *SignalInfo) Addr() uint64 { return binary.LittleEndian.Uint64(s.Fields[0:8]) }

// SetAddr sets si_addr.
func (s *SignalInfo) SetAddr(addr uint64) { binary.LittleEndian.PutUint64(s.Fields[0:8], addr) }

func (s SignalInfo) String() string {
	return fmt.Sprintf("SignalInfo{signo: %s, code: %d}", s.Signal(), s.Code)
}
