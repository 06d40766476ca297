package abi

import "testing"

func TestWaitStatus(t *testing.T) {
	for _, tt := range []struct {
		name      string
		ws        WaitStatus
		raw       int32
		exited    bool
		code      int32
		signaled  bool
		sig       Signal
		core      bool
		stopped   bool
		stopSig   Signal
		continued bool
	}{
		{name: "exited 0", ws: Exited(0), raw: 0, exited: true},
		{name: "exited 42", ws: Exited(42), raw: 42 << 8, exited: true, code: 42, sig: 0},
		{name: "exited 300", ws: Exited(300), raw: 44 << 8, exited: true, code: 44},
		{name: "killed", ws: Signaled(SIGKILL, false), raw: 9, code: -1, signaled: true, sig: SIGKILL},
		{name: "dumped", ws: Signaled(SIGSEGV, true), raw: 11 | 0x80, code: -1, signaled: true, sig: SIGSEGV, core: true},
		{name: "stopped", ws: Stopped(SIGTSTP), raw: 20<<8 | 0x7f, code: -1, stopped: true, stopSig: SIGTSTP},
		{name: "continued", ws: Continued(), raw: 0xffff, code: -1, continued: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ws := tt.ws
			if ws.Raw() != tt.raw {
				t.Errorf("raw %#x, want %#x", ws.Raw(), tt.raw)
			}
			if ws.Exited() != tt.exited || ws.ExitStatus() != tt.code {
				t.Errorf("exited=%v code=%d", ws.Exited(), ws.ExitStatus())
			}
			if ws.Signaled() != tt.signaled || ws.Signal() != tt.sig || ws.CoreDump() != tt.core {
				t.Errorf("signaled=%v signal=%s core=%v", ws.Signaled(), ws.Signal(), ws.CoreDump())
			}
			if ws.Stopped() != tt.stopped || ws.StopSignal() != tt.stopSig {
				t.Errorf("stopped=%v stop signal=%s", ws.Stopped(), ws.StopSignal())
			}
			if ws.Continued() != tt.continued {
				t.Errorf("continued=%v", ws.Continued())
			}
		})
	}
}
