package abi

import (
	"reflect"
	"testing"
)

func TestSignalSetAddRemove(t *testing.T) {
	var s SignalSet
	if !s.Add(SIGINT) {
		t.Fatal("first Add should report a change")
	}
	if s.Add(SIGINT) {
		t.Fatal("second Add should report no change")
	}
	if !s.Has(SIGINT) || s.Has(SIGTERM) {
		t.Fatalf("unexpected membership in %s", s)
	}
	if !s.Remove(SIGINT) {
		t.Fatal("Remove of a member should report a change")
	}
	if s.Remove(SIGINT) {
		t.Fatal("Remove of a non-member should report no change")
	}
	if !s.IsEmpty() {
		t.Fatalf("expected empty set, got %s", s)
	}
}

func TestSignalSetBitLayout(t *testing.T) {
	if SignalSetOf(SIGHUP) != 1 {
		t.Errorf("SIGHUP should be bit 0")
	}
	if SignalSetOf(SIGRTMAX) != 1<<63 {
		t.Errorf("SIGRTMAX should be bit 63")
	}
}

func TestSignalSetDequeueLowestFirst(t *testing.T) {
	s := SignalSetOf(SIGTERM, SIGUSR1, SIGRTMIN, SIGHUP)
	var got []Signal
	for {
		sig, ok := s.Dequeue(0)
		if !ok {
			break
		}
		got = append(got, sig)
	}
	want := []Signal{SIGHUP, SIGUSR1, SIGTERM, SIGRTMIN}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("dequeue order = %v, want %v", got, want)
	}
}

func TestSignalSetDequeueSkipsBlocked(t *testing.T) {
	s := SignalSetOf(SIGHUP, SIGINT)
	sig, ok := s.Dequeue(SignalSetOf(SIGHUP))
	if !ok || sig != SIGINT {
		t.Fatalf("got %v %v, want SIGINT", sig, ok)
	}
	if _, ok := s.Dequeue(SignalSetOf(SIGHUP)); ok {
		t.Fatal("only a blocked signal is left; dequeue should fail")
	}
	if !s.Has(SIGHUP) {
		t.Fatal("blocked signal must stay in the set")
	}
}

func TestSignalSetAddInvalidPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for signal 0")
		}
	}()
	var s SignalSet
	s.Add(0)
}

func TestDefaultActions(t *testing.T) {
	for _, tt := range []struct {
		sig  Signal
		want DefaultAction
	}{
		{SIGHUP, DefaultTerminate},
		{SIGKILL, DefaultTerminate},
		{SIGSEGV, DefaultCoreDump},
		{SIGQUIT, DefaultCoreDump},
		{SIGCHLD, DefaultIgnore},
		{SIGWINCH, DefaultIgnore},
		{SIGCONT, DefaultContinue},
		{SIGSTOP, DefaultStop},
		{SIGTTOU, DefaultStop},
		{SIGRTMIN, DefaultIgnore},
		{SIGRTMAX, DefaultIgnore},
	} {
		if got := tt.sig.DefaultAction(); got != tt.want {
			t.Errorf("%s: default action %s, want %s", tt.sig, got, tt.want)
		}
	}
}

func TestSignalString(t *testing.T) {
	for sig, want := range map[Signal]string{
		SIGTERM:      "SIGTERM",
		SIGRTMIN:     "SIGRTMIN",
		SIGRTMIN + 3: "SIGRTMIN+3",
		0:            "signal 0",
	} {
		if got := sig.String(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if got := SignalSetOf(SIGINT, SIGHUP).String(); got != "{SIGHUP, SIGINT}" {
		t.Errorf("set string = %q", got)
	}
}

func TestParseSignalNumber(t *testing.T) {
	if _, err := ParseSignalNumber(0); err != ErrInvalidSignal {
		t.Errorf("0: got %v", err)
	}
	if _, err := ParseSignalNumber(65); err != ErrInvalidSignal {
		t.Errorf("65: got %v", err)
	}
	if sig, err := ParseSignalNumber(64); err != nil || sig != SIGRTMAX {
		t.Errorf("64: got %v %v", sig, err)
	}
}
