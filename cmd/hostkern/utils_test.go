package main

import (
	"errors"
	"testing"

	"github.com/hostkern/hostkern/libkernel/abi"
)

func TestParseSignal(t *testing.T) {
	for _, tt := range []struct {
		raw string
		exp abi.Signal
	}{
		{"15", abi.SIGTERM},
		{"SIGTERM", abi.SIGTERM},
		{"TERM", abi.SIGTERM},
		{"KILL", abi.SIGKILL},
		{"SIGRTMIN", abi.SIGRTMIN},
		{"SIGRTMIN+3", abi.SIGRTMIN + 3},
		{"64", abi.SIGRTMAX},
		{"sigusr1", abi.SIGUSR1},
	} {
		s, err := parseSignal(tt.raw)
		if err != nil {
			t.Errorf("%s: %v", tt.raw, err)
			continue
		}
		if s != tt.exp {
			t.Errorf("%s: expected %s, got %s", tt.raw, tt.exp, s)
		}
	}
}

func TestParseSignalInvalid(t *testing.T) {
	for _, raw := range []string{"0", "65", "-1", "NOSUCHSIGNAL", ""} {
		if _, err := parseSignal(raw); err == nil {
			t.Errorf("%q: expected an error", raw)
		}
	}
	if _, err := parseSignal("65"); !errors.Is(err, abi.ErrInvalidSignal) {
		t.Errorf("expected ErrInvalidSignal, got %v", err)
	}
}
