package task

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hostkern/hostkern/libkernel/abi"
	"github.com/hostkern/hostkern/libkernel/arch"
)

var stopSignals = []abi.Signal{abi.SIGSTOP, abi.SIGTSTP, abi.SIGTTIN, abi.SIGTTOU}

// prepareSignal applies the effects a signal has at the moment it is sent,
// before the target runs: SIGCONT resumes a stopped process even if it is
// blocked or ignored, and a stop signal cancels a pending SIGCONT and vice
// versa.
func (pd *ProcessData) prepareSignal(sig abi.Signal) {
	switch {
	case sig == abi.SIGCONT:
		for _, s := range stopSignals {
			pd.Signal.Discard(s)
		}
		pd.resume()
	case sig.IsStopSignal():
		pd.Signal.Discard(abi.SIGCONT)
	}
}

// wakeForKill lets stopped threads run so that they can die.
func (pd *ProcessData) wakeForKill(sig abi.Signal) {
	if sig == abi.SIGKILL {
		pd.state.Wake()
	}
}

// checkSignalInfo rejects a siginfo whose raw signal number is not 1..64.
func checkSignalInfo(info arch.SignalInfo) error {
	_, err := abi.ParseSignalNumber(int(info.Signo))
	return err
}

// SendSignalToThread sends info to thread tid. Ignored signals are dropped.
func (k *Kernel) SendSignalToThread(tid Pid, info arch.SignalInfo) error {
	t, err := k.Thread(tid)
	if err != nil {
		return err
	}
	if err := checkSignalInfo(info); err != nil {
		return fmt.Errorf("send to thread %d: %w", tid, err)
	}
	sig := info.Signal()
	pd := t.proc
	pd.prepareSignal(sig)
	if t.Signal.SendSignal(info) {
		t.Interrupt()
	}
	pd.wakeForKill(sig)
	return nil
}

// SendSignalToProcess sends info to process pid. Ignored signals are
// dropped.
func (k *Kernel) SendSignalToProcess(pid Pid, info arch.SignalInfo) error {
	pd, err := k.Process(pid)
	if err != nil {
		return err
	}
	if err := checkSignalInfo(info); err != nil {
		return fmt.Errorf("send to process %d: %w", pid, err)
	}
	k.sendToProcess(pd, info)
	return nil
}

func (k *Kernel) sendToProcess(pd *ProcessData, info arch.SignalInfo) {
	sig := info.Signal()
	pd.prepareSignal(sig)
	if tid, ok := pd.Signal.SendSignal(info); ok {
		if t, err := k.Thread(tid); err == nil {
			t.Interrupt()
		}
	}
	pd.wakeForKill(sig)
}

// SendSignalToGroup sends info to every process in process group pgid.
func (k *Kernel) SendSignalToGroup(pgid Pid, info arch.SignalInfo) error {
	if err := checkSignalInfo(info); err != nil {
		return fmt.Errorf("send to group %d: %w", pgid, err)
	}
	sent := 0
	for _, pd := range k.Processes() {
		if pd.Proc.IsZombie() || pd.Proc.Group().PGID() != pgid {
			continue
		}
		k.sendToProcess(pd, info)
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("process group %d: %w", pgid, ErrNoSuchProcess)
	}
	logrus.Debugf("sent %s to %d processes in group %d", info.Signal(), sent, pgid)
	return nil
}
