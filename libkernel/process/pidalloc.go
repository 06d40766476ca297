package process

import (
	"errors"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// ErrPidExhausted is returned when every pid up to the limit is in use.
var ErrPidExhausted = errors.New("no free pid")

// PidAllocator hands out the lowest unused id. Pid 0 is never allocated.
type PidAllocator struct {
	mu   sync.Mutex
	used *bitset.BitSet
	max  Pid
}

// NewPidAllocator returns an allocator for ids in 1..max.
func NewPidAllocator(max Pid) *PidAllocator {
	used := bitset.New(uint(max) + 1)
	used.Set(0)
	return &PidAllocator{used: used, max: max}
}

// Alloc reserves and returns the lowest free id.
func (a *PidAllocator) Alloc() (Pid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.used.NextClear(1)
	if !ok || id > uint(a.max) {
		return 0, ErrPidExhausted
	}
	a.used.Set(id)
	return Pid(id), nil
}

// Release returns pid to the pool.
func (a *PidAllocator) Release(pid Pid) {
	if pid == 0 {
		return
	}
	a.mu.Lock()
	a.used.Clear(uint(pid))
	a.mu.Unlock()
}
