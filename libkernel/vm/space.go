package vm

import (
	"fmt"
	"sync"
)

// PageSize is the granularity of Space mappings.
const PageSize = 4096

// Perm is a mapping permission mask.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite

	PermReadWrite = PermRead | PermWrite
)

type page struct {
	perm Perm
	data [PageSize]byte
}

// Space is a sparse, page-granular address space kept in host memory. The
// zero value is an empty space.
type Space struct {
	mu    sync.Mutex
	pages map[uint64]*page
}

// NewSpace returns an empty address space.
func NewSpace() *Space {
	return &Space{pages: make(map[uint64]*page)}
}

func pageDown(addr uint64) uint64 { return addr &^ (PageSize - 1) }

// Map maps the pages covering [addr, addr+length) with perm. Pages that are
// already mapped keep their contents and get the new permission.
func (s *Space) Map(addr, length uint64, perm Perm) error {
	if length == 0 {
		return nil
	}
	end := addr + length
	if end < addr || addr == 0 {
		return fmt.Errorf("map %#x+%#x: %w", addr, length, ErrBadAddress)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pages == nil {
		s.pages = make(map[uint64]*page)
	}
	for p := pageDown(addr); p < end; p += PageSize {
		if pg, ok := s.pages[p]; ok {
			pg.perm = perm
			continue
		}
		s.pages[p] = &page{perm: perm}
	}
	return nil
}

// Unmap removes the pages covering [addr, addr+length).
func (s *Space) Unmap(addr, length uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := pageDown(addr); p < addr+length; p += PageSize {
		delete(s.pages, p)
	}
}

// access walks the pages of [addr, addr+len(buf)) and calls fn on each
// overlapping chunk. Nothing is copied unless the whole range is accessible.
func (s *Space) access(addr uint64, buf []byte, write bool, fn func(pg *page, off uint64, chunk []byte)) error {
	need := PermRead
	if write {
		need = PermWrite
	}
	end := addr + uint64(len(buf))
	if addr == 0 || end < addr {
		return &FaultError{Addr: addr, Write: write, Err: ErrBadAddress}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for p := pageDown(addr); p < end; p += PageSize {
		pg, ok := s.pages[p]
		if !ok {
			return &FaultError{Addr: max(p, addr), Write: write, Err: ErrBadAddress}
		}
		if pg.perm&need == 0 {
			return &FaultError{Addr: max(p, addr), Write: write, Err: ErrAccessDenied}
		}
	}
	for cur := addr; cur < end; {
		p := pageDown(cur)
		off := cur - p
		n := min(PageSize-off, end-cur)
		fn(s.pages[p], off, buf[cur-addr:cur-addr+n])
		cur += n
	}
	return nil
}

// Read implements IO.
func (s *Space) Read(addr uint64, buf []byte) error {
	return s.access(addr, buf, false, func(pg *page, off uint64, chunk []byte) {
		copy(chunk, pg.data[off:])
	})
}

// Write implements IO.
func (s *Space) Write(addr uint64, buf []byte) error {
	return s.access(addr, buf, true, func(pg *page, off uint64, chunk []byte) {
		copy(pg.data[off:], chunk)
	})
}
