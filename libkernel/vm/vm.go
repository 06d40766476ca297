// Package vm provides access to user virtual memory: the IO interface the
// kernel core uses to copy signal frames to and from user stacks, and Space,
// an in-memory address space implementing it.
package vm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBadAddress is returned for unmapped, misaligned or null addresses.
	ErrBadAddress = errors.New("bad address")
	// ErrAccessDenied is returned when the mapping forbids the access.
	ErrAccessDenied = errors.New("access denied")
)

// FaultError records the address at which a user memory access failed.
type FaultError struct {
	Addr  uint64
	Write bool
	Err   error
}

func (e *FaultError) Error() string {
	op := "read"
	if e.Write {
		op = "write"
	}
	return fmt.Sprintf("%s at %#x: %v", op, e.Addr, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// IO reads and writes user virtual memory.
type IO interface {
	// Read fills buf with the bytes starting at addr.
	Read(addr uint64, buf []byte) error
	// Write copies buf to the bytes starting at addr.
	Write(addr uint64, buf []byte) error
}

// ByteOrder is the byte order of every supported user ABI.
var ByteOrder = binary.LittleEndian

// ReadUint64 reads a naturally aligned 64-bit word.
func ReadUint64(io IO, addr uint64) (uint64, error) {
	if addr%8 != 0 {
		return 0, &FaultError{Addr: addr, Err: ErrBadAddress}
	}
	var b [8]byte
	if err := io.Read(addr, b[:]); err != nil {
		return 0, err
	}
	return ByteOrder.Uint64(b[:]), nil
}

// WriteUint64 writes a naturally aligned 64-bit word.
func WriteUint64(io IO, addr, val uint64) error {
	if addr%8 != 0 {
		return &FaultError{Addr: addr, Write: true, Err: ErrBadAddress}
	}
	var b [8]byte
	ByteOrder.PutUint64(b[:], val)
	return io.Write(addr, b[:])
}

// WriteObject encodes a fixed-size value with encoding/binary and writes it
// at addr.
func WriteObject(io IO, addr uint64, v any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, ByteOrder, v); err != nil {
		return err
	}
	return io.Write(addr, buf.Bytes())
}

// ReadObject reads a fixed-size value written by WriteObject.
func ReadObject(io IO, addr uint64, v any) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("vm: %T has no fixed size", v)
	}
	b := make([]byte, size)
	if err := io.Read(addr, b); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(b), ByteOrder, v)
}
