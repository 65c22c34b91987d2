package proc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrPartialTransfer reports a transfer that completed without a
// syscall error but moved fewer bytes than requested, typically because
// the range straddles a page that is not mapped in the target. The byte
// count returned alongside it is valid.
var ErrPartialTransfer = errors.New("partial memory transfer")

// TransferError is returned when the kernel rejects a cross-process
// transfer outright. It carries the host error code.
type TransferError struct {
	Op   string // "read" or "write"
	Pid  int
	Addr uint64
	Len  int
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("could not %s %d bytes at %#x in pid %d: %v", e.Op, e.Len, e.Addr, e.Pid, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ReadMemory reads len(buf) bytes at addr in the address space of pid
// through a single vectored transfer. It returns the number of bytes
// read: len(buf) with a nil error on full success, a smaller count
// together with ErrPartialTransfer when the transfer stopped short, and
// 0 together with a *TransferError when the kernel reports failure.
// Every call is independent; no handle or attach step is required.
func ReadMemory(pid int, buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := processVmRead(pid, uintptr(addr), buf)
	if err != nil {
		logger().Debugf("read of %d bytes at %#x in pid %d failed: %v", len(buf), addr, pid, err)
		return 0, &TransferError{Op: "read", Pid: pid, Addr: addr, Len: len(buf), Err: err}
	}
	if n != len(buf) {
		logger().Debugf("partial read at %#x in pid %d: %d of %d bytes", addr, pid, n, len(buf))
		return n, ErrPartialTransfer
	}
	return n, nil
}

// WriteMemory writes data at addr in the address space of pid through a
// single vectored transfer. The outcome contract is symmetric to
// ReadMemory: a write that stops short, for example at the edge of the
// last mapped page of a region, returns the transferred count together
// with ErrPartialTransfer.
func WriteMemory(pid int, addr uint64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	n, err := processVmWrite(pid, uintptr(addr), data)
	if err != nil {
		logger().Debugf("write of %d bytes at %#x in pid %d failed: %v", len(data), addr, pid, err)
		return 0, &TransferError{Op: "write", Pid: pid, Addr: addr, Len: len(data), Err: err}
	}
	if n != len(data) {
		logger().Debugf("partial write at %#x in pid %d: %d of %d bytes", addr, pid, n, len(data))
		return n, ErrPartialTransfer
	}
	return n, nil
}

// CallTarget decodes the operand of the 5-byte relative call
// instruction at addr in pid: the 4-byte little-endian displacement at
// addr+1, relative to the end of the instruction. The displacement is
// sign-extended, so backward calls resolve correctly. Read failures are
// propagated; a short read of the operand is reported as a
// *TransferError rather than resolved from garbage.
func CallTarget(pid int, addr uint64) (uint64, error) {
	operand := make([]byte, 4)
	n, err := ReadMemory(pid, operand, addr+1)
	if err != nil {
		if errors.Is(err, ErrPartialTransfer) {
			return 0, &TransferError{Op: "read", Pid: pid, Addr: addr + 1, Len: 4, Err: fmt.Errorf("short operand read: %d of 4 bytes", n)}
		}
		return 0, err
	}
	disp := int32(binary.LittleEndian.Uint32(operand))
	return uint64(int64(addr) + 5 + int64(disp)), nil
}

// ReadUint32 reads a little-endian 32-bit value at addr in the target.
func (p *Process) ReadUint32(addr uint64) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := p.ReadMemory(buf, addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadUint64 reads a little-endian 64-bit value at addr in the target.
func (p *Process) ReadUint64(addr uint64) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := p.ReadMemory(buf, addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}
