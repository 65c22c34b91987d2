// Package proc provides process discovery and remote memory access on
// Linux hosts. It resolves running processes by command name, parses
// their /proc/<pid>/maps listing into memory regions, derives the list
// of loaded shared objects and reads and writes target memory through
// the kernel's vectored cross-process transfer calls.
package proc

import (
	"errors"

	"github.com/neg4n/tr/pkg/logflags"
)

// ErrProcessNotFound is returned by FindProcess when no running process
// registers the requested command name.
var ErrProcessNotFound = errors.New("process not found")

// Process is a handle to a running process resolved by name. The pid
// and name never change after resolution. The handle owns at most one
// cached region snapshot, replaced wholesale by MapMemoryRegions; a
// single handle is not safe for concurrent mutation, distinct handles
// are safe for concurrent use.
type Process struct {
	pid     int
	name    string
	regions []MemoryRegion
}

// FindProcess resolves name to a process handle by scanning the process
// directory for an exact command-name match. The name must be non-empty;
// if no process matches, the error is ErrProcessNotFound.
func FindProcess(name string) (*Process, error) {
	if name == "" {
		return nil, errors.New("proc: empty process name")
	}
	pid, err := findPidByName(name)
	if err != nil {
		return nil, err
	}
	logger().Debugf("resolved process %q to pid %d", name, pid)
	return &Process{pid: pid, name: name}, nil
}

// Pid returns the process id the handle was resolved to.
func (p *Process) Pid() int { return p.pid }

// Name returns the command name the handle was resolved from.
func (p *Process) Name() string { return p.name }

// MapMemoryRegions takes a fresh snapshot of the target's memory map,
// replacing the cached one. The snapshot is not a live view; the target
// remapping its memory afterwards is not reflected until the next call.
func (p *Process) MapMemoryRegions() error {
	regions, err := ListMemoryRegions(p.pid)
	if err != nil {
		return err
	}
	p.regions = regions
	return nil
}

// MemoryRegions returns the snapshot taken by the last MapMemoryRegions
// call, nil if none was taken yet.
func (p *Process) MemoryRegions() []MemoryRegion { return p.regions }

// Modules derives the loaded shared-object list from the cached region
// snapshot.
func (p *Process) Modules() []string { return Modules(p.regions) }

// ReadMemory reads len(buf) bytes at addr in the target's address
// space. See the package-level ReadMemory for the outcome contract.
func (p *Process) ReadMemory(buf []byte, addr uint64) (int, error) {
	return ReadMemory(p.pid, buf, addr)
}

// WriteMemory writes data at addr in the target's address space. See
// the package-level WriteMemory for the outcome contract.
func (p *Process) WriteMemory(addr uint64, data []byte) (int, error) {
	return WriteMemory(p.pid, addr, data)
}

// CallTarget resolves the destination of the 5-byte relative call
// instruction at addr in the target.
func (p *Process) CallTarget(addr uint64) (uint64, error) {
	return CallTarget(p.pid, addr)
}

func logger() logflags.Logger {
	return logflags.ProcLogger()
}
