package proc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MemoryRegion describes one row of /proc/<pid>/maps: a contiguous,
// uniformly-permissioned span of the target's virtual address space.
//
//	address           perms offset  dev   inode   pathname
//	08048000-08056000 r-xp 00000000 03:0c 64593   /usr/sbin/gpm
type MemoryRegion struct {
	// Start and End delimit the region in the target's address space,
	// Start inclusive, End exclusive.
	Start, End uint64

	// Page permissions of the region. A region that is not shared is
	// private to the process.
	Readable, Writable, Executable, Shared bool

	// Offset into the backing file where the mapping begins, 0 for
	// anonymous mappings.
	Offset uint64

	// Major and minor number of the device the backing file lives on.
	DeviceMajor, DeviceMinor uint64

	// Inode of the backing file, 0 for anonymous mappings.
	Inode uint64

	// Path names the backing file, or holds the raw bracketed name of a
	// special mapping ("[heap]", "[stack]", "[vdso]"). Empty for
	// anonymous mappings.
	Path string

	// Special is set for pseudo-mappings denoted by a bracketed name
	// instead of a backing file.
	Special bool

	// Filename is the basename of Path. For special mappings the
	// brackets are stripped ("[heap]" becomes "heap"). Empty when Path
	// is empty.
	Filename string
}

// Size returns the length of the region in bytes.
func (r *MemoryRegion) Size() uint64 { return r.End - r.Start }

// Contains reports whether addr falls inside the region.
func (r *MemoryRegion) Contains(addr uint64) bool { return addr >= r.Start && addr < r.End }

// PermString renders the region's permissions in the four character
// form used by the kernel listing.
func (r *MemoryRegion) PermString() string {
	perm := []byte("---p")
	if r.Readable {
		perm[0] = 'r'
	}
	if r.Writable {
		perm[1] = 'w'
	}
	if r.Executable {
		perm[2] = 'x'
	}
	if r.Shared {
		perm[3] = 's'
	}
	return string(perm)
}

// String renders the region in the format of the listing it was parsed
// from.
func (r *MemoryRegion) String() string {
	s := fmt.Sprintf("%08x-%08x %s %08x %02x:%02x %d", r.Start, r.End, r.PermString(), r.Offset, r.DeviceMajor, r.DeviceMinor, r.Inode)
	if r.Path != "" {
		s += " " + r.Path
	}
	return s
}

// MalformedMapsError signals a listing line that does not match the
// column layout documented in proc(5). Lineno is 1-based.
type MalformedMapsError struct {
	Lineno int
	Line   string
	Reason string
}

func (e *MalformedMapsError) Error() string {
	return fmt.Sprintf("malformed maps listing on line %d: %q (%s)", e.Lineno, e.Line, e.Reason)
}

// ParseMemoryMap decodes a memory map listing, one region per line,
// preserving the kernel's ascending address order. The result is a
// point-in-time snapshot; a malformed line aborts the parse.
func ParseMemoryMap(rd io.Reader) ([]MemoryRegion, error) {
	regions := make([]MemoryRegion, 0)
	scan := bufio.NewScanner(rd)
	lineno := 0
	for scan.Scan() {
		lineno++
		line := scan.Text()
		if line == "" {
			continue
		}
		region, err := parseMapsLine(lineno, line)
		if err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}

func parseMapsLine(lineno int, in string) (MemoryRegion, error) {
	malformed := func(reason string) (MemoryRegion, error) {
		return MemoryRegion{}, &MalformedMapsError{Lineno: lineno, Line: in, Reason: reason}
	}

	// Fields 0..4 are single-space separated; the kernel pads the
	// optional pathname with extra spaces, which all end up in the
	// sixth field.
	fields := strings.SplitN(in, " ", 6)
	if len(fields) < 5 {
		return malformed("wrong number of fields")
	}

	var r MemoryRegion
	var err error

	v := strings.Split(fields[0], "-")
	if len(v) != 2 {
		return malformed("bad address range")
	}
	r.Start, err = strconv.ParseUint(v[0], 16, 64)
	if err != nil {
		return malformed(err.Error())
	}
	r.End, err = strconv.ParseUint(v[1], 16, 64)
	if err != nil {
		return malformed(err.Error())
	}
	if r.Start >= r.End {
		return malformed("start not below end")
	}

	perm := fields[1]
	if len(perm) < 4 {
		return malformed("permissions column too short")
	}
	r.Readable = perm[0] == 'r'
	r.Writable = perm[1] == 'w'
	r.Executable = perm[2] == 'x'
	r.Shared = perm[3] != 'p'

	r.Offset, err = strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return malformed(err.Error())
	}

	dev := strings.Split(fields[3], ":")
	if len(dev) != 2 {
		return malformed("bad device field")
	}
	r.DeviceMajor, err = strconv.ParseUint(dev[0], 16, 64)
	if err != nil {
		return malformed(err.Error())
	}
	r.DeviceMinor, err = strconv.ParseUint(dev[1], 16, 64)
	if err != nil {
		return malformed(err.Error())
	}

	r.Inode, err = strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return malformed(err.Error())
	}

	if len(fields) == 6 {
		if name := strings.TrimLeft(fields[5], " "); name != "" {
			r.Path = name
			r.Special = name[0] == '['
			r.Filename = regionFilename(name)
		}
	}
	return r, nil
}

// regionFilename returns the text after the last path separator. The
// brackets of special mapping names are stripped.
func regionFilename(name string) string {
	if name[0] == '[' {
		return strings.TrimSuffix(strings.TrimPrefix(name, "["), "]")
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
