package proc

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const gpmLine = "08048000-08056000 r-xp 00000000 03:0c 64593      /usr/sbin/gpm"

const listing = `00400000-00452000 r-xp 00000000 08:02 173521     /usr/bin/dbus-daemon
0061e000-0063f000 rw-p 00000000 00:00 0          [heap]
7f3c60000000-7f3c60021000 rw-p 00000000 00:00 0
7f3c641b6000-7f3c64372000 r-xp 00000000 08:02 135522     /usr/lib64/libc-2.15.so
7f3c64372000-7f3c64571000 ---p 001bc000 08:02 135522     /usr/lib64/libc-2.15.so
7fffb2c0d000-7fffb2c2e000 rw-s 00000000 00:00 0          [stack]
ffffffffff600000-ffffffffff601000 r-xp 00000000 00:00 0  [vsyscall]
`

func TestParseMapsLineFileBacked(t *testing.T) {
	got, err := parseMapsLine(1, gpmLine)
	if err != nil {
		t.Fatalf("parseMapsLine: %v", err)
	}
	want := MemoryRegion{
		Start:       0x08048000,
		End:         0x08056000,
		Readable:    true,
		Executable:  true,
		DeviceMajor: 0x03,
		DeviceMinor: 0x0c,
		Inode:       64593,
		Path:        "/usr/sbin/gpm",
		Filename:    "gpm",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestParseMapsLineSpecial(t *testing.T) {
	for _, tc := range []struct {
		line     string
		filename string
	}{
		{"0061e000-0063f000 rw-p 00000000 00:00 0          [heap]", "heap"},
		{"7fffb2c0d000-7fffb2c2e000 rw-p 00000000 00:00 0  [stack]", "stack"},
		{"7fffb2dff000-7fffb2e00000 r-xp 00000000 00:00 0  [vdso]", "vdso"},
	} {
		got, err := parseMapsLine(1, tc.line)
		if err != nil {
			t.Fatalf("parseMapsLine(%q): %v", tc.line, err)
		}
		if !got.Special {
			t.Errorf("%q: expected special region", tc.line)
		}
		if got.Filename != tc.filename {
			t.Errorf("%q: filename %q, want %q", tc.line, got.Filename, tc.filename)
		}
		if got.Path != "["+tc.filename+"]" {
			t.Errorf("%q: path %q, expected raw bracketed name", tc.line, got.Path)
		}
	}
}

func TestParseMapsLineAnonymous(t *testing.T) {
	// Anonymous lines come both with and without the trailing space the
	// kernel emits after the inode column.
	for _, line := range []string{
		"7f3c60000000-7f3c60021000 rw-p 00000000 00:00 0",
		"7f3c60000000-7f3c60021000 rw-p 00000000 00:00 0 ",
	} {
		got, err := parseMapsLine(1, line)
		if err != nil {
			t.Fatalf("parseMapsLine(%q): %v", line, err)
		}
		if got.Path != "" || got.Filename != "" || got.Special {
			t.Errorf("%q: expected nameless region, got path=%q filename=%q special=%v", line, got.Path, got.Filename, got.Special)
		}
		if !got.Readable || !got.Writable || got.Executable || got.Shared {
			t.Errorf("%q: wrong permissions: %+v", line, got)
		}
		if got.Offset != 0 || got.Inode != 0 {
			t.Errorf("%q: expected zero offset and inode", line)
		}
	}
}

func TestParseMapsLineShared(t *testing.T) {
	got, err := parseMapsLine(1, "7f3c64b9c000-7f3c64b9d000 rw-s 00000000 08:02 135533     /dev/shm/ring")
	if err != nil {
		t.Fatalf("parseMapsLine: %v", err)
	}
	if !got.Shared {
		t.Errorf("expected shared region")
	}
}

func TestParseMapsLineDeletedLibrary(t *testing.T) {
	// The "(deleted)" suffix the kernel appends contains a space; it
	// stays part of the name.
	got, err := parseMapsLine(1, "7f3c64372000-7f3c64571000 r-xp 001bc000 08:02 135522     /usr/lib64/libfoo.so.6 (deleted)")
	if err != nil {
		t.Fatalf("parseMapsLine: %v", err)
	}
	if got.Path != "/usr/lib64/libfoo.so.6 (deleted)" {
		t.Errorf("path = %q", got.Path)
	}
	if got.Filename != "libfoo.so.6 (deleted)" {
		t.Errorf("filename = %q", got.Filename)
	}
}

func TestParseMapsLineOffsetAndDevice(t *testing.T) {
	got, err := parseMapsLine(1, "7f3c64372000-7f3c64571000 r--p 001bc000 fd:01 135522     /usr/lib64/libc-2.15.so")
	if err != nil {
		t.Fatalf("parseMapsLine: %v", err)
	}
	if got.Offset != 0x1bc000 {
		t.Errorf("offset = %#x, want 0x1bc000", got.Offset)
	}
	if got.DeviceMajor != 0xfd || got.DeviceMinor != 0x01 {
		t.Errorf("device = %x:%x, want fd:1", got.DeviceMajor, got.DeviceMinor)
	}
}

func TestParseMemoryMapOrdering(t *testing.T) {
	regions, err := ParseMemoryMap(strings.NewReader(listing))
	if err != nil {
		t.Fatalf("ParseMemoryMap: %v", err)
	}
	if len(regions) != 7 {
		t.Fatalf("expected 7 regions, got %d", len(regions))
	}
	for i := range regions {
		if regions[i].Start >= regions[i].End {
			t.Errorf("region %d: start %#x not below end %#x", i, regions[i].Start, regions[i].End)
		}
		if i > 0 && regions[i].Start < regions[i-1].End {
			t.Errorf("region %d overlaps or reorders region %d", i, i-1)
		}
	}
}

func TestParseMemoryMapIdempotent(t *testing.T) {
	first, err := ParseMemoryMap(strings.NewReader(listing))
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	second, err := ParseMemoryMap(strings.NewReader(listing))
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("parsing the same listing twice produced different snapshots")
	}
}

func TestParseMemoryMapEmpty(t *testing.T) {
	regions, err := ParseMemoryMap(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ParseMemoryMap: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("expected empty snapshot, got %d regions", len(regions))
	}
}

func TestParseMemoryMapMalformed(t *testing.T) {
	for _, tc := range []struct {
		in     string
		reason string
	}{
		{"garbage", "wrong number of fields"},
		{"08048000 r-xp 00000000 03:0c 64593", "bad address range"},
		{"08056000-08048000 r-xp 00000000 03:0c 64593", "start not below end"},
		{"08048000-08056000 rx 00000000 03:0c 64593", "permissions column too short"},
		{"08048000-08056000 r-xp 00000000 030c 64593", "bad device field"},
		{"08048000-08056000 r-xp zzz 03:0c 64593", "syntax"},
		{"08048000-08056000 r-xp 00000000 03:0c deadbeef", "syntax"},
	} {
		in := gpmLine + "\n" + tc.in + "\n"
		_, err := ParseMemoryMap(strings.NewReader(in))
		if err == nil {
			t.Errorf("%q: expected error", tc.in)
			continue
		}
		var merr *MalformedMapsError
		if !errors.As(err, &merr) {
			t.Errorf("%q: expected *MalformedMapsError, got %T", tc.in, err)
			continue
		}
		if merr.Lineno != 2 {
			t.Errorf("%q: line number %d, want 2", tc.in, merr.Lineno)
		}
		if !strings.Contains(merr.Reason, tc.reason) {
			t.Errorf("%q: reason %q does not mention %q", tc.in, merr.Reason, tc.reason)
		}
	}
}

func TestRegionStringRoundTrip(t *testing.T) {
	orig, err := parseMapsLine(1, gpmLine)
	if err != nil {
		t.Fatalf("parseMapsLine: %v", err)
	}
	again, err := parseMapsLine(1, orig.String())
	if err != nil {
		t.Fatalf("reparse of %q: %v", orig.String(), err)
	}
	if !reflect.DeepEqual(orig, again) {
		t.Errorf("round trip changed the region:\n%+v\n%+v", orig, again)
	}
}

func TestRegionSizeContains(t *testing.T) {
	r := MemoryRegion{Start: 0x1000, End: 0x3000}
	if r.Size() != 0x2000 {
		t.Errorf("size = %#x", r.Size())
	}
	for addr, want := range map[uint64]bool{0xfff: false, 0x1000: true, 0x2fff: true, 0x3000: false} {
		if r.Contains(addr) != want {
			t.Errorf("Contains(%#x) = %v, want %v", addr, !want, want)
		}
	}
}
