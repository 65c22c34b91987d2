package proc

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// findPidByName scans /proc for numeric entries and compares each
// entry's comm file against name. Entries that are unreadable or vanish
// mid-scan are skipped; a child process exiting must not abort the scan.
func findPidByName(name string) (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
		if err != nil {
			continue
		}
		if strings.TrimSuffix(string(comm), "\n") == name {
			return pid, nil
		}
	}
	return 0, ErrProcessNotFound
}

// ListMemoryRegions parses the memory map listing of pid into a
// snapshot. An unopenable listing (vanished process, permission denied)
// is reported as an error wrapping the OS failure, distinguishable from
// a readable but empty listing which yields an empty slice. A vanished
// process satisfies errors.Is(err, os.ErrNotExist).
func ListMemoryRegions(pid int) ([]MemoryRegion, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	regions, err := ParseMemoryMap(f)
	if err != nil {
		return nil, err
	}
	logger().Debugf("mapped %d regions of pid %d", len(regions), pid)
	return regions, nil
}
