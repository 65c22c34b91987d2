package proc

import (
	"sort"
	"strings"
)

// Modules derives the deduplicated, lexicographically sorted list of
// shared-object filenames mapped by regions. Deduplication is over
// filenames, not addresses: several mapped ranges of the same library
// collapse to a single entry.
func Modules(regions []MemoryRegion) []string {
	modules := make([]string, 0, len(regions))
	for i := range regions {
		if strings.Contains(regions[i].Filename, ".so") {
			modules = append(modules, regions[i].Filename)
		}
	}
	sort.Strings(modules)

	out := modules[:0]
	prev := ""
	for i, m := range modules {
		if i == 0 || m != prev {
			out = append(out, m)
		}
		prev = m
	}
	return out
}
