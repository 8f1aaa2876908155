package dataset

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
)

// Fused cells cost well over their on-disk size once split into strings.
const memoryExpansion = 4

// availableMemory is swapped out in tests
var availableMemory = func() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.Available, nil
}

// estimateFootprint approximates the in-memory size of loading files
func estimateFootprint(files []string) uint64 {
	var total uint64
	for _, p := range files {
		if info, err := os.Stat(p); err == nil {
			total += uint64(info.Size())
		}
	}
	return total * memoryExpansion
}
