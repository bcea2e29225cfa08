package runner

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quartzbi/beacon/errors"
)

// memoryPerWorkerGB approximates the footprint of one in-flight execution
// with a headless-browser render.
const memoryPerWorkerGB = 1.0

// memoryBufferGB is reserved for the rest of the host.
const memoryBufferGB = 2.0

func memoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

func safeWorkerCount(availableGB float64) int {
	if availableGB < memoryBufferGB {
		return 1
	}
	recommended := int((availableGB - memoryBufferGB) / memoryPerWorkerGB)
	if recommended < 1 {
		return 1
	}
	if recommended > 32 {
		return 32
	}
	return recommended
}

// checkMemoryPressure returns a warning when the configured worker count
// exceeds what the available memory supports, or "" when it fits.
func checkMemoryPressure(workers int) string {
	total, available, err := memoryStats()
	if err != nil {
		return ""
	}

	availableGB := float64(available) / 1024 / 1024 / 1024
	totalGB := float64(total) / 1024 / 1024 / 1024
	recommended := safeWorkerCount(availableGB)

	if workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB)",
			workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}
