package preflight

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MinMemoryBytes is the minimum recommended available memory (512MB).
// The HNSW graph and BM25 index are memory-resident.
const MinMemoryBytes = 512 * 1024 * 1024

// CheckMemory checks available system memory. On platforms without
// /proc/meminfo the check is skipped with a pass.
func (c *Checker) CheckMemory() CheckResult {
	result := CheckResult{
		Name:     "memory",
		Required: false,
	}

	available, ok := readAvailableMemory("/proc/meminfo")
	if !ok {
		result.Status = StatusPass
		result.Message = "not measurable on this platform, skipped"
		return result
	}

	if available < MinMemoryBytes {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s available (recommended: %s)",
			FormatBytes(available), FormatBytes(MinMemoryBytes))
		result.Details = "Large corpora may fail to index under memory pressure"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s available", FormatBytes(available))
	return result
}

// readAvailableMemory parses the MemAvailable line of /proc/meminfo.
func readAvailableMemory(path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kib, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kib * 1024, true
	}
	return 0, false
}
