//go:build linux

package supervisor

import (
	"bytes"
	"os"
	"strconv"
)

// processStartTicks reads field 22 (starttime, in clock ticks since boot) of
// /proc/<pid>/stat. A relay's PID plus its start ticks identify it even after
// the PID number is recycled. Returns 0 when unknown.
func processStartTicks(pid int) int64 {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0
	}

	// comm (field 2) is parenthesised and may contain spaces or parens.
	end := bytes.LastIndexByte(data, ')')
	if end == -1 || end+2 > len(data) {
		return 0
	}

	// After comm come fields 3..; starttime is the 20th of those.
	rest := bytes.Fields(data[end+2:])
	if len(rest) < 20 {
		return 0
	}
	ticks, err := strconv.ParseInt(string(rest[19]), 10, 64)
	if err != nil {
		return 0
	}
	return ticks
}
