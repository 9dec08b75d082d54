//go:build linux

package device

import "golang.org/x/sys/unix"

// getTotalSystemMemory returns total system memory in bytes
func getTotalSystemMemory() int64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return defaultSystemMemory
	}
	return int64(info.Totalram) * int64(info.Unit)
}
