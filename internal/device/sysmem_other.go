//go:build !linux

package device

// getTotalSystemMemory returns total system memory in bytes
func getTotalSystemMemory() int64 {
	return defaultSystemMemory
}
