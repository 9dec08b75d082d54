//go:build linux || darwin || freebsd

package device

import "golang.org/x/sys/unix"

const canMapPages = true

func mapPages(bytes int) ([]byte, error) {
	return unix.Mmap(-1, 0, bytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmapPages(b []byte) error {
	return unix.Munmap(b)
}

func lockPages(b []byte) error {
	return unix.Mlock(b)
}

func unlockPages(b []byte) error {
	return unix.Munlock(b)
}
