//go:build !linux && !darwin && !freebsd

package device

import "errors"

const canMapPages = false

var errNoMapping = errors.New("anonymous mappings are not supported on this platform")

func mapPages(bytes int) ([]byte, error) {
	return nil, errNoMapping
}

func unmapPages(b []byte) error {
	return errNoMapping
}

func lockPages(b []byte) error {
	return errNoMapping
}

func unlockPages(b []byte) error {
	return errNoMapping
}
