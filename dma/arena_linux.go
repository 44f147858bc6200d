//go:build linux

package dma

import "golang.org/x/sys/unix"

// newArena maps anonymous memory so the arena stays outside the Go heap and
// never moves.
func newArena(size int) ([]byte, func() error, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, nil, err
	}
	return b, func() error { return unix.Munmap(b) }, nil
}
