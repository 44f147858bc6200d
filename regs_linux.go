//go:build linux

package wcn3990

import (
	"errors"

	"golang.org/x/sys/unix"
)

// OpenUIO maps the first memory region of a UIO device node such as
// /dev/uio0 as a register window.
func OpenUIO(path string, size int) (*MemWindow, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Join(errors.New("open "+path), err)
	}
	defer unix.Close(fd)
	b, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Join(errors.New("mmap "+path), err)
	}
	w := NewMemWindow(b)
	w.release = func() error { return unix.Munmap(b) }
	return w, nil
}
