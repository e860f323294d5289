//go:build unix

package sim

import "golang.org/x/sys/unix"

// allocateRAM maps anonymous memory so that frames are page-aligned and zeroed by the host
func allocateRAM(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func releaseRAM(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
