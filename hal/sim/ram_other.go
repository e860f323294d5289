//go:build !unix

package sim

func allocateRAM(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func releaseRAM(data []byte) error {
	return nil
}
