//go:build !linux

package shm

func createOrAttach(name string, size int) (*Region, error) {
	return nil, ErrUnsupported
}

func unlink(name string) error {
	return ErrUnsupported
}
