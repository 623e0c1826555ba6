//go:build linux

package shm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Linux exposes POSIX shared memory as files under /dev/shm; opening with
// O_CREAT|O_EXCL is the compare-and-create primitive.
const shmDir = "/dev/shm"

func shmPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return "", ErrInvalidName
	}
	return shmDir + "/" + name, nil
}

func createOrAttach(name string, size int) (*Region, error) {
	path, err := shmPath(name)
	if err != nil {
		return nil, err
	}

	creator := true
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err == unix.EEXIST {
		creator = false
		fd, err = unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	}
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", name, err)
	}
	defer unix.Close(fd)

	if creator {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Unlink(path)
			return nil, fmt.Errorf("shm: truncate %s to %d bytes: %w", name, size, err)
		}
		// Reserve the backing pages up front so exhausted /dev/shm space
		// fails here instead of as a SIGBUS on first write.
		if err := unix.Fallocate(fd, 0, 0, int64(size)); err != nil && err != unix.EOPNOTSUPP {
			unix.Unlink(path)
			return nil, fmt.Errorf("shm: reserve %d bytes for %s: %w", size, name, err)
		}
	} else {
		// The creator sizes the region right after the exclusive create;
		// an attacher racing that window briefly sees size 0.
		if err := waitForSize(fd, int64(size)); err != nil {
			return nil, fmt.Errorf("shm: attach %s: %w", name, err)
		}
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if creator {
			unix.Unlink(path)
		}
		return nil, fmt.Errorf("shm: mmap %s (%d bytes): %w", name, size, err)
	}

	return &Region{
		name:    name,
		data:    data,
		creator: creator,
		unmap:   unix.Munmap,
	}, nil
}

func waitForSize(fd int, want int64) error {
	deadline := time.Now().Add(time.Second)
	for {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return err
		}
		if st.Size >= want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: region is %d bytes, want %d", ErrInvalidSize, st.Size, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func unlink(name string) error {
	path, err := shmPath(name)
	if err != nil {
		return err
	}
	if err := unix.Unlink(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shm: unlink %s: %w", name, err)
	}
	return nil
}
