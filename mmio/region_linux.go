//go:build linux

package mmio

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a mapped register window. All accesses are 32-bit wide and go
// through sync/atomic so the compiler cannot merge or elide them.
type Region struct {
	mem   []byte
	words *uint32
	size  uint32
}

// Map opens device (e.g. /dev/mem or /sys/class/uio/uio0/device/resource0)
// and maps size bytes at physical offset base. size must be a multiple of
// the page size for /dev/mem mappings.
func Map(device string, base int64, size int) (*Region, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	mem, err := unix.Mmap(fd, base, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	// The mapping keeps its own reference to the file.
	_ = unix.Close(fd)
	if err != nil {
		return nil, fmt.Errorf("mmap %s @%#x+%#x: %w", device, base, size, err)
	}
	return &Region{
		mem:   mem,
		words: (*uint32)(unsafe.Pointer(&mem[0])),
		size:  uint32(size),
	}, nil
}

// Close unmaps the register window. The Region must not be used afterward.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	r.words = nil
	return err
}

func (r *Region) word(off uint32) *uint32 {
	if off >= r.size || off%4 != 0 {
		panic(fmt.Sprintf("mmio: access at %#x outside %#x-byte window", off, r.size))
	}
	return (*uint32)(unsafe.Add(unsafe.Pointer(r.words), off))
}

// Read32 reads the register at byte offset off.
func (r *Region) Read32(off uint32) uint32 {
	return atomic.LoadUint32(r.word(off))
}

// Write32 writes the register at byte offset off.
func (r *Region) Write32(off uint32, v uint32) {
	atomic.StoreUint32(r.word(off), v)
}
