package process

import (
	"dfmem/process/memory_map"
)

// Backend is the interface that defines operations for introspecting a target process.
// Each operating system provides one implementation, selected at startup.
type Backend interface {
	// Discovery
	ProcessFinder

	// Open opens a process with the given PID for memory operations
	Open(pid ProcessID) error

	// Close closes the process and releases resources
	Close() error

	// GetPID returns the process ID, zero when not open
	GetPID() ProcessID

	// Attach acquires the OS-level attachment; nested calls only increment a counter
	Attach() error

	// Detach releases one attachment; only the outermost release detaches from the OS
	Detach() error

	// IsAttached reports whether at least one attachment is held
	IsAttached() bool

	// ReadRaw fills buf from the target at addr and returns the number of bytes obtained.
	// Partial and failed reads are signaled by the count, never by a panic.
	ReadRaw(addr ProcessMemoryAddress, buf []byte) int

	// WriteRaw writes data to the target at addr and returns the number of bytes written
	WriteRaw(addr ProcessMemoryAddress, data []byte) int

	// Checksum returns the build-identifying key used to select a layout
	Checksum() (string, error)

	// BaseAddress returns the relocation delta added to global layout addresses
	BaseAddress() ProcessMemoryAddress

	// MemoryMap returns a copy of the target's current memory map
	MemoryMap() ([]memory_map.MemoryMapItem, error)

	// SetLostHandler registers a callback invoked once when the target disappears mid-session
	SetLostHandler(fn func(err error))

	// Remote scratch regions
	RegionMapper
}

// RegionMapper reserves and grows a contiguous region inside the target process.
type RegionMapper interface {
	// Mmap reserves a new read/write region of at least size bytes
	Mmap(size ProcessMemorySize) (ProcessMemoryAddress, error)

	// Mremap grows the region at start in place from oldSize to newSize bytes
	Mremap(start ProcessMemoryAddress, oldSize, newSize ProcessMemorySize) error
}
