// Package scratch hosts engine-written values inside the target. It is a bump
// allocator over one contiguous remote region: nothing is ever freed, and the
// region only grows in place.
package scratch

import (
	"errors"
	"fmt"
	"sync"

	"dfmem/coloransi"
	"dfmem/process"

	"github.com/Moonlight-Companies/gologger/logger"
)

type Address = process.ProcessMemoryAddress

const (
	// DefaultInitialSize is the size of the first mapping
	DefaultInitialSize process.ProcessMemorySize = 64 * 1024

	alignment = 8
	pageSize  = 0x1000
)

var ErrZeroAlloc = errors.New("zero-size allocation")

type Option func(*Allocator)

func WithInitialSize(size process.ProcessMemorySize) Option {
	return func(a *Allocator) {
		a.initial = roundPage(size)
	}
}

// Allocator is shared session-wide; every engine write that needs remote storage
// goes through one instance.
type Allocator struct {
	mu      sync.Mutex
	mapper  process.RegionMapper
	initial process.ProcessMemorySize

	base     Address
	capacity process.ProcessMemorySize
	used     process.ProcessMemorySize

	log *logger.Logger
}

func NewAllocator(mapper process.RegionMapper, opts ...Option) *Allocator {
	a := &Allocator{
		mapper:  mapper,
		initial: DefaultInitialSize,
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPink, coloransi.ColorOrange, "scratch")),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.initial == 0 {
		a.initial = pageSize
	}
	return a
}

// Alloc returns size bytes of fresh remote memory, 8-byte aligned.
func (a *Allocator) Alloc(size process.ProcessMemorySize) (Address, error) {
	if size == 0 {
		return 0, ErrZeroAlloc
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.base == 0 {
		if err := a.mapLocked(max(a.initial, roundPage(size))); err != nil {
			return 0, err
		}
	}

	start := alignUp(a.used)
	if need := start + size; need > a.capacity {
		if err := a.growLocked(need); err != nil {
			return 0, err
		}
	}

	a.used = start + size
	return a.base + Address(start), nil
}

func (a *Allocator) mapLocked(size process.ProcessMemorySize) error {
	base, err := a.mapper.Mmap(size)
	if err != nil {
		return fmt.Errorf("scratch: map %s: %w", size.ToString(), err)
	}
	a.base = base
	a.capacity = size
	a.log.Infoln("mapped", size.ToString(), "bytes at", base.ToString())
	return nil
}

// growLocked doubles the capacity, or more when the request needs it.
func (a *Allocator) growLocked(need process.ProcessMemorySize) error {
	newCap := max(a.capacity*2, roundPage(need))
	if err := a.mapper.Mremap(a.base, a.capacity, newCap); err != nil {
		return fmt.Errorf("scratch: grow %s to %s: %w", a.capacity.ToString(), newCap.ToString(), err)
	}
	a.log.Infoln("grew region at", a.base.ToString(), "to", newCap.ToString(), "bytes")
	a.capacity = newCap
	return nil
}

// HighWater is the number of bytes handed out so far. It never decreases.
func (a *Allocator) HighWater() process.ProcessMemorySize {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

func (a *Allocator) Capacity() process.ProcessMemorySize {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity
}

// Base is zero until the first allocation.
func (a *Allocator) Base() Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base
}

func alignUp(n process.ProcessMemorySize) process.ProcessMemorySize {
	return (n + alignment - 1) &^ (alignment - 1)
}

func roundPage(n process.ProcessMemorySize) process.ProcessMemorySize {
	return (n + pageSize - 1) &^ (pageSize - 1)
}
