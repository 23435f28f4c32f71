//go:build windows

package process_windows

import (
	"fmt"

	"dfmem/process"

	"golang.org/x/sys/windows"
)

// ReserveSize is the address range set aside by Mmap; Mremap commits within it
const ReserveSize process.ProcessMemorySize = 256 * 1024 * 1024

func (p *WindowsProcess) virtualAllocEx(addr uintptr, size process.ProcessMemorySize, allocType uint32) (uintptr, error) {
	ret, _, err := procVirtualAllocEx.Call(
		uintptr(p.getHandle()),
		addr,
		uintptr(size),
		uintptr(allocType),
		uintptr(windows.PAGE_READWRITE),
	)
	if ret == 0 {
		return 0, err
	}
	return ret, nil
}

// Mmap reserves ReserveSize (or size, if larger) and commits the first size bytes
func (p *WindowsProcess) Mmap(size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	if p.getHandle() == 0 {
		return 0, process.ErrProcessNotOpen
	}

	reserve := max(size, ReserveSize)
	start, err := p.virtualAllocEx(0, reserve, windows.MEM_RESERVE)
	if err != nil {
		return 0, fmt.Errorf("%w: VirtualAllocEx reserve %d: %w", process.ErrRemoteAlloc, reserve, err)
	}
	if _, err := p.virtualAllocEx(start, size, windows.MEM_COMMIT); err != nil {
		return 0, fmt.Errorf("%w: VirtualAllocEx commit %d: %w", process.ErrRemoteAlloc, size, err)
	}

	addr := process.ProcessMemoryAddress(start)
	p.mu.Lock()
	p.reserved[addr] = reserve
	p.mu.Unlock()

	p.log.Infoln("mapped scratch region", addr.ToString(), size.ToString())
	return addr, nil
}

// Mremap commits more of the range reserved by Mmap
func (p *WindowsProcess) Mremap(start process.ProcessMemoryAddress, oldSize, newSize process.ProcessMemorySize) error {
	p.mu.Lock()
	reserve, ok := p.reserved[start]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s was not reserved by Mmap", process.ErrRemoteAlloc, start.ToString())
	}
	if newSize > reserve {
		return fmt.Errorf("%w: %d exceeds the %d byte reservation", process.ErrRemoteAlloc, newSize, reserve)
	}
	if _, err := p.virtualAllocEx(uintptr(start), newSize, windows.MEM_COMMIT); err != nil {
		return fmt.Errorf("%w: VirtualAllocEx commit %d: %w", process.ErrRemoteAlloc, newSize, err)
	}

	p.log.Infoln("grew scratch region", start.ToString(), oldSize.ToString(), "->", newSize.ToString())
	return nil
}
