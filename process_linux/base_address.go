//go:build linux

package process_linux

import (
	"debug/elf"
	"fmt"

	"dfmem/process"
	"dfmem/process/memory_map"
)

// lowestLoadVaddr returns the page-aligned virtual address of the first PT_LOAD segment
func lowestLoadVaddr(path string) (uint64, error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", process.ErrInvalidExecutable, err)
	}
	defer f.Close()

	lowest := ^uint64(0)
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_LOAD && prog.Vaddr < lowest {
			lowest = prog.Vaddr
		}
	}
	if lowest == ^uint64(0) {
		return 0, fmt.Errorf("%w: no PT_LOAD segment in %s", process.ErrInvalidExecutable, path)
	}
	return lowest &^ 0xfff, nil
}

// relocation computes where the executable landed relative to its linked address
func relocation(exe string, vaddr uint64, mm []memory_map.MemoryMapItem) (process.ProcessMemoryAddress, error) {
	item := memory_map.LowestMappingOf(exe, mm)
	if item == nil {
		return 0, fmt.Errorf("%w: %s is not mapped", process.ErrAddressNotMapped, exe)
	}
	return process.ProcessMemoryAddress(item.Address - vaddr), nil
}

// BaseAddress is zero for non-PIE builds; the result is cached per open.
func (p *LinuxProcess) BaseAddress() process.ProcessMemoryAddress {
	p.mu.Lock()
	if p.baseKnown {
		defer p.mu.Unlock()
		return p.base
	}
	pid, exe := p.pid, p.exe
	p.mu.Unlock()

	if pid == 0 || exe == "" {
		return 0
	}

	vaddr, err := lowestLoadVaddr(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		p.log.Warn("base address:", err)
		return 0
	}
	mm, err := p.MemoryMap()
	if err != nil {
		p.log.Warn("base address:", err)
		return 0
	}
	base, err := relocation(exe, vaddr, mm)
	if err != nil {
		p.log.Warn("base address:", err)
		return 0
	}

	p.mu.Lock()
	p.base = base
	p.baseKnown = true
	p.mu.Unlock()

	p.log.Infoln("base address", base.ToString())
	return base
}
