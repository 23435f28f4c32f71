//go:build windows

package process_windows

import (
	"fmt"
	"unsafe"

	"dfmem/process"

	"golang.org/x/sys/windows"
)

// mainModuleBase returns where the executable image is mapped
func mainModuleBase(pid process.ProcessID) (process.ProcessMemoryAddress, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
	if err != nil {
		return 0, fmt.Errorf("CreateToolhelp32Snapshot modules: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	entry := windows.ModuleEntry32{Size: uint32(unsafe.Sizeof(windows.ModuleEntry32{}))}
	if err := windows.Module32First(snapshot, &entry); err != nil {
		return 0, fmt.Errorf("Module32First: %w", err)
	}
	return process.ProcessMemoryAddress(entry.ModBaseAddr), nil
}

// peHeader reads and caches the main module's PE headers
func (p *WindowsProcess) peHeader() (*process.PEHeader, process.ProcessMemoryAddress, error) {
	p.mu.Lock()
	if p.pe != nil {
		defer p.mu.Unlock()
		return p.pe, p.module, nil
	}
	pid := p.pid
	p.mu.Unlock()

	if pid == 0 {
		return nil, 0, process.ErrProcessNotOpen
	}

	module, err := mainModuleBase(pid)
	if err != nil {
		return nil, 0, err
	}
	h, err := process.ReadPEHeader(p.ReadRaw, module)
	if err != nil {
		return nil, 0, err
	}

	p.mu.Lock()
	p.pe = &h
	p.module = module
	p.mu.Unlock()
	return &h, module, nil
}

// Checksum is the PE link timestamp
func (p *WindowsProcess) Checksum() (string, error) {
	h, _, err := p.peHeader()
	if err != nil {
		return "", err
	}
	p.log.Infoln("checksum", h.Checksum())
	return h.Checksum(), nil
}

// BaseAddress is the ASLR slide between the loaded module and its preferred image base
func (p *WindowsProcess) BaseAddress() process.ProcessMemoryAddress {
	h, module, err := p.peHeader()
	if err != nil {
		p.log.Warn("base address:", err)
		return 0
	}
	return module - process.ProcessMemoryAddress(h.ImageBase)
}
