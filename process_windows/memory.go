//go:build windows

package process_windows

import (
	"dfmem/process"

	"golang.org/x/sys/windows"
)

// ReadRaw returns how many bytes ReadProcessMemory copied; the OS error is logged
func (p *WindowsProcess) ReadRaw(addr process.ProcessMemoryAddress, buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	handle := p.getHandle()
	if handle == 0 {
		return 0
	}

	var bytesRead uintptr
	err := windows.ReadProcessMemory(handle, uintptr(addr), &buf[0], uintptr(len(buf)), &bytesRead)
	if err != nil {
		p.log.Debugln("ReadProcessMemory", addr.ToString(), len(buf), err.Error())
		p.checkGone()
	}
	return int(bytesRead)
}

func (p *WindowsProcess) WriteRaw(addr process.ProcessMemoryAddress, data []byte) int {
	if len(data) == 0 {
		return 0
	}
	handle := p.getHandle()
	if handle == 0 {
		return 0
	}

	var written uintptr
	err := windows.WriteProcessMemory(handle, uintptr(addr), &data[0], uintptr(len(data)), &written)
	if err != nil {
		p.log.Warn("WriteProcessMemory failed at", addr.ToString(), ":", err.Error())
		p.checkGone()
	}
	return int(written)
}
