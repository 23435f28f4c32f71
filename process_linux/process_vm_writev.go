//go:build linux

package process_linux

import (
	"unsafe"

	"dfmem/process"

	"golang.org/x/sys/unix"
)

// process_vm_writev writes localBuf to remoteAddr in the target
func process_vm_writev(
	pid process.ProcessID,
	localBuf []byte,
	remoteAddr process.ProcessMemoryAddress,
) (int, unix.Errno) {
	if len(localBuf) == 0 {
		return 0, 0
	}

	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		uintptr(1),
		uintptr(unsafe.Pointer(&remoteIov)),
		uintptr(1),
		uintptr(0),
	)

	if errno != 0 {
		return 0, errno
	}
	return int(n), 0
}

// WriteRaw writes data at addr and returns the number of bytes written.
// process_vm_writev honors page protections, so read-only pages fail with EFAULT.
func (p *LinuxProcess) WriteRaw(addr process.ProcessMemoryAddress, data []byte) int {
	pid := p.GetPID()
	if pid == 0 {
		return 0
	}

	// the caller may reuse data while the syscall is in flight
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	n, errno := process_vm_writev(pid, dataCopy, addr)
	switch errno {
	case 0:
		if n != len(data) {
			p.log.Warn("process_vm_writev: only wrote", n, "of", len(data), "bytes at", addr.ToString())
		}
	case unix.ESRCH:
		p.markGone(errno)
	default:
		p.log.Warn("process_vm_writev failed at", addr.ToString(), ":", errno.Error())
	}
	return n
}
